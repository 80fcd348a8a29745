// seehuhn.de/go/cms - parse and apply ICC colour profiles
// Copyright (C) 2024  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package cms

import (
	"math"
	"unsafe"
)

// Transform is the raster entry point: it builds a Pipeline from opts and
// runs it over n pixels, reading from src and writing to dst. It is a
// convenience wrapper around Build+Run for one-shot callers; code that
// converts many buffers with the same layout should call Build once and
// reuse the Pipeline.
func Transform(dst, src []byte, opts BuildOptions, n int) error {
	opts.NumPixels = n
	p, err := Build(opts)
	if err != nil {
		return err
	}
	return p.Run(dst, src)
}

// Run executes p over p.opts.NumPixels pixels, reading from src and writing
// to dst.
func (p *Pipeline) Run(dst, src []byte) error {
	n := p.opts.NumPixels
	srcStride := p.srcInfo.BytesPerPixel
	dstStride := p.dstInfo.BytesPerPixel

	if len(src) < n*srcStride {
		return unsupportedFeature("source buffer too short for the requested pixel count")
	}
	if len(dst) < n*dstStride {
		return unsupportedFeature("destination buffer too short for the requested pixel count")
	}
	if srcStride != dstStride && buffersOverlap(dst, src) {
		return aliasingViolation("source and destination overlap but have different pixel sizes")
	}

	for i := 0; i < n; i++ {
		sp := src[i*srcStride : i*srcStride+srcStride]
		dp := dst[i*dstStride : i*dstStride+dstStride]

		r, g, b, a := loadPixel(sp, p.srcInfo)

		if p.opts.SrcAlpha == AlphaOpaque || !p.srcInfo.hasRealAlpha() {
			a = 1
		}
		if p.opts.SrcAlpha == AlphaPremulAsEncoded {
			r, g, b = unpremultiply(r, g, b, a)
		}

		var er, eg, eb float64
		if p.colorManage {
			var xr, xg, xb float64
			if p.useSrcA2B {
				// p.skipGamut is never true alongside useSrcA2B (see Build):
				// an A2B source always needs the dst^-1 multiply below, since
				// its output is PCS XYZ, not the destination's own linear RGB.
				out, err := p.opts.SrcProfile.A2B.Eval([]float64{r, g, b})
				if err != nil {
					return err
				}
				xyz := [3]float64{out[0], out[1], out[2]}
				if p.opts.SrcAlpha == AlphaPremulLinear {
					xyz[0], xyz[1], xyz[2] = unpremultiply(xyz[0], xyz[1], xyz[2], a)
				}
				inv, ok := p.opts.DstProfile.ToXYZD50.Invert()
				if !ok {
					return arithmeticFailure("destination toXYZD50 matrix is not invertible")
				}
				rgb := inv.MulVec(xyz)
				xr, xg, xb = rgb[0], rgb[1], rgb[2]
			} else {
				lr, lg, lb := p.opts.SrcProfile.TRC[0].Evaluate(r), p.opts.SrcProfile.TRC[1].Evaluate(g), p.opts.SrcProfile.TRC[2].Evaluate(b)
				if p.opts.SrcAlpha == AlphaPremulLinear {
					lr, lg, lb = unpremultiply(lr, lg, lb, a)
				}
				if p.skipGamut {
					// src and dst profiles agree closely enough that the
					// src toXYZD50 and dst toXYZD50^-1 multiplies cancel;
					// applying the src matrix alone (as before) left an
					// uncompensated basis change and broke P->P round trips.
					xr, xg, xb = lr, lg, lb
				} else {
					xyz := p.opts.SrcProfile.ToXYZD50.MulVec([3]float64{lr, lg, lb})
					inv, ok := p.opts.DstProfile.ToXYZD50.Invert()
					if !ok {
						return arithmeticFailure("destination toXYZD50 matrix is not invertible")
					}
					rgb := inv.MulVec(xyz)
					xr, xg, xb = rgb[0], rgb[1], rgb[2]
				}
			}

			if p.opts.DstAlpha == AlphaPremulLinear {
				xr, xg, xb = xr*a, xg*a, xb*a
			}

			var err error
			er, eg, eb, err = destinationEncode(p.opts.DstProfile, xr, xg, xb)
			if err != nil {
				return err
			}
		} else {
			er, eg, eb = r, g, b
			if p.opts.SrcAlpha == AlphaPremulLinear {
				er, eg, eb = unpremultiply(er, eg, eb, a)
			}
			if p.opts.DstAlpha == AlphaPremulLinear {
				er, eg, eb = er*a, eg*a, eb*a
			}
		}

		if p.opts.DstAlpha == AlphaPremulAsEncoded {
			er, eg, eb = er*a, eg*a, eb*a
		}

		outA := a
		if p.opts.DstAlpha == AlphaOpaque || !p.dstInfo.hasRealAlpha() {
			outA = 1
		}

		storePixel(dp, p.dstInfo, sanitize(er), sanitize(eg), sanitize(eb), sanitize(outA))
	}
	return nil
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// unpremultiply undoes association of colour with alpha: colour/alpha,
// treating a fully transparent pixel's colour as black rather than dividing
// by zero.
func unpremultiply(r, g, b, a float64) (float64, float64, float64) {
	if a <= 0 {
		return 0, 0, 0
	}
	return r / a, g / a, b / a
}

// destinationEncode runs linear (r, g, b) through the inverse of p's TRC,
// producing encoded/gamma-space values. p must already satisfy
// MakeUsableAsDestination (parametric, invertible TRC in every channel).
func destinationEncode(p *ICCProfile, r, g, b float64) (float64, float64, float64, error) {
	in := [3]float64{r, g, b}
	var out [3]float64
	for i := 0; i < 3; i++ {
		inv, ok := p.TRC[i].TF.Invert()
		if !ok {
			return 0, 0, 0, arithmeticFailure("destination TRC channel is not invertible")
		}
		out[i] = clamp(inv.Eval(in[i]), 0, 1)
	}
	return out[0], out[1], out[2], nil
}

func (info formatInfo) hasRealAlpha() bool {
	return info.Channels == 4 && info.Kind != kind101010x
}

// buffersOverlap reports whether a and b share any backing memory.
func buffersOverlap(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	pa := uintptr(unsafe.Pointer(&a[0]))
	pb := uintptr(unsafe.Pointer(&b[0]))
	la := uintptr(len(a))
	lb := uintptr(len(b))
	return pa < pb+lb && pb < pa+la
}

func getLE16(data []byte, offset int) uint16 {
	return uint16(data[offset]) | uint16(data[offset+1])<<8
}

func putLE16(data []byte, offset int, v uint16) {
	data[offset] = byte(v)
	data[offset+1] = byte(v >> 8)
}

func getLE32(data []byte, offset int) uint32 {
	return uint32(data[offset]) | uint32(data[offset+1])<<8 | uint32(data[offset+2])<<16 | uint32(data[offset+3])<<24
}

func putLE32(data []byte, offset int, v uint32) {
	data[offset] = byte(v)
	data[offset+1] = byte(v >> 8)
	data[offset+2] = byte(v >> 16)
	data[offset+3] = byte(v >> 24)
}

// quantize rescales a clamped-to-[0,1] value onto [0, maxVal], rounding
// half-to-even so integer widths quantize consistently across formats.
func quantize(v float64, maxVal int) int {
	v = clamp(v, 0, 1)
	return int(math.RoundToEven(v * float64(maxVal)))
}

// loadPixel decodes one pixel from buf (exactly info.BytesPerPixel long)
// into (r, g, b, a), each nominally in [0, 1] for integer-encoded formats
// (half/float formats may carry values outside that range). The channel
// occupying the lowest-addressed slot is R unless info.SwapRB, in which
// case it is B.
func loadPixel(buf []byte, info formatInfo) (r, g, b, a float64) {
	var c0, c1, c2, c3 float64
	haveAlpha := false

	switch info.Kind {
	case kind565:
		w := getLE16(buf, 0)
		c0 = float64(w&0x1f) / 31.0
		c1 = float64((w>>5)&0x3f) / 63.0
		c2 = float64((w>>11)&0x1f) / 31.0

	case kind888:
		c0 = float64(buf[0]) / 255.0
		c1 = float64(buf[1]) / 255.0
		c2 = float64(buf[2]) / 255.0
		if info.Channels == 4 {
			c3 = float64(buf[3]) / 255.0
			haveAlpha = true
		}

	case kind1010102, kind101010x:
		w := getLE32(buf, 0)
		c0 = float64(w&0x3ff) / 1023.0
		c1 = float64((w>>10)&0x3ff) / 1023.0
		c2 = float64((w>>20)&0x3ff) / 1023.0
		if info.Kind == kind1010102 {
			c3 = float64((w>>30)&0x3) / 3.0
			haveAlpha = true
		}

	case kind161616:
		c0 = float64(getUint16(buf, 0)) / 65535.0
		c1 = float64(getUint16(buf, 2)) / 65535.0
		c2 = float64(getUint16(buf, 4)) / 65535.0
		if info.Channels == 4 {
			c3 = float64(getUint16(buf, 6)) / 65535.0
			haveAlpha = true
		}

	case kindHalf:
		c0 = float64(halfToFloat32(getUint16(buf, 0)))
		c1 = float64(halfToFloat32(getUint16(buf, 2)))
		c2 = float64(halfToFloat32(getUint16(buf, 4)))
		if info.Channels == 4 {
			c3 = float64(halfToFloat32(getUint16(buf, 6)))
			haveAlpha = true
		}

	case kindFloat:
		c0 = float64(math.Float32frombits(getUint32(buf, 0)))
		c1 = float64(math.Float32frombits(getUint32(buf, 4)))
		c2 = float64(math.Float32frombits(getUint32(buf, 8)))
		if info.Channels == 4 {
			c3 = float64(math.Float32frombits(getUint32(buf, 12)))
			haveAlpha = true
		}
	}

	if info.SwapRB {
		r, g, b = c2, c1, c0
	} else {
		r, g, b = c0, c1, c2
	}
	if haveAlpha {
		a = c3
	} else {
		a = 1
	}
	return sanitize(r), sanitize(g), sanitize(b), sanitize(a)
}

// storePixel encodes (r, g, b, a) into buf (exactly info.BytesPerPixel
// long), inverting loadPixel's layout. For PixelFormatRGB101010x/BGR101010x
// the two alpha bits are always written as 1.0 regardless of a.
func storePixel(buf []byte, info formatInfo, r, g, b, a float64) {
	var c0, c1, c2 float64
	if info.SwapRB {
		c0, c1, c2 = b, g, r
	} else {
		c0, c1, c2 = r, g, b
	}

	switch info.Kind {
	case kind565:
		w := uint16(quantize(c0, 31)) | uint16(quantize(c1, 63))<<5 | uint16(quantize(c2, 31))<<11
		putLE16(buf, 0, w)

	case kind888:
		buf[0] = byte(quantize(c0, 255))
		buf[1] = byte(quantize(c1, 255))
		buf[2] = byte(quantize(c2, 255))
		if info.Channels == 4 {
			buf[3] = byte(quantize(a, 255))
		}

	case kind1010102:
		w := uint32(quantize(c0, 1023)) | uint32(quantize(c1, 1023))<<10 | uint32(quantize(c2, 1023))<<20 | uint32(quantize(a, 3))<<30
		putLE32(buf, 0, w)

	case kind101010x:
		w := uint32(quantize(c0, 1023)) | uint32(quantize(c1, 1023))<<10 | uint32(quantize(c2, 1023))<<20 | uint32(3)<<30
		putLE32(buf, 0, w)

	case kind161616:
		putUint16(buf, 0, uint16(quantize(c0, 65535)))
		putUint16(buf, 2, uint16(quantize(c1, 65535)))
		putUint16(buf, 4, uint16(quantize(c2, 65535)))
		if info.Channels == 4 {
			putUint16(buf, 6, uint16(quantize(a, 65535)))
		}

	case kindHalf:
		putUint16(buf, 0, float32ToHalf(float32(clamp(c0, 0, 1))))
		putUint16(buf, 2, float32ToHalf(float32(clamp(c1, 0, 1))))
		putUint16(buf, 4, float32ToHalf(float32(clamp(c2, 0, 1))))
		if info.Channels == 4 {
			putUint16(buf, 6, float32ToHalf(float32(clamp(a, 0, 1))))
		}

	case kindFloat:
		putUint32(buf, 0, math.Float32bits(float32(clamp(c0, 0, 1))))
		putUint32(buf, 4, math.Float32bits(float32(clamp(c1, 0, 1))))
		putUint32(buf, 8, math.Float32bits(float32(clamp(c2, 0, 1))))
		if info.Channels == 4 {
			putUint32(buf, 12, math.Float32bits(float32(clamp(a, 0, 1))))
		}
	}
}
