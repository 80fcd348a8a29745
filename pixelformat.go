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

// PixelFormat enumerates the raster layouts Transform understands: channel
// order (RGB or BGR), presence of alpha, and bit width/encoding.
type PixelFormat int

const (
	PixelFormatRGB565 PixelFormat = iota
	PixelFormatBGR565

	PixelFormatRGB888
	PixelFormatBGR888
	PixelFormatRGBA8888
	PixelFormatBGRA8888

	PixelFormatRGBA1010102
	PixelFormatBGRA1010102
	// PixelFormatRGB101010x and PixelFormatBGR101010x use the same bit
	// layout as the _1010102 formats but always ignore the 2 alpha bits on
	// load and always write 1.0 (the 2 top bits set) on store.
	PixelFormatRGB101010x
	PixelFormatBGR101010x

	PixelFormatRGB161616 // Big-endian per channel.
	PixelFormatBGR161616
	PixelFormatRGBA16161616
	PixelFormatBGRA16161616

	PixelFormatRGBhhh // 1-5-10 half-precision float, big-endian per channel.
	PixelFormatBGRhhh
	PixelFormatRGBAhhhh
	PixelFormatBGRAhhhh

	PixelFormatRGBfff // 32-bit float, big-endian per channel.
	PixelFormatBGRfff
	PixelFormatRGBAffff
	PixelFormatBGRAffff
)

// channelKind selects how a format's channel words are encoded.
type channelKind int

const (
	kind565 channelKind = iota
	kind888
	kind1010102
	kind101010x
	kind161616
	kindHalf
	kindFloat
)

type formatInfo struct {
	BytesPerPixel int
	Channels      int // 3 or 4 (4 means alpha is carried in the layout)
	SwapRB        bool
	Kind          channelKind
}

var formatTable = map[PixelFormat]formatInfo{
	PixelFormatRGB565: {2, 3, false, kind565},
	PixelFormatBGR565: {2, 3, true, kind565},

	PixelFormatRGB888:   {3, 3, false, kind888},
	PixelFormatBGR888:   {3, 3, true, kind888},
	PixelFormatRGBA8888: {4, 4, false, kind888},
	PixelFormatBGRA8888: {4, 4, true, kind888},

	PixelFormatRGBA1010102: {4, 4, false, kind1010102},
	PixelFormatBGRA1010102: {4, 4, true, kind1010102},
	PixelFormatRGB101010x:  {4, 4, false, kind101010x},
	PixelFormatBGR101010x:  {4, 4, true, kind101010x},

	PixelFormatRGB161616:     {6, 3, false, kind161616},
	PixelFormatBGR161616:     {6, 3, true, kind161616},
	PixelFormatRGBA16161616:  {8, 4, false, kind161616},
	PixelFormatBGRA16161616:  {8, 4, true, kind161616},

	PixelFormatRGBhhh:    {6, 3, false, kindHalf},
	PixelFormatBGRhhh:    {6, 3, true, kindHalf},
	PixelFormatRGBAhhhh:  {8, 4, false, kindHalf},
	PixelFormatBGRAhhhh:  {8, 4, true, kindHalf},

	PixelFormatRGBfff:   {12, 3, false, kindFloat},
	PixelFormatBGRfff:   {12, 3, true, kindFloat},
	PixelFormatRGBAffff: {16, 4, false, kindFloat},
	PixelFormatBGRAffff: {16, 4, true, kindFloat},
}

func (f PixelFormat) info() (formatInfo, bool) {
	info, ok := formatTable[f]
	return info, ok
}

// HasAlpha reports whether f's layout carries an alpha channel. Note that
// PixelFormatRGB101010x/BGR101010x have 4 channels worth of bits but no
// usable alpha (the field is always written as 1.0 and ignored on load).
func (f PixelFormat) HasAlpha() bool {
	info, ok := f.info()
	if !ok {
		return false
	}
	return info.Channels == 4 && info.Kind != kind101010x
}

// BytesPerPixel reports the number of bytes one pixel occupies in f.
func (f PixelFormat) BytesPerPixel() int {
	info, ok := f.info()
	if !ok {
		return 0
	}
	return info.BytesPerPixel
}

// AlphaFormat describes how a pixel buffer's alpha channel relates to its
// colour channels.
type AlphaFormat int

const (
	// AlphaOpaque means the source/destination has no meaningful alpha;
	// alpha is always read/written as 1.0.
	AlphaOpaque AlphaFormat = iota
	// AlphaUnpremul means colour and alpha are unassociated.
	AlphaUnpremul
	// AlphaPremulAsEncoded means colour was multiplied by alpha before
	// being encoded (gamma-space premultiplication).
	AlphaPremulAsEncoded
	// AlphaPremulLinear means colour was multiplied by alpha after
	// linearization (linear-space premultiplication).
	AlphaPremulLinear
)
