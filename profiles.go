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
	"bytes"
	"math"
)

// sharedCurveMaxError is the quality bar MakeUsableAsDestinationWithSingleCurve
// requires of the single TRC it picks to stand in for all three channels.
const sharedCurveMaxError = 1.0 / 256.0

// sRGB chromaticities and D65 white point, used to build the sRGB singleton's
// toXYZD50 matrix the same way any matrix-shaper profile's would be derived.
const (
	srgbRx, srgbRy = 0.64, 0.33
	srgbGx, srgbGy = 0.30, 0.60
	srgbBx, srgbBy = 0.15, 0.06
	d65Wx, d65Wy   = 0.3127, 0.3290
)

var sRGBSingleton = buildSRGBSingleton()
var xyzD50Singleton = buildXYZD50Singleton()

func buildSRGBSingleton() *ICCProfile {
	m, err := PrimariesToXYZD50(srgbRx, srgbRy, srgbGx, srgbGy, srgbBx, srgbBy, d65Wx, d65Wy)
	if err != nil {
		panic("cms: sRGB primaries matrix is unexpectedly singular")
	}
	curve := NewParametricCurve(SRGBTransferFunction)
	return &ICCProfile{
		Version:        0x04300000,
		DataColorSpace: SigRGB,
		PCS:            SigXYZ,
		HasTRC:         true,
		TRC:            [3]*Curve{curve, curve, curve},
		HasToXYZD50:    true,
		ToXYZD50:       m,
	}
}

func buildXYZD50Singleton() *ICCProfile {
	curve := NewParametricCurve(LinearTransferFunction)
	return &ICCProfile{
		Version:        0x04300000,
		DataColorSpace: SigXYZ,
		PCS:            SigXYZ,
		HasTRC:         true,
		TRC:            [3]*Curve{curve, curve, curve},
		HasToXYZD50:    true,
		ToXYZD50:       identity3x3,
	}
}

// SRGBProfile returns the immutable, process-wide canonical sRGB profile.
func SRGBProfile() *ICCProfile { return sRGBSingleton }

// XYZD50Profile returns the immutable, process-wide profile representing
// the PCS itself (identity transform, identity matrix).
func XYZD50Profile() *ICCProfile { return xyzD50Singleton }

// ApproximatelyEqual reports whether a and b describe the same colour
// transform, by any of three routes: they are the same profile value (in
// particular, the same singleton), or their toXYZD50 matrices agree to
// within 1/512 per entry and their parametric TRCs encode to identical
// s15.16 'para' bytes, or their backing buffers are byte-for-byte identical.
func ApproximatelyEqual(a, b *ICCProfile) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	if a.HasToXYZD50 && b.HasToXYZD50 && a.HasTRC && b.HasTRC {
		if a.ToXYZD50.ApproximatelyEqual(b.ToXYZD50, 1.0/512.0) {
			trcEqual := true
			for i := 0; i < 3; i++ {
				if a.TRC[i] == nil || b.TRC[i] == nil ||
					a.TRC[i].Kind != CurveParametric || b.TRC[i].Kind != CurveParametric ||
					!bytes.Equal(EncodeParametric(a.TRC[i].TF), EncodeParametric(b.TRC[i].TF)) {
					trcEqual = false
					break
				}
			}
			if trcEqual {
				return true
			}
		}
	}

	if a.data != nil && b.data != nil && len(a.data) == len(b.data) && bytes.Equal(a.data, b.data) {
		return true
	}
	return false
}

// MakeUsableAsDestination ensures p has both a toXYZD50 matrix and three
// invertible parametric TRCs, deriving whichever is missing: tabulated TRCs
// are replaced by curve-fitted parametric approximations, and a CLUT-less,
// identity-input A2B is collapsed into an equivalent matrix+TRC
// representation. It reports whether p is now usable as a transform
// destination.
func (p *ICCProfile) MakeUsableAsDestination() bool {
	if !p.HasTRC || !p.HasToXYZD50 {
		if p.HasA2B && p.collapseA2BToMatrixTRC() {
			// collapseA2BToMatrixTRC sets HasTRC/HasToXYZD50 directly.
		}
	}
	if !p.HasTRC {
		if !p.fitTRCFromTabulated() {
			return false
		}
	}
	if !p.HasToXYZD50 {
		return false
	}
	for _, c := range p.TRC {
		if c == nil || c.Kind != CurveParametric {
			return false
		}
		if _, ok := c.TF.Invert(); !ok {
			return false
		}
	}
	return true
}

// fitTRCFromTabulated replaces any tabulated TRC with a curve-fitted
// parametric approximation, leaving already-parametric channels untouched.
func (p *ICCProfile) fitTRCFromTabulated() bool {
	var fitted [3]*Curve
	for i, c := range p.TRC {
		if c == nil {
			return false
		}
		if c.Kind == CurveParametric {
			fitted[i] = c
			continue
		}
		tf, maxErr, err := ApproximateCurve(c)
		if err != nil || maxErr >= fitMaxError {
			return false
		}
		fitted[i] = NewParametricCurve(tf)
	}
	p.TRC = fitted
	p.HasTRC = true
	return true
}

// collapseA2BToMatrixTRC recognizes the special case of an A2B whose input
// curves are identity and whose CLUT has only the minimal 2 grid points
// per axis (so multilinear interpolation degenerates to an affine map): in
// that case the CLUT corners directly encode a 3x3 matrix, and the A2B
// output curves become the destination TRC.
func (p *ICCProfile) collapseA2BToMatrixTRC() bool {
	a := p.A2B
	if a == nil || a.InputChannels != 3 || a.OutputChannels != 3 {
		return false
	}
	for _, g := range a.GridPoints {
		if g != 2 {
			return false
		}
	}
	for _, c := range a.InputCurves {
		if c == nil || !c.IsIdentity() {
			return false
		}
	}

	corner := func(idx int) [3]float64 {
		var v [3]float64
		base := idx * a.OutputChannels
		copy(v[:], a.CLUT[base:base+3])
		return v
	}
	black := corner(0)
	red := corner(4)
	green := corner(2)
	blue := corner(1)

	p.ToXYZD50 = Matrix3x3{
		{red[0] - black[0], green[0] - black[0], blue[0] - black[0]},
		{red[1] - black[1], green[1] - black[1], blue[1] - black[1]},
		{red[2] - black[2], green[2] - black[2], blue[2] - black[2]},
	}
	p.HasToXYZD50 = true

	var trc [3]*Curve
	for i, c := range a.OutputCurves {
		if c.Kind == CurveParametric {
			trc[i] = c
			continue
		}
		tf, maxErr, err := ApproximateCurve(c)
		if err != nil || maxErr >= fitMaxError {
			return false
		}
		trc[i] = NewParametricCurve(tf)
	}
	p.TRC = trc
	p.HasTRC = true
	p.HasA2B = false
	p.A2B = nil
	return true
}

// MakeUsableAsDestinationWithSingleCurve is MakeUsableAsDestination plus the
// stronger requirement that a single shared TRC stand in for all three
// channels: the candidate (among the three fitted TRCs) minimizing the sum
// of per-channel max errors is chosen, and the whole operation fails if
// that shared curve's max error exceeds 1/256 on any channel.
func (p *ICCProfile) MakeUsableAsDestinationWithSingleCurve() bool {
	if !p.MakeUsableAsDestination() {
		return false
	}

	bestIdx := -1
	bestSum := math.Inf(1)
	bestWorst := 0.0
	for i := range p.TRC {
		cand := p.TRC[i].TF
		sum := 0.0
		worst := 0.0
		for _, c := range p.TRC {
			e := maxAbsCurveDiff(c, cand)
			sum += e
			worst = math.Max(worst, e)
		}
		if sum < bestSum {
			bestSum = sum
			bestIdx = i
			bestWorst = worst
		}
	}
	if bestIdx < 0 || bestWorst > sharedCurveMaxError {
		return false
	}

	shared := NewParametricCurve(p.TRC[bestIdx].TF)
	p.TRC = [3]*Curve{shared, shared, shared}
	return true
}

func maxAbsCurveDiff(c *Curve, tf TransferFunction) float64 {
	const n = 256
	maxErr := 0.0
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n-1)
		diff := c.Evaluate(x) - tf.Eval(x)
		if diff < 0 {
			diff = -diff
		}
		maxErr = math.Max(maxErr, diff)
	}
	return maxErr
}
