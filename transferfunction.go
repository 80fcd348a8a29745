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

import "math"

// TransferFunction is the seven-parameter piecewise tone curve used
// throughout this package to represent both parsed ICC parametricCurveType
// data and curves fitted to tabulated data:
//
//	tf(x) = sign(x) * ( c*|x| + f )              if |x| <  d
//	      = sign(x) * ( (a*|x| + b)^g + e )      if |x| >= d
//
// A simple gamma curve sets G to the exponent and A to 1, with all other
// fields zero and D == 0 (so the whole domain uses the power branch).
type TransferFunction struct {
	G, A, B, C, D, E, F float64
}

// LinearTransferFunction is the identity transfer function (y = x).
var LinearTransferFunction = TransferFunction{G: 1, A: 1}

// SRGBTransferFunction is the canonical sRGB tone response curve: it maps
// an encoded channel value to a linear light value, matching the "TRC"
// tag data found in a standard sRGB ICC profile.
var SRGBTransferFunction = TransferFunction{
	G: 2.4,
	A: 1 / 1.055,
	B: 0.055 / 1.055,
	C: 1 / 12.92,
	D: 0.04045,
	E: 0,
	F: 0,
}

// SRGBInverseTransferFunction decodes sRGB-encoded values back to linear
// light; it is the functional inverse of SRGBTransferFunction.
var SRGBInverseTransferFunction = mustInvert(SRGBTransferFunction)

func mustInvert(tf TransferFunction) TransferFunction {
	inv, ok := tf.Invert()
	if !ok {
		panic("cms: built-in transfer function does not invert")
	}
	return inv
}

// tfTolerance is the allowed disagreement between the two branches of a
// TransferFunction at the join point x = D, per spec.
const tfTolerance = 1e-5

// Eval evaluates the transfer function at x, which need not be clamped to
// [0, 1] by the caller; the two branches are selected by |x| against D,
// matching the piecewise definition.
func (tf TransferFunction) Eval(x float64) float64 {
	sign := 1.0
	ax := x
	if x < 0 {
		sign = -1.0
		ax = -x
	}

	var y float64
	if ax < tf.D {
		y = tf.C*ax + tf.F
	} else {
		v := tf.A*ax + tf.B
		if v < 0 {
			v = 0
		}
		y = math.Pow(v, tf.G) + tf.E
	}
	return sign * y
}

// WellDefined reports whether the two branches of tf agree at the join
// point x = D within tfTolerance (1e-5), and that D is not negative.
func (tf TransferFunction) WellDefined() bool {
	if tf.D < 0 {
		return false
	}
	linear := tf.C*tf.D + tf.F
	v := tf.A*tf.D + tf.B
	if v < 0 {
		v = 0
	}
	power := math.Pow(v, tf.G) + tf.E
	diff := linear - power
	if diff < 0 {
		diff = -diff
	}
	return diff <= tfTolerance
}

// Invert computes the functional inverse of tf as another TransferFunction,
// succeeding only when the power branch is invertible: G != 0 and A > 0
// (so A^-G is real), and, when the linear branch is reachable (D > 0), it
// has nonzero slope. This mirrors skcms's case-by-case analytic inversion;
// no numerical root-finding is used.
func (tf TransferFunction) Invert() (TransferFunction, bool) {
	if tf.G == 0 || tf.A <= 0 || (tf.C == 0 && tf.D > 0) {
		return TransferFunction{}, false
	}

	// Linear branch: y = c*x + f  =>  x = (1/c)*y - f/c. With D == 0 the
	// linear branch is never taken and C may be zero.
	var cInv, fInv float64
	if tf.C != 0 {
		cInv = 1 / tf.C
		fInv = -tf.F / tf.C
	}

	// Power branch: y = (a*x+b)^g + e
	//   => x = (1/a) * (y-e)^(1/g) - b/a
	//   => x = (A'*(y-e))^(1/g) + E'   with A' = a^-g, E' = -b/a
	// Rewritten in the standard (a*x+b)^g + e shape with inner offset
	// folded in: x = (A'*y + B')^(1/g) + E', B' = -A'*e.
	gInv := 1 / tf.G
	aInv := math.Pow(tf.A, -tf.G)
	bInv := -aInv * tf.E
	eInv := -tf.B / tf.A

	// The new threshold is the old output value at the join point.
	dInv := tf.C*tf.D + tf.F

	inv := TransferFunction{
		G: gInv,
		A: aInv,
		B: bInv,
		C: cInv,
		D: dInv,
		E: eInv,
		F: fInv,
	}
	return inv, true
}

// AreApproximateInverses reports whether curve is (to within 1/512)
// the functional inverse of invTF: it samples curve at N evenly spaced
// points in [0, 1] and checks that invTF composed with curve is close to
// the identity. This is the practical test used to recognize, e.g., that
// a tabulated curve "is sRGB-like" by comparing against the known sRGB
// inverse transfer function.
func AreApproximateInverses(curve *Curve, invTF TransferFunction) bool {
	const n = 256
	const threshold = 1.0 / 512.0
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n-1)
		y := curve.Evaluate(x)
		back := invTF.Eval(y)
		diff := back - x
		if diff < 0 {
			diff = -diff
		}
		if diff > threshold {
			return false
		}
	}
	return true
}
