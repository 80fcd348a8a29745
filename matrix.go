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

// Matrix3x3 is a row-major 3x3 matrix, vals[row][col].
type Matrix3x3 [3][3]float64

// Matrix3x4 is a row-major 3x4 affine matrix, vals[row][col]. Column 3 is
// the translation term.
type Matrix3x4 [3][4]float64

var identity3x3 = Matrix3x3{
	{1, 0, 0},
	{0, 1, 0},
	{0, 0, 1},
}

// MulVec applies m to the column vector v.
func (m Matrix3x3) MulVec(v [3]float64) [3]float64 {
	return [3]float64{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

// MulAffine applies the 3x4 affine matrix m to v, including the
// translation column.
func (m Matrix3x4) MulAffine(v [3]float64) [3]float64 {
	return [3]float64{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2] + m[0][3],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2] + m[1][3],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2] + m[2][3],
	}
}

// Mul computes m * other.
func (m Matrix3x3) Mul(other Matrix3x3) Matrix3x3 {
	var out Matrix3x3
	for r := range 3 {
		for c := range 3 {
			var sum float64
			for k := range 3 {
				sum += m[r][k] * other[k][c]
			}
			out[r][c] = sum
		}
	}
	return out
}

func (m Matrix3x3) det() float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// Invert returns the inverse of m, or false if m is singular.
func (m Matrix3x3) Invert() (Matrix3x3, bool) {
	d := m.det()
	if d == 0 {
		return Matrix3x3{}, false
	}
	inv := 1.0 / d
	var out Matrix3x3
	out[0][0] = (m[1][1]*m[2][2] - m[1][2]*m[2][1]) * inv
	out[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) * inv
	out[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) * inv
	out[1][0] = (m[1][2]*m[2][0] - m[1][0]*m[2][2]) * inv
	out[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) * inv
	out[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) * inv
	out[2][0] = (m[1][0]*m[2][1] - m[1][1]*m[2][0]) * inv
	out[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) * inv
	out[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) * inv
	return out, true
}

// ApproximatelyEqual reports whether m and other agree to within tol per
// component.
func (m Matrix3x3) ApproximatelyEqual(other Matrix3x3, tol float64) bool {
	for r := range 3 {
		for c := range 3 {
			d := m[r][c] - other[r][c]
			if d < -tol || d > tol {
				return false
			}
		}
	}
	return true
}

// bradfordCone and its inverse implement the Bradford chromatic-adaptation
// cone-response matrix, the standard choice used by ICC profile generators.
var bradfordCone = Matrix3x3{
	{0.8951, 0.2664, -0.1614},
	{-0.7502, 1.7135, 0.0367},
	{0.0389, -0.0685, 1.0296},
}

// bradfordAdapt returns the matrix that chromatically adapts XYZ tristimulus
// values from white point src to white point dst, using the Bradford
// transform.
func bradfordAdapt(src, dst [3]float64) Matrix3x3 {
	coneInv, _ := bradfordCone.Invert() // bradfordCone is fixed and non-singular

	s := bradfordCone.MulVec(src)
	d := bradfordCone.MulVec(dst)

	var scale Matrix3x3
	scale[0][0] = d[0] / s[0]
	scale[1][1] = d[1] / s[1]
	scale[2][2] = d[2] / s[2]

	return coneInv.Mul(scale).Mul(bradfordCone)
}

// xyToXYZ converts a CIE xy chromaticity to XYZ, normalized to Y == 1.
func xyToXYZ(x, y float64) [3]float64 {
	return [3]float64{x / y, 1, (1 - x - y) / y}
}

// PrimariesToXYZD50 computes the RGB-to-XYZ(D50) matrix for the given
// chromaticities of the red, green and blue primaries and the white point,
// Bradford-adapting from the given white point to the D50 illuminant used
// by the ICC profile connection space. It fails if the primaries matrix is
// singular.
func PrimariesToXYZD50(rx, ry, gx, gy, bx, by, wx, wy float64) (Matrix3x3, error) {
	r := xyToXYZ(rx, ry)
	g := xyToXYZ(gx, gy)
	b := xyToXYZ(bx, by)
	w := xyToXYZ(wx, wy)

	primaries := Matrix3x3{
		{r[0], g[0], b[0]},
		{r[1], g[1], b[1]},
		{r[2], g[2], b[2]},
	}
	primariesInv, ok := primaries.Invert()
	if !ok {
		return Matrix3x3{}, arithmeticFailure("primaries matrix is singular")
	}

	s := primariesInv.MulVec(w)
	unadapted := Matrix3x3{
		{primaries[0][0] * s[0], primaries[0][1] * s[1], primaries[0][2] * s[2]},
		{primaries[1][0] * s[0], primaries[1][1] * s[1], primaries[1][2] * s[2]},
		{primaries[2][0] * s[0], primaries[2][1] * s[1], primaries[2][2] * s[2]},
	}

	adapt := bradfordAdapt(w, d50WhitePoint)
	return adapt.Mul(unadapted), nil
}

// d50WhitePoint is the CIE standard illuminant D50 in XYZ, the reference
// white for the ICC profile connection space.
var d50WhitePoint = [3]float64{0.9642, 1.0000, 0.8249}
