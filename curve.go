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

// CurveKind selects which variant of Curve is populated.
type CurveKind int

const (
	// CurveParametric means TF holds the curve's seven parameters.
	CurveParametric CurveKind = iota
	// CurveTabulated means one of Table8/Table16 holds the sampled curve.
	CurveTabulated
)

// Curve is a 1D transfer function as found in an ICC TRC tag or an A2B
// input/output/matrix-prep curve: either a parametric TransferFunction, or
// a table of evenly spaced samples on [0, 1], interpolated linearly
// between neighbours. Which table width is populated (Table8 or Table16)
// is a property of the tag format the curve came from; exactly one of
// them is non-nil when Kind == CurveTabulated.
//
// A Curve does not keep a separate "which union member is aliased" flag
// the way the underlying C union representation does; CurveKind alone
// selects the active fields.
type Curve struct {
	Kind CurveKind
	TF   TransferFunction

	Table8  []uint8
	Table16 []uint16
}

// NewParametricCurve wraps tf as a Curve.
func NewParametricCurve(tf TransferFunction) *Curve {
	return &Curve{Kind: CurveParametric, TF: tf}
}

// NewTabulated8Curve wraps an 8-bit sample table (N >= 2) as a Curve.
func NewTabulated8Curve(table []uint8) *Curve {
	return &Curve{Kind: CurveTabulated, Table8: table}
}

// NewTabulated16Curve wraps a 16-bit big-endian-normalized sample table
// (N >= 2) as a Curve.
func NewTabulated16Curve(table []uint16) *Curve {
	return &Curve{Kind: CurveTabulated, Table16: table}
}

// Evaluate computes y = curve(x) for x in [0, 1], clamping x first.
func (c *Curve) Evaluate(x float64) float64 {
	x = clamp(x, 0, 1)
	switch c.Kind {
	case CurveParametric:
		return clamp(c.TF.Eval(x), 0, 1)
	case CurveTabulated:
		return c.evaluateTabulated(x)
	default:
		return x
	}
}

func (c *Curve) evaluateTabulated(x float64) float64 {
	if c.Table16 != nil {
		return interpolateTable(c.Table16, 65535.0, x)
	}
	return interpolateTable8(c.Table8, x)
}

func interpolateTable(table []uint16, scale float64, x float64) float64 {
	n := len(table)
	if n == 0 {
		return x
	}
	if n == 1 {
		return float64(table[0]) / scale
	}
	pos := x * float64(n-1)
	lo := int(pos)
	if lo < 0 {
		lo = 0
	}
	if lo >= n-1 {
		return float64(table[n-1]) / scale
	}
	frac := pos - float64(lo)
	v0 := float64(table[lo]) / scale
	v1 := float64(table[lo+1]) / scale
	return v0 + frac*(v1-v0)
}

func interpolateTable8(table []uint8, x float64) float64 {
	n := len(table)
	if n == 0 {
		return x
	}
	if n == 1 {
		return float64(table[0]) / 255.0
	}
	pos := x * float64(n-1)
	lo := int(pos)
	if lo < 0 {
		lo = 0
	}
	if lo >= n-1 {
		return float64(table[n-1]) / 255.0
	}
	frac := pos - float64(lo)
	v0 := float64(table[lo]) / 255.0
	v1 := float64(table[lo+1]) / 255.0
	return v0 + frac*(v1-v0)
}

// IsIdentity reports whether c is known to be the identity function
// without sampling it.
func (c *Curve) IsIdentity() bool {
	if c.Kind != CurveParametric {
		return false
	}
	tf := c.TF
	return tf.G == 1 && tf.A == 1 && tf.B == 0 && tf.C == 0 && tf.D == 0 && tf.E == 0 && tf.F == 0
}

// DecodeCurve decodes a curveType ('curv') or parametricCurveType ('para')
// tag into a Curve.
func DecodeCurve(data []byte) (*Curve, error) {
	if len(data) < 8 {
		return nil, invalidTag("curve data too short")
	}
	switch string(data[0:4]) {
	case "curv":
		return decodeCurvType(data)
	case "para":
		return decodeParaType(data)
	default:
		return nil, invalidTag("unrecognized curve tag type")
	}
}

func decodeCurvType(data []byte) (*Curve, error) {
	if len(data) < 12 {
		return nil, invalidTag("curv tag too short")
	}
	n := getUint32(data, 8)
	switch {
	case n == 0:
		return NewParametricCurve(LinearTransferFunction), nil
	case n == 1:
		if len(data) < 14 {
			return nil, invalidTag("curv gamma entry missing")
		}
		gamma := float64(getUint16(data, 12)) / 256.0
		return NewParametricCurve(TransferFunction{G: gamma, A: 1}), nil
	default:
		need := uint64(12) + 2*uint64(n)
		if uint64(len(data)) < need {
			return nil, invalidTag("curv table truncated")
		}
		table := make([]uint16, n)
		for i := range table {
			table[i] = getUint16(data, 12+i*2)
		}
		return NewTabulated16Curve(table), nil
	}
}

// paraFuncType enumerates the ICC parametricCurveType function types.
const (
	paraG        = 0
	paraGAB      = 1
	paraGABC     = 2
	paraGABCD    = 3
	paraGABCDEF  = 4
	paraNumTypes = 5
)

var paraParamCount = [paraNumTypes]int{1, 3, 4, 5, 7}

func decodeParaType(data []byte) (*Curve, error) {
	if len(data) < 12 {
		return nil, invalidTag("para tag too short")
	}
	funcType := int(getUint16(data, 8))
	if funcType < 0 || funcType >= paraNumTypes {
		return nil, invalidTag("unsupported parametricCurveType function type")
	}
	numParams := paraParamCount[funcType]
	if len(data) < 12+numParams*4 {
		return nil, invalidTag("para parameters truncated")
	}

	p := make([]float64, numParams)
	for i := range p {
		p[i] = getS15Fixed16(data, 12+i*4)
	}

	tf := TransferFunction{A: 1}
	tf.G = p[0]

	switch funcType {
	case paraG:
		// y = x^g
	case paraGAB:
		tf.A, tf.B = p[1], p[2]
		if tf.A == 0 {
			return nil, invalidTag("parametricCurveType: a == 0")
		}
		tf.D = -tf.B / tf.A
	case paraGABC:
		tf.A, tf.B, tf.E = p[1], p[2], p[3]
		if tf.A == 0 {
			return nil, invalidTag("parametricCurveType: a == 0")
		}
		tf.D = -tf.B / tf.A
		tf.F = tf.E
	case paraGABCD:
		tf.A, tf.B, tf.C, tf.D = p[1], p[2], p[3], p[4]
	case paraGABCDEF:
		tf.A, tf.B, tf.C, tf.D, tf.E, tf.F = p[1], p[2], p[3], p[4], p[5], p[6]
	}

	return NewParametricCurve(tf), nil
}

// decodeCurveAt decodes a single curveType/parametricCurveType element
// starting at data[offset:] and reports how many bytes it occupies,
// rounded up to the next 4-byte boundary as required for the concatenated
// curve sets inside an 'mAB '/'mBA ' tag.
func decodeCurveAt(data []byte, offset int) (*Curve, int, error) {
	if offset < 0 || offset+8 > len(data) {
		return nil, 0, invalidTag("curve element out of range")
	}
	var consumed int
	switch string(data[offset : offset+4]) {
	case "curv":
		if offset+12 > len(data) {
			return nil, 0, invalidTag("curv tag too short")
		}
		n := int(getUint32(data, offset+8))
		switch {
		case n == 0:
			consumed = 12
		case n == 1:
			consumed = 14
		default:
			consumed = 12 + 2*n
		}
	case "para":
		if offset+12 > len(data) {
			return nil, 0, invalidTag("para tag too short")
		}
		funcType := int(getUint16(data, offset+8))
		if funcType < 0 || funcType >= paraNumTypes {
			return nil, 0, invalidTag("unsupported parametricCurveType function type")
		}
		consumed = 12 + paraParamCount[funcType]*4
	default:
		return nil, 0, invalidTag("unrecognized curve element type")
	}
	if offset+consumed > len(data) {
		return nil, 0, invalidTag("curve element truncated")
	}
	curve, err := DecodeCurve(data[offset : offset+consumed])
	if err != nil {
		return nil, 0, err
	}
	// curve elements inside a concatenated set are individually padded to
	// a 4-byte boundary.
	if pad := consumed % 4; pad != 0 {
		consumed += 4 - pad
	}
	return curve, consumed, nil
}

// EncodeParametric encodes tf as parametricCurveType ('para') tag data
// using the GABCDEF (function type 4) layout, the only one that carries all
// seven parameters. Each parameter is stored as s15.16, truncated toward
// zero to a multiple of 1/65536, so decoding the result gives back tf only
// to within 1/65536 per parameter.
func EncodeParametric(tf TransferFunction) []byte {
	buf := make([]byte, 12+7*4)
	copy(buf[0:4], "para")
	putUint16(buf, 8, paraGABCDEF)
	params := [7]float64{tf.G, tf.A, tf.B, tf.C, tf.D, tf.E, tf.F}
	for i, v := range params {
		putS15Fixed16(buf, 12+i*4, v)
	}
	return buf
}
