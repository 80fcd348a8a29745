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

// A2B is a "device to PCS" multi-stage transform: optional input curves
// feeding an N-dimensional CLUT, an optional matrix-prep stage, and a
// required set of 3 output curves. This mirrors skcms_A2B exactly,
// including the order stages are applied in: input curves, CLUT,
// matrix-prep curves, matrix, output curves.
type A2B struct {
	InputChannels int // ki in [1, 4]
	GridPoints    []int
	InputCurves   []*Curve
	CLUT          []float64 // normalized [0,1], length = OutputChannels * prod(GridPoints)

	HasMatrix    bool
	MatrixCurves []*Curve // 3 curves, applied before Matrix
	Matrix       Matrix3x4

	OutputChannels int // always 3
	OutputCurves   []*Curve
}

// Eval runs in through the full A2B pipeline and returns the 3-channel PCS
// result.
func (a *A2B) Eval(in []float64) ([3]float64, error) {
	if len(in) != a.InputChannels {
		return [3]float64{}, unsupportedFeature("A2B input channel count mismatch")
	}

	pre := make([]float64, a.InputChannels)
	for i, c := range a.InputCurves {
		pre[i] = c.Evaluate(in[i])
	}

	out, err := interpolateCLUT(a.CLUT, a.GridPoints, a.OutputChannels, pre)
	if err != nil {
		return [3]float64{}, err
	}

	if a.HasMatrix {
		var v [3]float64
		for i := 0; i < 3 && i < len(out); i++ {
			v[i] = a.MatrixCurves[i].Evaluate(out[i])
		}
		v = a.Matrix.MulAffine(v)
		copy(out, v[:])
	}

	var result [3]float64
	for i := 0; i < 3; i++ {
		result[i] = clamp(a.OutputCurves[i].Evaluate(out[i]), 0, 1)
	}
	return result, nil
}

// mftCommonHeaderSize is the size of the fields shared by lut8Type
// ('mft1') and lut16Type ('mft2') tags: signature, reserved, channel
// counts, grid size, reserved, and a 3x3 matrix.
const mftCommonHeaderSize = 4 + 4 + 1 + 1 + 1 + 1 + 36

func decodeMFTCommon(data []byte) (inputChannels, outputChannels, gridPoints int, matrix Matrix3x3, err error) {
	if len(data) < mftCommonHeaderSize {
		return 0, 0, 0, Matrix3x3{}, invalidTag("mft tag too short")
	}
	inputChannels = int(data[8])
	outputChannels = int(data[9])
	gridPoints = int(data[10])
	if inputChannels < 1 || inputChannels > 4 {
		return 0, 0, 0, Matrix3x3{}, invalidTag("mft input_channels out of range")
	}
	if outputChannels != 3 {
		return 0, 0, 0, Matrix3x3{}, invalidTag("mft output_channels must be 3")
	}
	if gridPoints < 2 {
		return 0, 0, 0, Matrix3x3{}, invalidTag("mft grid_points must be >= 2")
	}
	off := 12
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			matrix[r][c] = getS15Fixed16(data, off)
			off += 4
		}
	}
	return inputChannels, outputChannels, gridPoints, matrix, nil
}

func matrixIsIdentity(m Matrix3x3) bool {
	return m.ApproximatelyEqual(identity3x3, 1e-6)
}

// decodeMFT1 decodes a lut8Type ('mft1') tag: fixed 256-entry 8-bit input
// and output tables, 8-bit CLUT.
func decodeMFT1(data []byte) (*A2B, error) {
	inputChannels, outputChannels, gridPoints, matrix, err := decodeMFTCommon(data)
	if err != nil {
		return nil, err
	}

	const entries = 256
	off := mftCommonHeaderSize

	inputCurves := make([]*Curve, inputChannels)
	for c := 0; c < inputChannels; c++ {
		table := make([]uint8, entries)
		need := off + entries
		if len(data) < need {
			return nil, invalidTag("mft1 input table truncated")
		}
		copy(table, data[off:need])
		inputCurves[c] = NewTabulated8Curve(table)
		off = need
	}

	gridSize := 1
	for i := 0; i < inputChannels; i++ {
		gridSize *= gridPoints
	}
	clutEntries := gridSize * outputChannels
	need := off + clutEntries
	if len(data) < need {
		return nil, invalidTag("mft1 CLUT truncated")
	}
	clut := make([]float64, clutEntries)
	for i := 0; i < clutEntries; i++ {
		clut[i] = float64(data[off+i]) / 255.0
	}
	off = need

	outputCurves := make([]*Curve, outputChannels)
	for c := 0; c < outputChannels; c++ {
		table := make([]uint8, entries)
		need := off + entries
		if len(data) < need {
			return nil, invalidTag("mft1 output table truncated")
		}
		copy(table, data[off:need])
		outputCurves[c] = NewTabulated8Curve(table)
		off = need
	}

	grid := make([]int, inputChannels)
	for i := range grid {
		grid[i] = gridPoints
	}

	return &A2B{
		InputChannels:  inputChannels,
		GridPoints:     grid,
		InputCurves:    inputCurves,
		CLUT:           clut,
		HasMatrix:      !matrixIsIdentity(matrix),
		MatrixCurves:   identityCurves(3),
		Matrix:         identityMatrix3x4FromMatrix3x3(matrix),
		OutputChannels: outputChannels,
		OutputCurves:   outputCurves,
	}, nil
}

// decodeMFT2 decodes a lut16Type ('mft2') tag: header-specified 16-bit
// input/output table sizes, 16-bit CLUT.
func decodeMFT2(data []byte) (*A2B, error) {
	inputChannels, outputChannels, gridPoints, matrix, err := decodeMFTCommon(data)
	if err != nil {
		return nil, err
	}

	if len(data) < mftCommonHeaderSize+4 {
		return nil, invalidTag("mft2 tag too short")
	}
	inputTableSize := int(getUint16(data, mftCommonHeaderSize))
	outputTableSize := int(getUint16(data, mftCommonHeaderSize+2))
	if inputTableSize < 2 || inputTableSize > 4096 || outputTableSize < 2 || outputTableSize > 4096 {
		return nil, invalidTag("mft2 table size out of range [2, 4096]")
	}

	off := mftCommonHeaderSize + 4

	inputCurves := make([]*Curve, inputChannels)
	for c := 0; c < inputChannels; c++ {
		table := make([]uint16, inputTableSize)
		need := off + 2*inputTableSize
		if len(data) < need {
			return nil, invalidTag("mft2 input table truncated")
		}
		for i := range table {
			table[i] = getUint16(data, off+2*i)
		}
		inputCurves[c] = NewTabulated16Curve(table)
		off = need
	}

	gridSize := 1
	for i := 0; i < inputChannels; i++ {
		gridSize *= gridPoints
	}
	clutEntries := gridSize * outputChannels
	need := off + 2*clutEntries
	if len(data) < need {
		return nil, invalidTag("mft2 CLUT truncated")
	}
	clut := make([]float64, clutEntries)
	for i := 0; i < clutEntries; i++ {
		clut[i] = float64(getUint16(data, off+2*i)) / 65535.0
	}
	off = need

	outputCurves := make([]*Curve, outputChannels)
	for c := 0; c < outputChannels; c++ {
		table := make([]uint16, outputTableSize)
		need := off + 2*outputTableSize
		if len(data) < need {
			return nil, invalidTag("mft2 output table truncated")
		}
		for i := range table {
			table[i] = getUint16(data, off+2*i)
		}
		outputCurves[c] = NewTabulated16Curve(table)
		off = need
	}

	grid := make([]int, inputChannels)
	for i := range grid {
		grid[i] = gridPoints
	}

	return &A2B{
		InputChannels:  inputChannels,
		GridPoints:     grid,
		InputCurves:    inputCurves,
		CLUT:           clut,
		HasMatrix:      !matrixIsIdentity(matrix),
		MatrixCurves:   identityCurves(3),
		Matrix:         identityMatrix3x4FromMatrix3x3(matrix),
		OutputChannels: outputChannels,
		OutputCurves:   outputCurves,
	}, nil
}

func identityMatrix3x4FromMatrix3x3(m Matrix3x3) Matrix3x4 {
	return Matrix3x4{
		{m[0][0], m[0][1], m[0][2], 0},
		{m[1][0], m[1][1], m[1][2], 0},
		{m[2][0], m[2][1], m[2][2], 0},
	}
}

// DecodeA2B decodes an A2B0 tag of type 'mft1', 'mft2', 'mAB ' or 'mBA '.
func DecodeA2B(data []byte) (*A2B, error) {
	if len(data) < 4 {
		return nil, invalidTag("A2B tag too short")
	}
	switch string(data[0:4]) {
	case "mft1":
		return decodeMFT1(data)
	case "mft2":
		return decodeMFT2(data)
	case "mAB ", "mBA ":
		return decodeMAB(data)
	default:
		return nil, unsupportedFeature("unrecognized A2B tag type")
	}
}
