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

// decodeMAB decodes a lutAtoBType ('mAB ') or lutBtoAType ('mBA ') tag, the
// ICC v4 generalization of mft1/mft2: any of the A curves, CLUT, M curves,
// and matrix stage may be absent, but the final curve set (called "B" in
// the ICC spec) is always present and always has 3 channels. This decoder
// treats both tag types identically, always interpreting the structure in
// the device-to-PCS ("A2B") direction: A curves -> CLUT -> M curves ->
// matrix -> B curves, matching the stage order skcms_A2B already defines.
func decodeMAB(data []byte) (*A2B, error) {
	const headerSize = 32
	if len(data) < headerSize {
		return nil, invalidTag("mAB/mBA tag too short")
	}

	inputChannels := int(data[8])
	outputChannels := int(data[9])
	if inputChannels < 1 || inputChannels > 4 {
		return nil, invalidTag("mAB/mBA input channel count out of range")
	}
	if outputChannels != 3 {
		return nil, invalidTag("mAB/mBA output channel count must be 3")
	}

	offsetB := int(getUint32(data, 12))
	offsetMatrix := int(getUint32(data, 16))
	offsetM := int(getUint32(data, 20))
	offsetCLUT := int(getUint32(data, 24))
	offsetA := int(getUint32(data, 28))

	if offsetB == 0 {
		return nil, invalidTag("mAB/mBA missing required B curve set")
	}
	outputCurves, err := decodeCurveSet(data, offsetB, outputChannels)
	if err != nil {
		return nil, err
	}

	a2b := &A2B{
		OutputChannels: outputChannels,
		OutputCurves:   outputCurves,
	}

	if offsetA != 0 && offsetCLUT != 0 {
		inputCurves, err := decodeCurveSet(data, offsetA, inputChannels)
		if err != nil {
			return nil, err
		}
		a2b.InputChannels = inputChannels
		a2b.InputCurves = inputCurves

		grid, clut, err := decodeCLUTStage(data, offsetCLUT, inputChannels, outputChannels)
		if err != nil {
			return nil, err
		}
		a2b.GridPoints = grid
		a2b.CLUT = clut
	} else {
		// No CLUT: this is a matrix-shaper layout. The A2B input channel
		// count is then whatever the M curves/matrix expect, which must be 3.
		if inputChannels != 3 {
			return nil, unsupportedFeature("mAB/mBA without CLUT requires 3 input channels")
		}
		a2b.InputChannels = 3
		a2b.InputCurves = identityCurves(3)
		// The "CLUT" degenerates to a single 2x2x2 identity grid so Eval's
		// interpolation step is a pass-through onto the matrix stage.
		a2b.GridPoints = []int{2, 2, 2}
		a2b.CLUT = identityCLUT3()
	}

	if offsetM != 0 && offsetMatrix != 0 {
		matrixCurves, err := decodeCurveSet(data, offsetM, 3)
		if err != nil {
			return nil, err
		}
		a2b.MatrixCurves = matrixCurves
		a2b.HasMatrix = true
		if offsetMatrix+48 > len(data) {
			return nil, invalidTag("mAB/mBA matrix truncated")
		}
		var m Matrix3x4
		off := offsetMatrix
		for r := 0; r < 3; r++ {
			for c := 0; c < 4; c++ {
				m[r][c] = getS15Fixed16(data, off)
				off += 4
			}
		}
		a2b.Matrix = m
	}

	return a2b, nil
}

func decodeCurveSet(data []byte, offset, n int) ([]*Curve, error) {
	curves := make([]*Curve, n)
	pos := offset
	for i := 0; i < n; i++ {
		c, consumed, err := decodeCurveAt(data, pos)
		if err != nil {
			return nil, err
		}
		curves[i] = c
		pos += consumed
	}
	return curves, nil
}

func identityCurves(n int) []*Curve {
	curves := make([]*Curve, n)
	for i := range curves {
		curves[i] = NewParametricCurve(LinearTransferFunction)
	}
	return curves
}

// identityCLUT3 returns a 2x2x2x3 CLUT that reproduces its 3-channel input
// unchanged, used to fold a CLUT-less matrix-shaper mAB/mBA layout into the
// same A2B.Eval code path as a full CLUT profile.
func identityCLUT3() []float64 {
	clut := make([]float64, 8*3)
	for corner := 0; corner < 8; corner++ {
		for ch := 0; ch < 3; ch++ {
			// tetrahedralInterp3D addresses a corner's (r, g, b) grid
			// position with r as the corner integer's high bit (the
			// largest stride) and b as its low bit; channel 0 must track
			// r, so it reads bit 2, not bit 0.
			if corner&(1<<(2-ch)) != 0 {
				clut[corner*3+ch] = 1
			}
		}
	}
	return clut
}

func decodeCLUTStage(data []byte, offset, inputChannels, outputChannels int) ([]int, []float64, error) {
	if offset+20 > len(data) {
		return nil, nil, invalidTag("mAB/mBA CLUT header truncated")
	}
	grid := make([]int, inputChannels)
	gridSize := 1
	for i := 0; i < inputChannels; i++ {
		g := int(data[offset+i])
		if g < 2 {
			return nil, nil, invalidTag("mAB/mBA CLUT grid_points must be >= 2")
		}
		grid[i] = g
		gridSize *= g
	}
	precision := int(data[offset+16])
	if precision != 1 && precision != 2 {
		return nil, nil, invalidTag("mAB/mBA CLUT precision must be 1 or 2 bytes")
	}

	entries := gridSize * outputChannels
	dataStart := offset + 20
	clut := make([]float64, entries)
	if precision == 1 {
		need := dataStart + entries
		if len(data) < need {
			return nil, nil, invalidTag("mAB/mBA CLUT data truncated")
		}
		for i := 0; i < entries; i++ {
			clut[i] = float64(data[dataStart+i]) / 255.0
		}
	} else {
		need := dataStart + 2*entries
		if len(data) < need {
			return nil, nil, invalidTag("mAB/mBA CLUT data truncated")
		}
		for i := 0; i < entries; i++ {
			clut[i] = float64(getUint16(data, dataStart+2*i)) / 65535.0
		}
	}
	return grid, clut, nil
}
