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

// interpolateCLUT samples a flattened CLUT (outChannels values per grid
// point, row-major with the last input dimension varying fastest) at
// input, using tetrahedral interpolation for the common 3-input case and
// multilinear interpolation otherwise.
func interpolateCLUT(clut []float64, gridPoints []int, outChannels int, input []float64) ([]float64, error) {
	if len(gridPoints) != len(input) {
		return nil, unsupportedFeature("CLUT dimension mismatch")
	}
	gridSize := outChannels
	for _, g := range gridPoints {
		if g < 2 {
			return nil, invalidTag("CLUT grid_points must be >= 2")
		}
		gridSize *= g
	}
	if len(clut) < gridSize {
		return nil, invalidTag("CLUT data truncated")
	}

	if len(gridPoints) == 3 && gridPoints[0] == gridPoints[1] && gridPoints[1] == gridPoints[2] {
		return tetrahedralInterp3D(clut, gridPoints[0], outChannels, input[0], input[1], input[2]), nil
	}
	return multilinearInterp(clut, gridPoints, outChannels, input), nil
}

// tetrahedralInterp3D performs tetrahedral interpolation in a 3D CLUT.
// The input r, g, b values are in [0, 1]. gridSize is the number of grid
// points per dimension (same for all three).
func tetrahedralInterp3D(clut []float64, gridSize int, outChannels int, r, g, b float64) []float64 {
	scale := float64(gridSize - 1)
	rPos := r * scale
	gPos := g * scale
	bPos := b * scale

	ri := int(rPos)
	gi := int(gPos)
	bi := int(bPos)

	if ri < 0 {
		ri = 0
	}
	if ri >= gridSize-1 {
		ri = gridSize - 2
	}
	if gi < 0 {
		gi = 0
	}
	if gi >= gridSize-1 {
		gi = gridSize - 2
	}
	if bi < 0 {
		bi = 0
	}
	if bi >= gridSize-1 {
		bi = gridSize - 2
	}

	fr := clamp(rPos-float64(ri), 0, 1)
	fg := clamp(gPos-float64(gi), 0, 1)
	fb := clamp(bPos-float64(bi), 0, 1)

	stride := outChannels
	gStride := gridSize * stride
	rStride := gridSize * gStride

	base := ri*rStride + gi*gStride + bi*stride

	c000 := base
	c001 := base + stride
	c010 := base + gStride
	c011 := base + gStride + stride
	c100 := base + rStride
	c101 := base + rStride + stride
	c110 := base + rStride + gStride
	c111 := base + rStride + gStride + stride

	out := make([]float64, outChannels)

	switch {
	case fr > fg && fg > fb:
		for i := range outChannels {
			out[i] = (1-fr)*clut[c000+i] + (fr-fg)*clut[c100+i] + (fg-fb)*clut[c110+i] + fb*clut[c111+i]
		}
	case fr > fg && fr > fb:
		for i := range outChannels {
			out[i] = (1-fr)*clut[c000+i] + (fr-fb)*clut[c100+i] + (fb-fg)*clut[c101+i] + fg*clut[c111+i]
		}
	case fr > fg:
		for i := range outChannels {
			out[i] = (1-fb)*clut[c000+i] + (fb-fr)*clut[c001+i] + (fr-fg)*clut[c101+i] + fg*clut[c111+i]
		}
	case fr > fb:
		for i := range outChannels {
			out[i] = (1-fg)*clut[c000+i] + (fg-fr)*clut[c010+i] + (fr-fb)*clut[c110+i] + fb*clut[c111+i]
		}
	case fg > fb:
		for i := range outChannels {
			out[i] = (1-fg)*clut[c000+i] + (fg-fb)*clut[c010+i] + (fb-fr)*clut[c011+i] + fr*clut[c111+i]
		}
	default:
		for i := range outChannels {
			out[i] = (1-fb)*clut[c000+i] + (fb-fg)*clut[c001+i] + (fg-fr)*clut[c011+i] + fr*clut[c111+i]
		}
	}

	return out
}

// multilinearInterp performs n-dimensional linear interpolation over a
// flattened CLUT. gridPoints contains the grid size for each dimension.
func multilinearInterp(clut []float64, gridPoints []int, outChannels int, input []float64) []float64 {
	nDims := len(gridPoints)

	strides := make([]int, nDims)
	stride := outChannels
	for i := nDims - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= gridPoints[i]
	}

	indices := make([]int, nDims)
	fracs := make([]float64, nDims)
	for i := range nDims {
		scale := float64(gridPoints[i] - 1)
		pos := input[i] * scale
		idx := int(pos)
		if idx < 0 {
			idx = 0
		}
		if idx >= gridPoints[i]-1 {
			idx = gridPoints[i] - 2
			if idx < 0 {
				idx = 0
			}
		}
		indices[i] = idx
		fracs[i] = clamp(pos-float64(idx), 0, 1)
	}

	numCorners := 1 << nDims
	out := make([]float64, outChannels)

	baseOffset := 0
	for d := range nDims {
		baseOffset += indices[d] * strides[d]
	}

	for corner := 0; corner < numCorners; corner++ {
		offset := 0
		weight := 1.0
		for d := range nDims {
			if corner&(1<<d) != 0 {
				offset += strides[d]
				weight *= fracs[d]
			} else {
				weight *= 1 - fracs[d]
			}
		}

		for i := range outChannels {
			idx := baseOffset + offset + i
			if idx < len(clut) {
				out[i] += weight * clut[idx]
			}
		}
	}

	return out
}
