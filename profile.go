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

import "time"

const (
	headerSize        = 128
	tagTableBase      = headerSize + 4
	tagTableEntrySize = 12
)

// ICCProfile is a parsed ICC v2/v4 profile. Curves, matrices and A2B data
// are all derived eagerly at parse time and copied out of data; the raw
// buffer and each tag's Data are kept as sub-slices of data, so data must
// outlive the ICCProfile.
type ICCProfile struct {
	data []byte

	Size           uint32
	Version        uint32
	DataColorSpace uint32
	PCS            uint32
	CreationDate   time.Time

	tags []ICCTag

	HasTRC bool
	TRC    [3]*Curve // red, green, blue

	HasToXYZD50 bool
	ToXYZD50    Matrix3x3

	HasA2B bool
	A2B    *A2B
}

// Parse decodes an ICC profile from data. The returned ICCProfile keeps
// data itself and each tag's Data as sub-slices rather than copies, so data
// must not be modified or discarded while the profile is in use. Decoded
// curve tables and A2B tables are copied into newly allocated slices and do
// not reference data.
func Parse(data []byte) (*ICCProfile, error) {
	if len(data) < tagTableBase {
		return nil, invalidHeader(0, "profile is too short for a header and tag count")
	}

	size := getUint32(data, 0)
	version := getUint32(data, 8)
	dataColorSpace := getUint32(data, 16)
	pcs := getUint32(data, 20)
	creationDate := getDateTime(data, 24)
	signature := getUint32(data, 36)
	illumX := getS15Fixed16(data, 68)
	illumY := getS15Fixed16(data, 72)
	illumZ := getS15Fixed16(data, 76)
	tagCount := getUint32(data, headerSize)

	if signature != SigAcsp {
		return nil, invalidHeader(36, "missing 'acsp' profile file signature")
	}
	if (version >> 24) > 4 {
		return nil, unsupportedVersion(8, "major version > 4 (iccMAX) is not supported")
	}

	tagTableSize := uint64(tagCount) * tagTableEntrySize
	minSize := uint64(tagTableBase) + tagTableSize
	if uint64(size) > uint64(len(data)) || uint64(size) < minSize {
		return nil, invalidHeader(0, "declared size inconsistent with buffer length and tag count")
	}

	if absDiff(illumX, 0.9642) > 0.01 || absDiff(illumY, 1.0000) > 0.01 || absDiff(illumZ, 0.8249) > 0.01 {
		return nil, invalidHeader(68, "illuminant is not D50")
	}

	tags := make([]ICCTag, tagCount)
	for i := 0; i < int(tagCount); i++ {
		off := tagTableBase + i*tagTableEntrySize
		tagSig := getUint32(data, off)
		tagOffset := getUint32(data, off+4)
		tagSize := getUint32(data, off+8)
		if tagSize < 4 {
			return nil, invalidTagTable(off+8, "tag size < 4")
		}
		end := uint64(tagOffset) + uint64(tagSize)
		if end > uint64(size) {
			return nil, invalidTagTable(off, "tag offset+size overflows profile")
		}
		tagData := data[tagOffset : tagOffset+tagSize]
		tagType := uint32(0)
		if len(tagData) >= 4 {
			tagType = getUint32(tagData, 0)
		}
		tags[i] = ICCTag{Signature: tagSig, Type: tagType, Size: tagSize, Data: tagData}
	}

	p := &ICCProfile{
		data:           data,
		Size:           size,
		Version:        version,
		DataColorSpace: dataColorSpace,
		PCS:            pcs,
		CreationDate:   creationDate,
		tags:           tags,
	}

	if err := p.extractTRC(); err != nil {
		return nil, err
	}
	p.extractToXYZD50()
	p.extractA2B()

	return p, nil
}

func absDiff(a, b float64) float64 {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}

// extractTRC looks up rTRC/gTRC/bTRC. HasTRC is true only if all three are
// present, decode successfully, and all resolve to byte-equal parametric
// form; per spec this exact rule is used with no invented fallback for
// profiles that only carry one or two TRCs.
func (p *ICCProfile) extractTRC() error {
	sigs := [3]uint32{SigRTRC, SigGTRC, SigBTRC}
	var curves [3]*Curve
	allPresent := true
	for i, s := range sigs {
		tag, ok := p.GetTagBySignature(s)
		if !ok {
			allPresent = false
			continue
		}
		c, err := DecodeCurve(tag.Data)
		if err != nil {
			return err
		}
		curves[i] = c
	}
	p.TRC = curves

	if !allPresent {
		p.HasTRC = false
		return nil
	}
	for _, c := range curves {
		if c == nil || c.Kind != CurveParametric {
			p.HasTRC = false
			return nil
		}
	}
	ref := curves[0].TF
	for _, c := range curves[1:] {
		if c.TF != ref {
			p.HasTRC = false
			return nil
		}
	}
	p.HasTRC = true
	return nil
}

// extractToXYZD50 looks up rXYZ/gXYZ/bXYZ, each a type 'XYZ ' tag with
// three s15.16 fields; any missing tag leaves HasToXYZD50 false.
func (p *ICCProfile) extractToXYZD50() {
	sigs := [3]uint32{SigRXYZ, SigGXYZ, SigBXYZ}
	var cols [3][3]float64
	for i, s := range sigs {
		tag, ok := p.GetTagBySignature(s)
		if !ok || len(tag.Data) < 20 {
			p.HasToXYZD50 = false
			return
		}
		cols[i] = [3]float64{
			getS15Fixed16(tag.Data, 8),
			getS15Fixed16(tag.Data, 12),
			getS15Fixed16(tag.Data, 16),
		}
	}
	p.ToXYZD50 = Matrix3x3{
		{cols[0][0], cols[1][0], cols[2][0]},
		{cols[0][1], cols[1][1], cols[2][1]},
		{cols[0][2], cols[1][2], cols[2][2]},
	}
	p.HasToXYZD50 = true
}

// extractA2B looks up A2B0 and decodes whichever container type it holds.
// Any failure to find or decode it is recoverable: HasA2B is left false
// rather than failing the whole parse, per spec.md's error-handling design
// (a missing A2B is a normal, locally-handled case, not a fatal error).
func (p *ICCProfile) extractA2B() {
	tag, ok := p.GetTagBySignature(SigA2B0)
	if !ok {
		p.HasA2B = false
		return
	}
	a2b, err := DecodeA2B(tag.Data)
	if err != nil {
		p.HasA2B = false
		return
	}
	p.A2B = a2b
	p.HasA2B = true
}
