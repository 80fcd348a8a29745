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
	"testing"
)

// testProfileTag is one tag to be placed in a synthetic profile built by
// buildTestProfile.
type testProfileTag struct {
	sig  uint32
	data []byte
}

func xyzTag(x, y, z float64) []byte {
	buf := make([]byte, 20)
	copy(buf[0:4], "XYZ ")
	putS15Fixed16(buf, 8, x)
	putS15Fixed16(buf, 12, y)
	putS15Fixed16(buf, 16, z)
	return buf
}

// buildTestProfile assembles a minimal but structurally valid ICC profile:
// a 128-byte header, a tag count, a tag table, and the tag data itself,
// padding every tag's data to a 4-byte boundary the way real ICC profiles
// do. version's top byte is the major version field validated by Parse.
func buildTestProfile(version uint32, dataColorSpace, pcs uint32, tags []testProfileTag) []byte {
	const tagTableOffset = headerSize + 4
	tagTableBytes := len(tags) * tagTableEntrySize
	dataStart := tagTableOffset + tagTableBytes

	// lay out each tag's data, padding to 4-byte boundaries.
	offsets := make([]int, len(tags))
	pos := dataStart
	for i, tg := range tags {
		offsets[i] = pos
		pos += len(tg.data)
		if pad := pos % 4; pad != 0 {
			pos += 4 - pad
		}
	}
	total := pos

	buf := make([]byte, total)
	putUint32(buf, 0, uint32(total))
	putUint32(buf, 8, version)
	putUint32(buf, 16, dataColorSpace)
	putUint32(buf, 20, pcs)
	copy(buf[36:40], "acsp")
	// D50 illuminant, exact.
	putS15Fixed16(buf, 68, 0.9642)
	putS15Fixed16(buf, 72, 1.0000)
	putS15Fixed16(buf, 76, 0.8249)
	putUint32(buf, headerSize, uint32(len(tags)))

	for i, tg := range tags {
		off := tagTableOffset + i*tagTableEntrySize
		putUint32(buf, off, tg.sig)
		putUint32(buf, off+4, uint32(offsets[i]))
		putUint32(buf, off+8, uint32(len(tg.data)))
		copy(buf[offsets[i]:offsets[i]+len(tg.data)], tg.data)
	}

	return buf
}

func srgbMatrixShaperProfile() []byte {
	trc := EncodeParametric(SRGBTransferFunction)
	m := SRGBProfile().ToXYZD50
	return buildTestProfile(0x04300000, SigRGB, SigXYZ, []testProfileTag{
		{SigRTRC, trc},
		{SigGTRC, trc},
		{SigBTRC, trc},
		{SigRXYZ, xyzTag(m[0][0], m[1][0], m[2][0])},
		{SigGXYZ, xyzTag(m[0][1], m[1][1], m[2][1])},
		{SigBXYZ, xyzTag(m[0][2], m[1][2], m[2][2])},
	})
}

func TestParseSRGBLikeProfile(t *testing.T) {
	// S5: parsing a standard sRGB-shaped profile succeeds with HasTRC and
	// HasToXYZD50 true, and the three TRCs byte-equal to the canonical sRGB
	// parametric form.
	p, err := Parse(srgbMatrixShaperProfile())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !p.HasTRC {
		t.Error("HasTRC = false, want true")
	}
	if !p.HasToXYZD50 {
		t.Error("HasToXYZD50 = false, want true")
	}
	for i, c := range p.TRC {
		if c == nil || c.Kind != CurveParametric || !bytes.Equal(EncodeParametric(c.TF), EncodeParametric(SRGBTransferFunction)) {
			t.Errorf("TRC[%d] = %+v, want canonical sRGB parametric", i, c)
		}
	}
	// xyzTag stores each matrix entry as s15.16, exact to 1/65536.
	if !p.ToXYZD50.ApproximatelyEqual(SRGBProfile().ToXYZD50, 1.0/65536) {
		t.Errorf("ToXYZD50 = %+v, want %+v", p.ToXYZD50, SRGBProfile().ToXYZD50)
	}
}

func TestParseRejectsICCMax(t *testing.T) {
	// S6: a v5 "iccMAX" profile must fail cleanly.
	data := srgbMatrixShaperProfile()
	putUint32(data, 8, 0x05000000)
	_, err := Parse(data)
	if err == nil {
		t.Fatal("expected failure parsing an iccMAX (v5) profile")
	}
	var cmsErr *Error
	if e, ok := err.(*Error); ok {
		cmsErr = e
	}
	if cmsErr == nil || cmsErr.Kind != UnsupportedVersion {
		t.Errorf("error kind = %v, want UnsupportedVersion", err)
	}
}

func TestParseRejectsShortBuffer(t *testing.T) {
	_, err := Parse(make([]byte, 10))
	if err == nil {
		t.Fatal("expected failure for too-short buffer")
	}
}

func TestParseRejectsBadSignature(t *testing.T) {
	data := srgbMatrixShaperProfile()
	copy(data[36:40], "xxxx")
	_, err := Parse(data)
	if err == nil {
		t.Fatal("expected failure for missing 'acsp' signature")
	}
}

func TestParseRejectsBadIlluminant(t *testing.T) {
	data := srgbMatrixShaperProfile()
	putS15Fixed16(data, 68, 0.5) // not D50
	_, err := Parse(data)
	if err == nil {
		t.Fatal("expected failure for non-D50 illuminant")
	}
}

func TestParseRejectsOverflowingTagTable(t *testing.T) {
	data := srgbMatrixShaperProfile()
	// corrupt the first tag's declared size so offset+size overflows.
	putUint32(data, tagTableBase+8, 0xffffffff)
	_, err := Parse(data)
	if err == nil {
		t.Fatal("expected failure for tag table entry overflowing the buffer")
	}
}

func TestParseMissingTRCLeavesHasTRCFalse(t *testing.T) {
	m := SRGBProfile().ToXYZD50
	data := buildTestProfile(0x04300000, SigRGB, SigXYZ, []testProfileTag{
		{SigRXYZ, xyzTag(m[0][0], m[1][0], m[2][0])},
		{SigGXYZ, xyzTag(m[0][1], m[1][1], m[2][1])},
		{SigBXYZ, xyzTag(m[0][2], m[1][2], m[2][2])},
	})
	p, err := Parse(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if p.HasTRC {
		t.Error("HasTRC should be false when no TRC tags are present")
	}
	if !p.HasToXYZD50 {
		t.Error("HasToXYZD50 should still be true")
	}
}

func TestParseMismatchedTRCsLeavesHasTRCFalse(t *testing.T) {
	rTRC := EncodeParametric(TransferFunction{G: 2.2, A: 1})
	gTRC := EncodeParametric(TransferFunction{G: 1.8, A: 1})
	bTRC := EncodeParametric(TransferFunction{G: 2.2, A: 1})
	data := buildTestProfile(0x04300000, SigRGB, SigXYZ, []testProfileTag{
		{SigRTRC, rTRC}, {SigGTRC, gTRC}, {SigBTRC, bTRC},
	})
	p, err := Parse(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if p.HasTRC {
		t.Error("HasTRC should be false when the three TRCs disagree")
	}
}

func TestGetTagBySignatureAndIndex(t *testing.T) {
	p, err := Parse(srgbMatrixShaperProfile())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if p.NumTags() != 6 {
		t.Fatalf("NumTags = %d, want 6", p.NumTags())
	}
	tag, ok := p.GetTagBySignature(SigRTRC)
	if !ok {
		t.Fatal("rTRC tag not found")
	}
	if tag.Signature != SigRTRC {
		t.Errorf("tag.Signature = %#x, want %#x", tag.Signature, SigRTRC)
	}
	if _, err := p.GetTagByIndex(1000); err == nil {
		t.Error("expected error for out-of-range tag index")
	}
	if _, ok := p.GetTagBySignature(sig("zzzz")); ok {
		t.Error("unexpected tag found for unused signature")
	}
}

func TestApproximatelyEqualSRGBSingleton(t *testing.T) {
	// Property 4.
	if !ApproximatelyEqual(SRGBProfile(), SRGBProfile()) {
		t.Error("ApproximatelyEqual(sRGB, sRGB) must be true")
	}
}

func TestApproximatelyEqualParsedSRGBMatchesSingleton(t *testing.T) {
	p, err := Parse(srgbMatrixShaperProfile())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !ApproximatelyEqual(p, SRGBProfile()) {
		t.Error("a parsed sRGB-shaped profile should be ApproximatelyEqual to the sRGB singleton")
	}
}

func TestApproximatelyEqualDiffersForDifferentTRC(t *testing.T) {
	p, err := Parse(srgbMatrixShaperProfile())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	adobeLike := NewParametricCurve(TransferFunction{G: 2.2, A: 1})
	p.TRC = [3]*Curve{adobeLike, adobeLike, adobeLike}
	if ApproximatelyEqual(p, SRGBProfile()) {
		t.Error("profiles with different TRCs should not be ApproximatelyEqual")
	}
}

func TestMakeUsableAsDestinationWithTabulatedTRC(t *testing.T) {
	curve := srgbTabulatedCurve(1024)
	m := SRGBProfile().ToXYZD50
	p := &ICCProfile{
		DataColorSpace: SigRGB,
		PCS:            SigXYZ,
		HasTRC:         false,
		TRC:            [3]*Curve{curve, curve, curve},
		HasToXYZD50:    true,
		ToXYZD50:       m,
	}
	if !p.MakeUsableAsDestination() {
		t.Fatal("MakeUsableAsDestination should succeed by fitting the tabulated TRC")
	}
	if !p.HasTRC {
		t.Error("HasTRC should now be true")
	}
	for _, c := range p.TRC {
		if c.Kind != CurveParametric {
			t.Error("all TRCs should now be parametric")
		}
		if _, ok := c.TF.Invert(); !ok {
			t.Error("fitted TRC should be invertible")
		}
	}
}

func TestMakeUsableAsDestinationFailsWithoutMatrix(t *testing.T) {
	curve := NewParametricCurve(SRGBTransferFunction)
	p := &ICCProfile{
		HasTRC:      true,
		TRC:         [3]*Curve{curve, curve, curve},
		HasToXYZD50: false,
	}
	if p.MakeUsableAsDestination() {
		t.Error("expected failure without a toXYZD50 matrix or A2B to derive one")
	}
}

func TestMakeUsableAsDestinationWithSingleCurve(t *testing.T) {
	curve := srgbTabulatedCurve(1024)
	m := SRGBProfile().ToXYZD50
	p := &ICCProfile{
		DataColorSpace: SigRGB,
		PCS:            SigXYZ,
		TRC:            [3]*Curve{curve, curve, curve},
		HasToXYZD50:    true,
		ToXYZD50:       m,
	}
	if !p.MakeUsableAsDestinationWithSingleCurve() {
		t.Fatal("expected single-curve derivation to succeed for three identical tabulated TRCs")
	}
	if p.TRC[0] != p.TRC[1] || p.TRC[1] != p.TRC[2] {
		t.Error("all three TRC pointers should now be identical (shared curve)")
	}
}

func TestDecodeMFT1EvalInRange(t *testing.T) {
	data := buildMFT1Fixture()
	a2b, err := DecodeA2B(data)
	if err != nil {
		t.Fatalf("decode mft1: %v", err)
	}
	out, err := a2b.Eval([]float64{0.5, 0.5, 0.5})
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	for i, v := range out {
		if math.IsNaN(v) || v < 0 || v > 1 {
			t.Errorf("output[%d] = %v out of range", i, v)
		}
	}
}

// buildMFT1Fixture builds a minimal identity-ish 'mft1' (lut8Type) tag: 2
// input/output points per axis, identity input/output curves, and a CLUT
// that passes its 3 inputs straight through.
func buildMFT1Fixture() []byte {
	const inputChannels = 3
	const outputChannels = 3
	const gridPoints = 2
	header := make([]byte, mftCommonHeaderSize)
	copy(header[0:4], "mft1")
	header[8] = inputChannels
	header[9] = outputChannels
	header[10] = gridPoints
	off := 12
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			v := 0.0
			if r == c {
				v = 1.0
			}
			putS15Fixed16(header, off, v)
			off += 4
		}
	}

	identityTable := make([]byte, 256)
	for i := range identityTable {
		identityTable[i] = byte(i)
	}

	buf := append([]byte{}, header...)
	for c := 0; c < inputChannels; c++ {
		buf = append(buf, identityTable...)
	}

	gridSize := 1
	for i := 0; i < inputChannels; i++ {
		gridSize *= gridPoints
	}
	clut := make([]byte, gridSize*outputChannels)
	for corner := 0; corner < gridSize; corner++ {
		for ch := 0; ch < outputChannels; ch++ {
			// tetrahedralInterp3D puts r at the corner's high bit.
			bit := (corner >> (2 - ch)) & 1
			v := byte(0)
			if bit == 1 {
				v = 255
			}
			clut[corner*outputChannels+ch] = v
		}
	}
	buf = append(buf, clut...)

	for c := 0; c < outputChannels; c++ {
		buf = append(buf, identityTable...)
	}

	return buf
}

// FuzzParse checks that Parse never panics on arbitrary input, seeded with
// the synthetic profiles built elsewhere in this file plus truncations of
// them; a well-formed profile should round-trip to a non-nil result, and
// any other input should return an error rather than crash.
func FuzzParse(f *testing.F) {
	good := srgbMatrixShaperProfile()
	f.Add(good)
	f.Add(good[:len(good)/2])
	f.Add([]byte{})
	f.Add(make([]byte, 128))
	f.Fuzz(func(t *testing.T, a []byte) {
		p, err := Parse(a)
		if err != nil {
			if p != nil {
				t.Errorf("Parse returned a non-nil profile alongside error %v", err)
			}
			return
		}
		if p == nil {
			t.Errorf("Parse returned nil profile with nil error")
		}
	})
}
