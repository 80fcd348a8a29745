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
	"math"
	"testing"
)

func TestHalfToFloat32KnownValues(t *testing.T) {
	tests := []struct {
		h    uint16
		want float32
	}{
		{0x0000, 0},
		{0x3c00, 1.0},
		{0x3800, 0.5},
		{0xc000, -2.0},
		{0xbc00, -1.0},
	}
	for _, tt := range tests {
		if got := halfToFloat32(tt.h); got != tt.want {
			t.Errorf("halfToFloat32(%#04x) = %v, want %v", tt.h, got, tt.want)
		}
	}
}

func TestHalfToFloat32Denormals(t *testing.T) {
	// denormals flush to signed zero.
	if got := halfToFloat32(0x0001); got != 0 {
		t.Errorf("smallest denormal decoded to %v, want 0", got)
	}
	if got := halfToFloat32(0x8001); got != 0 || math.Signbit(float64(got)) == false {
		t.Errorf("negative denormal should flush to signed zero, got %v", got)
	}
}

func TestHalfToFloat32InfAndNaN(t *testing.T) {
	if got := halfToFloat32(0x7c00); !math.IsInf(float64(got), 1) {
		t.Errorf("0x7c00 = %v, want +Inf", got)
	}
	if got := halfToFloat32(0xfc00); !math.IsInf(float64(got), -1) {
		t.Errorf("0xfc00 = %v, want -Inf", got)
	}
	if got := halfToFloat32(0x7c01); !math.IsNaN(float64(got)) {
		t.Errorf("0x7c01 = %v, want NaN", got)
	}
}

func TestFloat32ToHalfKnownValues(t *testing.T) {
	tests := []struct {
		f    float32
		want uint16
	}{
		{0, 0x0000},
		{1.0, 0x3c00},
		{0.5, 0x3800},
		{-2.0, 0xc000},
		{-1.0, 0xbc00},
	}
	for _, tt := range tests {
		if got := float32ToHalf(tt.f); got != tt.want {
			t.Errorf("float32ToHalf(%v) = %#04x, want %#04x", tt.f, got, tt.want)
		}
	}
}

func TestFloat32ToHalfSaturatesOverflow(t *testing.T) {
	if got := float32ToHalf(1e30); got != 0x7c00 {
		t.Errorf("huge value = %#04x, want +Inf half (0x7c00)", got)
	}
	if got := float32ToHalf(-1e30); got != 0xfc00 {
		t.Errorf("huge negative value = %#04x, want -Inf half (0xfc00)", got)
	}
}

func TestFloat32ToHalfFlushesUnderflow(t *testing.T) {
	if got := float32ToHalf(1e-30); got != 0 {
		t.Errorf("tiny value = %#04x, want 0", got)
	}
}

func TestHalfRoundTripNearValues(t *testing.T) {
	// exactly representable half-precision values should survive a round trip.
	for _, f := range []float32{0, 1, -1, 0.5, 0.25, 2, -8, 0.125} {
		h := float32ToHalf(f)
		back := halfToFloat32(h)
		if back != f {
			t.Errorf("round trip %v -> %#04x -> %v", f, h, back)
		}
	}
}

func TestHalfToFloat32OrdersS3Fixture(t *testing.T) {
	// the S3 fixture values from spec.md's half-float scenario: 0x1805
	// rounds its low bit up, 0x1804 rounds it down, when requantized to 8
	// bits elsewhere; here we just check the half<->float decode agrees
	// with hand-computed values used by that scenario.
	got5 := halfToFloat32(0x1805)
	got4 := halfToFloat32(0x1804)
	if got5 <= got4 {
		t.Errorf("0x1805 (%v) should decode larger than 0x1804 (%v)", got5, got4)
	}
}
