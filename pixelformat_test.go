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

import "testing"

func TestPixelFormatBytesPerPixel(t *testing.T) {
	tests := []struct {
		f    PixelFormat
		want int
	}{
		{PixelFormatRGB565, 2},
		{PixelFormatRGB888, 3},
		{PixelFormatRGBA8888, 4},
		{PixelFormatRGBA1010102, 4},
		{PixelFormatRGB101010x, 4},
		{PixelFormatRGB161616, 6},
		{PixelFormatRGBA16161616, 8},
		{PixelFormatRGBhhh, 6},
		{PixelFormatRGBAhhhh, 8},
		{PixelFormatRGBfff, 12},
		{PixelFormatRGBAffff, 16},
	}
	for _, tt := range tests {
		if got := tt.f.BytesPerPixel(); got != tt.want {
			t.Errorf("%v.BytesPerPixel() = %d, want %d", tt.f, got, tt.want)
		}
	}
}

func TestPixelFormatHasAlpha(t *testing.T) {
	if !PixelFormatRGBA8888.HasAlpha() {
		t.Error("RGBA8888 should have alpha")
	}
	if PixelFormatRGB888.HasAlpha() {
		t.Error("RGB888 should not have alpha")
	}
	if PixelFormatRGB101010x.HasAlpha() {
		t.Error("RGB101010x should not have alpha despite carrying 4 channels of bits")
	}
	if !PixelFormatRGBA1010102.HasAlpha() {
		t.Error("RGBA1010102 should have alpha")
	}
}

func TestPixelFormatInvalidBytesPerPixel(t *testing.T) {
	if got := PixelFormat(-1).BytesPerPixel(); got != 0 {
		t.Errorf("invalid format BytesPerPixel() = %d, want 0", got)
	}
}

func TestPixelFormatSwapRBConsistency(t *testing.T) {
	rgb, _ := PixelFormatRGBA8888.info()
	bgr, _ := PixelFormatBGRA8888.info()
	if rgb.SwapRB {
		t.Error("RGBA8888 should not swap R/B")
	}
	if !bgr.SwapRB {
		t.Error("BGRA8888 should swap R/B")
	}
	if rgb.BytesPerPixel != bgr.BytesPerPixel {
		t.Error("RGBA8888 and BGRA8888 should have the same pixel size")
	}
}
