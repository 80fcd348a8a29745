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
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("pixelformat", validatePixelFormatTag)
	return v
}

func validatePixelFormatTag(fl validator.FieldLevel) bool {
	pf := PixelFormat(fl.Field().Int())
	_, ok := formatTable[pf]
	return ok
}

// BuildOptions describes one raster pixel transform: the source and
// destination layouts, their alpha conventions, and the colour profiles (if
// any) governing the gamut conversion between them.
type BuildOptions struct {
	SrcFormat  PixelFormat `validate:"pixelformat"`
	SrcAlpha   AlphaFormat
	SrcProfile *ICCProfile

	DstFormat  PixelFormat `validate:"pixelformat"`
	DstAlpha   AlphaFormat
	DstProfile *ICCProfile

	NumPixels int `validate:"gte=0"`
}

// Validate runs struct-tag validation over o, independent of whether the
// profiles involved are actually usable (Build checks that separately).
func (o BuildOptions) Validate() error {
	err := validate.Struct(o)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return unsupportedFeature(err.Error())
	}
	agg := &Errors{}
	for _, fe := range fieldErrs {
		agg.add(fe.Field(), fmt.Sprintf("failed '%s' validation", fe.Tag()))
	}
	return unsupportedFeature(agg.Error())
}

// Pipeline is a validated, ready-to-run raster transform: the stage list
// implied by BuildOptions has already been resolved (which stages are
// skipped, whether the destination profile needed to be massaged into
// usable form) so that Run's per-pixel loop does no further branching on
// profile shape.
type Pipeline struct {
	opts    BuildOptions
	srcInfo formatInfo
	dstInfo formatInfo

	colorManage bool // both profiles present and usable
	useSrcA2B   bool // source has no matrix/TRC; linearize via its A2B instead
	skipGamut   bool // profiles agree closely enough that gamut convert is identity
}

// Build validates opts and resolves them into a Pipeline. If both profiles
// are given, the destination profile is made usable (tabulated TRCs are
// curve-fitted, CLUT-less matrix-shaper A2Bs are collapsed) as a side
// effect; this mutates DstProfile in place, matching MakeUsableAsDestination's
// documented behavior.
func Build(opts BuildOptions) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	srcInfo, _ := opts.SrcFormat.info()
	dstInfo, _ := opts.DstFormat.info()

	colorManage := opts.SrcProfile != nil && opts.DstProfile != nil
	useSrcA2B := false
	if colorManage {
		switch {
		case opts.SrcProfile.HasTRC && opts.SrcProfile.HasToXYZD50:
			// matrix-shaper source, the common and cheapest case.
		case opts.SrcProfile.HasA2B && opts.SrcProfile.A2B.InputChannels == 3 && opts.SrcProfile.PCS == SigXYZ:
			// missing TRCs but A2B present: use the A2B path per spec.md
			// §7's recoverable case "missing TRCs when the profile has
			// A2B (use A2B path)". A2B output is already PCS-relative
			// XYZ, so no source-side matrix multiply is needed.
			useSrcA2B = true
		default:
			return nil, unsupportedFeature("source profile lacks a usable matrix/TRC or A2B representation")
		}
		if !opts.DstProfile.MakeUsableAsDestination() {
			return nil, unsupportedFeature("destination profile cannot be made usable")
		}
	}

	skipGamut := colorManage && !useSrcA2B && ApproximatelyEqual(opts.SrcProfile, opts.DstProfile)

	return &Pipeline{
		opts:        opts,
		srcInfo:     srcInfo,
		dstInfo:     dstInfo,
		colorManage: colorManage,
		useSrcA2B:   useSrcA2B,
		skipGamut:   skipGamut,
	}, nil
}

// Stages names, in execution order, the pipeline steps this build actually
// performs. It exists for diagnostics/logging, not to drive Run: the
// per-pixel math in Run is hand-written for each step rather than
// interpreting this list.
func (p *Pipeline) Stages() []string {
	stages := []string{"load"}
	if p.srcInfo.SwapRB || p.dstInfo.SwapRB {
		stages = append(stages, "swap_rb")
	}
	stages = append(stages, "force_opaque", "unpremultiply")
	if p.colorManage {
		if p.useSrcA2B {
			stages = append(stages, "source_linearize_a2b")
		} else {
			stages = append(stages, "source_linearize")
		}
		if !p.skipGamut {
			stages = append(stages, "gamut_convert")
		}
		stages = append(stages, "destination_encode")
	}
	stages = append(stages, "premultiply", "store")
	return stages
}
