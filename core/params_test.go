package core_test

import (
	"testing"

	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
)

var ip = core.IntPtr

func TestCanonical(t *testing.T) {
	tests := []struct {
		name   string
		action core.Action
		params core.Params
		format core.Format
		want   string
	}{
		{"resize", core.ActionResize, core.Params{Width: ip(100), Height: ip(50)}, core.FormatJPEG,
			"height=50&output_format=jpeg&width=100"},
		{"resize with quality", core.ActionResize, core.Params{Width: ip(100), Height: ip(50), Quality: ip(70)}, core.FormatJPEG,
			"height=50&output_format=jpeg&quality=70&width=100"},
		{"quality ignored for png", core.ActionResize, core.Params{Width: ip(100), Height: ip(50), Quality: ip(70)}, core.FormatPNG,
			"height=50&output_format=png&width=100"},
		{"irrelevant params dropped", core.ActionRotate, core.Params{Angle: ip(-90), Width: ip(3)}, core.FormatPNG,
			"angle=-90&output_format=png"},
		{"crop", core.ActionCrop, core.Params{Left: ip(0), Top: ip(5), Right: ip(10), Bottom: ip(20)}, core.FormatGIF,
			"bottom=20&left=0&output_format=gif&right=10&top=5"},
		{"no params", core.ActionMirror, core.Params{}, core.FormatJPEG, "output_format=jpeg"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := core.Canonical(tc.action, tc.params, tc.format); got != tc.want {
				t.Errorf("Canonical = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCanonicalIsOrderIndependent(t *testing.T) {
	a := core.Params{}
	a.Height = ip(20)
	a.Width = ip(10)
	b := core.Params{Width: ip(10), Height: ip(20)}

	if core.Canonical(core.ActionResize, a, core.FormatJPEG) != core.Canonical(core.ActionResize, b, core.FormatJPEG) {
		t.Error("logically identical params produced different keys")
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		action  core.Action
		params  core.Params
		wantErr bool
	}{
		{"resize ok", core.ActionResize, core.Params{Width: ip(1), Height: ip(1)}, false},
		{"resize missing height", core.ActionResize, core.Params{Width: ip(1)}, true},
		{"resize zero width", core.ActionResize, core.Params{Width: ip(0), Height: ip(1)}, true},
		{"resize at pixel limit", core.ActionResize, core.Params{Width: ip(400), Height: ip(250)}, false},
		{"resize over pixel limit", core.ActionResize, core.Params{Width: ip(401), Height: ip(250)}, true},
		{"resize huge width", core.ActionResize, core.Params{Width: ip(1 << 40), Height: ip(1)}, true},
		{"crop missing bottom", core.ActionCrop, core.Params{Left: ip(0), Top: ip(0), Right: ip(1)}, true},
		{"crop inverted", core.ActionCrop, core.Params{Left: ip(5), Top: ip(0), Right: ip(1), Bottom: ip(4)}, true},
		{"crop negative", core.ActionCrop, core.Params{Left: ip(-1), Top: ip(0), Right: ip(1), Bottom: ip(4)}, true},
		{"rotate missing angle", core.ActionRotate, core.Params{}, true},
		{"rotate negative angle", core.ActionRotate, core.Params{Angle: ip(-45)}, false},
		{"grayscale", core.ActionGrayscale, core.Params{}, false},
		{"quality 0", core.ActionMirror, core.Params{Quality: ip(0)}, true},
		{"quality 1", core.ActionMirror, core.Params{Quality: ip(1)}, false},
		{"quality 95", core.ActionMirror, core.Params{Quality: ip(95)}, false},
		{"quality 96", core.ActionMirror, core.Params{Quality: ip(96)}, true},
		{"unknown action", core.Action("blur"), core.Params{}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.params.Validate(tc.action, 100_000)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !apperrors.IsCategory(err, apperrors.CategoryInvalid) {
				t.Errorf("category: got %s, want invalid", apperrors.CategoryOf(err))
			}
		})
	}

	err := core.Params{Width: ip(1 << 40), Height: ip(1)}.Validate(core.ActionResize, 0)
	if !apperrors.Is(err, apperrors.ErrImageTooLarge) {
		t.Errorf("default limit: got %v, want ErrImageTooLarge", err)
	}
}

func TestExceedsPixels(t *testing.T) {
	tests := []struct {
		w, h int
		max  int64
		want bool
	}{
		{100, 100, 10_000, false},
		{101, 100, 10_000, true},
		{1 << 40, 1 << 40, 10_000, true},
		{1, 1 << 40, 0, true},
		{8000, 5000, 0, false},
		{0, 5, 1, false},
	}
	for _, tc := range tests {
		if got := core.ExceedsPixels(tc.w, tc.h, tc.max); got != tc.want {
			t.Errorf("ExceedsPixels(%d, %d, %d) = %v, want %v", tc.w, tc.h, tc.max, got, tc.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want core.Format
	}{
		{"jpeg", core.FormatJPEG},
		{"JPG", core.FormatJPEG},
		{"Png", core.FormatPNG},
		{"tif", core.FormatTIFF},
		{"webp", core.FormatWebP},
	}
	for _, tc := range tests {
		got, err := core.ParseFormat(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseFormat(%q) = %s, %v; want %s", tc.in, got, err, tc.want)
		}
	}
	if _, err := core.ParseFormat("svg"); !apperrors.IsCategory(err, apperrors.CategoryInvalid) {
		t.Errorf("ParseFormat(svg): expected invalid error, got %v", err)
	}
}

func TestParseAction(t *testing.T) {
	if _, err := core.ParseAction("flip_horizontal"); err != nil {
		t.Errorf("flip_horizontal: %v", err)
	}
	if _, err := core.ParseAction("Resize"); !apperrors.Is(err, apperrors.ErrUnknownAction) {
		t.Errorf("Resize: expected ErrUnknownAction, got %v", err)
	}
}
