package core

import (
	"errors"
	"net/url"
	"strconv"

	"github.com/Skryldev/image-host/config"
	apperrors "github.com/Skryldev/image-host/errors"
)

const (
	MinQuality = 1
	MaxQuality = 95
)

// Params are the optional request arguments of a transformation. A nil field
// means "not supplied".
type Params struct {
	Width, Height            *int
	Left, Top, Right, Bottom *int
	Angle                    *int
	Quality                  *int
}

// Validate checks that every parameter the action needs is present and
// well-formed, and that a resize target stays within maxPixels. Parameters
// the action does not use are ignored.
func (p Params) Validate(action Action, maxPixels int64) error {
	const op = "params.validate"
	invalid := func(msg string) error {
		return apperrors.New(apperrors.CategoryInvalid, op, errors.New(msg))
	}

	switch action {
	case ActionResize:
		if p.Width == nil || p.Height == nil {
			return invalid("Width and height required")
		}
		if *p.Width <= 0 || *p.Height <= 0 {
			return invalid("Width and height must be positive")
		}
		if ExceedsPixels(*p.Width, *p.Height, maxPixels) {
			return apperrors.New(apperrors.CategoryInvalid, op, apperrors.ErrImageTooLarge)
		}
	case ActionCrop:
		if p.Left == nil || p.Top == nil || p.Right == nil || p.Bottom == nil {
			return invalid("Crop coordinates required")
		}
		if *p.Left >= *p.Right || *p.Top >= *p.Bottom {
			return invalid("Crop box must satisfy left < right and top < bottom")
		}
		if *p.Left < 0 || *p.Top < 0 {
			return invalid("Crop coordinates must not be negative")
		}
	case ActionRotate:
		if p.Angle == nil {
			return invalid("Angle required")
		}
	case ActionFlipHorizontal, ActionFlipVertical, ActionMirror, ActionGrayscale, ActionSepia:
	default:
		return apperrors.New(apperrors.CategoryInvalid, op, apperrors.ErrUnknownAction)
	}

	if p.Quality != nil && (*p.Quality < MinQuality || *p.Quality > MaxQuality) {
		return apperrors.New(apperrors.CategoryInvalid, op, apperrors.ErrQualityRange)
	}
	return nil
}

// ExceedsPixels reports whether a width×height raster holds more than
// maxPixels pixels. maxPixels <= 0 selects config.DefaultMaxPixels.
func ExceedsPixels(width, height int, maxPixels int64) bool {
	if maxPixels <= 0 {
		maxPixels = config.DefaultMaxPixels
	}
	if width <= 0 || height <= 0 {
		return false
	}
	return int64(width) > maxPixels/int64(height)
}

// relevant lists the parameter names each action reads.
var relevant = map[Action][]string{
	ActionResize: {"width", "height"},
	ActionCrop:   {"left", "top", "right", "bottom"},
	ActionRotate: {"angle"},
}

func (p Params) lookup(name string) *int {
	switch name {
	case "width":
		return p.Width
	case "height":
		return p.Height
	case "left":
		return p.Left
	case "top":
		return p.Top
	case "right":
		return p.Right
	case "bottom":
		return p.Bottom
	case "angle":
		return p.Angle
	}
	return nil
}

// Canonical returns the dedup representation of a request: the action's
// supplied parameters, the normalised output format and, for JPEG, the
// quality when one was supplied. Keys are sorted and integers are written in
// plain base 10, so logically equal requests always serialise identically.
//
//	Canonical(ActionResize, {Width: 100, Height: 50}, FormatJPEG)
//	  == "height=50&output_format=jpeg&width=100"
func Canonical(action Action, p Params, format Format) string {
	v := url.Values{}
	for _, name := range relevant[action] {
		if n := p.lookup(name); n != nil {
			v.Set(name, strconv.Itoa(*n))
		}
	}
	v.Set("output_format", string(format))
	if format == FormatJPEG && p.Quality != nil {
		v.Set("quality", strconv.Itoa(*p.Quality))
	}
	return v.Encode()
}

// IntPtr is a small helper for building Params literals.
func IntPtr(n int) *int { return &n }
