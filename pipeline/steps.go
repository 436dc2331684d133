package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
	"github.com/Skryldev/image-host/raster"
)

// ── Decode ────────────────────────────────────────────────────────────────────

// DecodeStep decodes raw bytes in img.Data into an image.Image.
type DecodeStep struct {
	Registry core.Registry
}

func (s *DecodeStep) Name() string { return "decode" }

func (s *DecodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Image != nil {
		return img, nil // already decoded
	}
	if len(img.Data) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, s.Name(), apperrors.ErrEmptyInput)
	}
	dec, ok := s.Registry.DecoderFor(img.Format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryDecode, s.Name(),
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, img.Format))
	}

	decoded, err := dec.Decode(ctx, bytes.NewReader(img.Data))
	if err != nil {
		return nil, err
	}
	decoded.Data = img.Data
	decoded.Meta.SizeBytes = int64(len(img.Data))
	return decoded, nil
}

// ── Raster operations ─────────────────────────────────────────────────────────

// opStep adapts a raster function to the Step interface.
type opStep struct {
	name string
	fn   func(image.Image) (image.Image, error)
}

func (s *opStep) Name() string { return s.name }

func (s *opStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.name, err)
	}
	if img.Image == nil {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.name, apperrors.ErrEmptyInput)
	}

	dst, err := s.fn(img.Image)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.name, err)
	}

	out := *img
	out.Image = dst
	out.Data = nil
	b := dst.Bounds()
	out.Meta.Width, out.Meta.Height = b.Dx(), b.Dy()
	return &out, nil
}

// Resize scales to exactly width×height.
func Resize(width, height int) core.Step {
	return &opStep{name: "resize", fn: func(src image.Image) (image.Image, error) {
		return raster.Resize(src, width, height)
	}}
}

// Crop extracts the box (left, top, right, bottom).
func Crop(left, top, right, bottom int) core.Step {
	return &opStep{name: "crop", fn: func(src image.Image) (image.Image, error) {
		return raster.Crop(src, left, top, right, bottom)
	}}
}

// Rotate turns the image counter-clockwise by angle degrees, expanding the
// canvas. A canvas above maxPixels is refused before it is allocated.
func Rotate(angle int, maxPixels int64) core.Step {
	return &opStep{name: "rotate", fn: func(src image.Image) (image.Image, error) {
		b := src.Bounds()
		if w, h := raster.RotatedSize(b.Dx(), b.Dy(), angle); core.ExceedsPixels(w, h, maxPixels) {
			return nil, apperrors.New(apperrors.CategoryInvalid, "rotate", apperrors.ErrImageTooLarge)
		}
		return raster.Rotate(src, angle), nil
	}}
}

// FlipHorizontal reflects across the vertical axis.
func FlipHorizontal() core.Step {
	return &opStep{name: "flip_horizontal", fn: func(src image.Image) (image.Image, error) {
		return raster.FlipHorizontal(src), nil
	}}
}

// Mirror produces the same pixels as FlipHorizontal under its own step name.
func Mirror() core.Step {
	return &opStep{name: "mirror", fn: func(src image.Image) (image.Image, error) {
		return raster.Mirror(src), nil
	}}
}

// FlipVertical reflects across the horizontal axis.
func FlipVertical() core.Step {
	return &opStep{name: "flip_vertical", fn: func(src image.Image) (image.Image, error) {
		return raster.FlipVertical(src), nil
	}}
}

// Grayscale desaturates to an opaque three-channel image.
func Grayscale() core.Step {
	return &opStep{name: "grayscale", fn: func(src image.Image) (image.Image, error) {
		return raster.Grayscale(src), nil
	}}
}

// Sepia applies the sepia tone matrix.
func Sepia() core.Step {
	return &opStep{name: "sepia", fn: func(src image.Image) (image.Image, error) {
		return raster.Sepia(src), nil
	}}
}

// ── Encode ────────────────────────────────────────────────────────────────────

// EncodeStep serialises the image.Image into Format using the registry.
type EncodeStep struct {
	Registry core.Registry
	Format   core.Format
	Options  core.EncodeOptions
}

func (s *EncodeStep) Name() string { return "encode" }

func (s *EncodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	enc, ok := s.Registry.EncoderFor(s.Format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryInvalid, s.Name(),
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, s.Format))
	}

	data, err := enc.Encode(ctx, img, s.Options)
	if err != nil {
		return nil, err
	}

	out := *img
	out.Data = data
	out.Format = s.Format
	out.Meta.Format = s.Format
	out.Meta.SizeBytes = int64(len(data))
	return &out, nil
}
