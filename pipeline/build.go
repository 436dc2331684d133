package pipeline

import (
	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
)

// StepFor returns the raster step implementing action. Params must already
// have passed Params.Validate for the same action. maxPixels bounds the
// canvas of steps that can grow the image.
func StepFor(action core.Action, p core.Params, maxPixels int64) (core.Step, error) {
	switch action {
	case core.ActionResize:
		return Resize(*p.Width, *p.Height), nil
	case core.ActionCrop:
		return Crop(*p.Left, *p.Top, *p.Right, *p.Bottom), nil
	case core.ActionRotate:
		return Rotate(*p.Angle, maxPixels), nil
	case core.ActionFlipHorizontal:
		return FlipHorizontal(), nil
	case core.ActionMirror:
		return Mirror(), nil
	case core.ActionFlipVertical:
		return FlipVertical(), nil
	case core.ActionGrayscale:
		return Grayscale(), nil
	case core.ActionSepia:
		return Sepia(), nil
	}
	return nil, apperrors.New(apperrors.CategoryInvalid, "pipeline.step", apperrors.ErrUnknownAction)
}

// Build assembles decode → action → encode for one transformation request.
// No raster larger than maxPixels is produced (config.DefaultMaxPixels when
// maxPixels <= 0); the source size is bounded by the registered decoders.
func Build(reg core.Registry, action core.Action, p core.Params, format core.Format, maxPixels int64, hooks ...core.Hook) (*Pipeline, error) {
	if err := p.Validate(action, maxPixels); err != nil {
		return nil, err
	}
	op, err := StepFor(action, p, maxPixels)
	if err != nil {
		return nil, err
	}

	var opts core.EncodeOptions
	if format == core.FormatJPEG && p.Quality != nil {
		opts.Quality = *p.Quality
	}

	return New().
		Use(&DecodeStep{Registry: reg}, op, &EncodeStep{Registry: reg, Format: format, Options: opts}).
		AddHook(hooks...), nil
}
