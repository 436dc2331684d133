package encoder

import (
	"bytes"
	"context"

	"github.com/disintegration/imaging"

	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
	"github.com/Skryldev/image-host/raster"
)

// DefaultQuality is the JPEG quality used when neither the request nor the
// encoder configuration supplies one.
const DefaultQuality = 85

// JPEG encodes images to JPEG format. Alpha is dropped before encoding; the
// stored colour values are kept rather than composited onto a background.
type JPEG struct {
	DefaultQuality int // used when EncodeOptions.Quality == 0
}

func NewJPEG(defaultQuality int) *JPEG {
	if defaultQuality <= 0 {
		defaultQuality = DefaultQuality
	}
	return &JPEG{DefaultQuality: defaultQuality}
}

func (j *JPEG) CanEncode(format core.Format) bool {
	return format == core.FormatJPEG
}

func (j *JPEG) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "jpeg.encode", err)
	}
	if img == nil || img.Image == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, "jpeg.encode", apperrors.ErrEmptyInput)
	}

	quality := opts.Quality
	if quality == 0 {
		quality = j.DefaultQuality
	}
	if quality < core.MinQuality || quality > core.MaxQuality {
		return nil, apperrors.New(apperrors.CategoryInvalid, "jpeg.encode", apperrors.ErrQualityRange)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, raster.FlattenRGB(img.Image), imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "jpeg.encode", err)
	}
	return buf.Bytes(), nil
}
