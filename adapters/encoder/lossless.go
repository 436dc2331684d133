package encoder

import (
	"bytes"
	"context"

	"github.com/disintegration/imaging"

	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
)

// Imaging encodes PNG, GIF, BMP and TIFF through disintegration/imaging. The
// raster is written as-is (no channel conversion) and quality is ignored.
type Imaging struct {
	format core.Format
	target imaging.Format
}

func NewPNG() *Imaging  { return &Imaging{format: core.FormatPNG, target: imaging.PNG} }
func NewGIF() *Imaging  { return &Imaging{format: core.FormatGIF, target: imaging.GIF} }
func NewBMP() *Imaging  { return &Imaging{format: core.FormatBMP, target: imaging.BMP} }
func NewTIFF() *Imaging { return &Imaging{format: core.FormatTIFF, target: imaging.TIFF} }

func (e *Imaging) CanEncode(format core.Format) bool { return format == e.format }

func (e *Imaging) Encode(ctx context.Context, img *core.ImageData, _ core.EncodeOptions) ([]byte, error) {
	op := string(e.format) + ".encode"
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	if img == nil || img.Image == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, op, apperrors.ErrEmptyInput)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img.Image, e.target); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	return buf.Bytes(), nil
}

// Register installs the pure-Go encoders. WebP has no pure-Go encoder and is
// only available when the vips backend is registered.
func Register(reg core.Registry, defaultQuality int) {
	reg.RegisterEncoder(core.FormatJPEG, NewJPEG(defaultQuality))
	for _, e := range []*Imaging{NewPNG(), NewGIF(), NewBMP(), NewTIFF()} {
		reg.RegisterEncoder(e.format, e)
	}
}
