// Package decoder provides format-specific image decoders.
package decoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
)

// Std decodes one format with a pure-Go codec from the standard library or
// golang.org/x/image. The header is read first and sources larger than
// MaxPixels are refused before any pixel buffer is allocated.
type Std struct {
	format core.Format
	config func(io.Reader) (image.Config, error)
	decode func(io.Reader) (image.Image, error)

	// MaxPixels bounds width*height; <= 0 means config.DefaultMaxPixels.
	MaxPixels int64
}

// NewJPEG returns a JPEG decoder.
func NewJPEG() *Std {
	return &Std{format: core.FormatJPEG, config: jpeg.DecodeConfig, decode: jpeg.Decode}
}

// NewPNG returns a PNG decoder.
func NewPNG() *Std { return &Std{format: core.FormatPNG, config: png.DecodeConfig, decode: png.Decode} }

// NewGIF returns a decoder for the first frame of a GIF.
func NewGIF() *Std { return &Std{format: core.FormatGIF, config: gif.DecodeConfig, decode: gif.Decode} }

// NewBMP returns a BMP decoder.
func NewBMP() *Std { return &Std{format: core.FormatBMP, config: bmp.DecodeConfig, decode: bmp.Decode} }

// NewTIFF returns a TIFF decoder.
func NewTIFF() *Std {
	return &Std{format: core.FormatTIFF, config: tiff.DecodeConfig, decode: tiff.Decode}
}

// NewWebP returns a WebP decoder.
// NOTE: golang.org/x/image/webp does not decode animated WebP.
func NewWebP() *Std {
	return &Std{format: core.FormatWebP, config: webp.DecodeConfig, decode: webp.Decode}
}

// Register installs a decoder for every format above, each refusing sources
// larger than maxPixels.
func Register(reg core.Registry, maxPixels int64) {
	for _, d := range []*Std{NewJPEG(), NewPNG(), NewGIF(), NewBMP(), NewTIFF(), NewWebP()} {
		d.MaxPixels = maxPixels
		reg.RegisterDecoder(d.format, d)
	}
}

func (d *Std) CanDecode(format core.Format) bool { return format == d.format }

func (d *Std) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	op := string(d.format) + ".decode"
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}

	// The header bytes consumed by DecodeConfig are replayed for Decode.
	var head bytes.Buffer
	cfg, err := d.config(io.TeeReader(r, &head))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	if core.ExceedsPixels(cfg.Width, cfg.Height, d.MaxPixels) {
		return nil, apperrors.New(apperrors.CategoryInvalid, op,
			fmt.Errorf("%w: %dx%d", apperrors.ErrImageTooLarge, cfg.Width, cfg.Height))
	}

	img, err := d.decode(io.MultiReader(&head, r))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}

	bounds := img.Bounds()
	return &core.ImageData{
		Image:  img,
		Format: d.format,
		Meta: core.Metadata{
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
			Format:     d.format,
			ColorSpace: ColorSpace(img),
			HasAlpha:   HasAlpha(img),
		},
	}, nil
}

// ColorSpace returns the colour space of an image.Image.
func ColorSpace(img image.Image) core.ColorSpace {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return core.ColorSpaceGray
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return core.ColorSpaceRGBA
	case *image.CMYK:
		return core.ColorSpaceCMYK
	}
	return core.ColorSpaceRGB
}

// HasAlpha reports whether img carries transparency information.
func HasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	switch img.(type) {
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64, *image.Paletted:
		return true
	}
	return false
}
