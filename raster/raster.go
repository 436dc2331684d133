// Package raster implements the pixel operations behind each transformation
// action. Every function is pure: it never mutates its input and returns a
// fresh *image.NRGBA (or *image.RGBA for per-pixel colour transforms).
package raster

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/disintegration/imaging"

	apperrors "github.com/Skryldev/image-host/errors"
)

// Resize scales src to exactly width×height, ignoring aspect ratio.
func Resize(src image.Image, width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, apperrors.New(apperrors.CategoryInvalid, "raster.resize",
			fmt.Errorf("%w: %dx%d", apperrors.ErrInvalidDimensions, width, height))
	}
	return imaging.Resize(src, width, height, imaging.CatmullRom), nil
}

// Crop extracts the box [left,right)×[top,bottom) in src's coordinate space.
// Boxes that are inverted, empty or reach outside the image are rejected.
func Crop(src image.Image, left, top, right, bottom int) (*image.NRGBA, error) {
	b := src.Bounds()
	box := image.Rect(left, top, right, bottom).Add(b.Min)
	if left >= right || top >= bottom || !box.In(b) {
		return nil, apperrors.New(apperrors.CategoryInvalid, "raster.crop",
			fmt.Errorf("crop box (%d, %d, %d, %d) is outside the %dx%d image", left, top, right, bottom, b.Dx(), b.Dy()))
	}
	return imaging.Crop(src, box), nil
}

// Rotate turns src counter-clockwise by angle degrees and grows the canvas so
// no pixel is clipped. Uncovered corners are black for opaque sources and
// transparent otherwise.
func Rotate(src image.Image, angle int) *image.NRGBA {
	var bg color.Color = color.Transparent
	if isOpaque(src) {
		bg = color.Black
	}
	return imaging.Rotate(src, float64(angle), bg)
}

// RotatedSize bounds the canvas Rotate allocates for a width×height source
// turned by angle degrees. It never underestimates.
func RotatedSize(width, height, angle int) (int, int) {
	sin, cos := math.Sincos(float64(angle) * math.Pi / 180)
	sin, cos = math.Abs(sin), math.Abs(cos)
	w, h := float64(width), float64(height)
	return int(math.Ceil(w*cos+h*sin)) + 1, int(math.Ceil(w*sin+h*cos)) + 1
}

// FlipHorizontal mirrors src across its vertical axis.
func FlipHorizontal(src image.Image) *image.NRGBA { return imaging.FlipH(src) }

// FlipVertical mirrors src across its horizontal axis.
func FlipVertical(src image.Image) *image.NRGBA { return imaging.FlipV(src) }

// Mirror is FlipHorizontal under its other name.
func Mirror(src image.Image) *image.NRGBA { return FlipHorizontal(src) }

// Grayscale desaturates src with Rec. 601 luma weights and returns an opaque
// three-channel image, so every encoder accepts the result.
func Grayscale(src image.Image) *image.NRGBA {
	dst := imaging.Grayscale(src)
	setOpaque(dst)
	return dst
}

// Sepia applies the classic sepia matrix to every pixel. Alpha is discarded
// first; channel values are truncated and clamped to 255.
func Sepia(src image.Image) *image.RGBA {
	opaque := imaging.Clone(src)
	setOpaque(opaque)
	return adjust.Apply(opaque, sepiaPixel)
}

func sepiaPixel(c color.RGBA) color.RGBA {
	r, g, b := float64(c.R), float64(c.G), float64(c.B)
	return color.RGBA{
		R: clamp(0.393*r + 0.769*g + 0.189*b),
		G: clamp(0.349*r + 0.686*g + 0.168*b),
		B: clamp(0.272*r + 0.534*g + 0.131*b),
		A: 0xff,
	}
}

func clamp(v float64) uint8 {
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

// FlattenRGB returns src with its alpha channel dropped, keeping the stored
// colour values as they are. This is what JPEG output needs.
func FlattenRGB(src image.Image) *image.NRGBA {
	dst := imaging.Clone(src)
	setOpaque(dst)
	return dst
}

func setOpaque(img *image.NRGBA) {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}
