//go:build vips

// Package vips adds libvips-backed codecs. It is compiled only with the
// "vips" build tag because it needs cgo and a system libvips; without the tag
// Enable reports that the backend is unavailable.
package vips

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
	"github.com/Skryldev/image-host/utils"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	DefaultQuality int
	MaxCacheSize   int
	MaxWorkers     int
	MaxPixels      int64 // largest source Decode accepts; <= 0 means the config default
	ReportLeaks    bool
}

// Backend is a libvips-powered WebP Decoder and Encoder.
// Safe for concurrent use across goroutines.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.DefaultQuality <= 0 {
		cfg.DefaultQuality = 85
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.LoggingSettings(nil, govips.LogLevelWarning)
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// Enable starts libvips and registers its codecs in reg. The returned func
// shuts libvips down.
func Enable(reg core.Registry, defaultQuality, workers int, maxPixels int64) (shutdown func(), ok bool) {
	b := NewBackend(BackendConfig{DefaultQuality: defaultQuality, MaxWorkers: workers, MaxPixels: maxPixels})
	RegisterVipsBackend(reg, b)
	return b.Shutdown, true
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanDecode(f core.Format) bool { return f == core.FormatWebP }

// Decode loads any libvips-readable buffer (including animated WebP, whose
// first frame is used) and hands back a Go raster so the pure-Go raster
// operations can run on it.
func (b *Backend) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}

	raw, err := utils.ReadAll(ctx, r, 0)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.drain", err)
	}

	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}
	defer ref.Close()

	// libvips has only read the header so far.
	if core.ExceedsPixels(ref.Width(), ref.Height(), b.cfg.MaxPixels) {
		return nil, apperrors.New(apperrors.CategoryInvalid, "vips.decode",
			fmt.Errorf("%w: %dx%d", apperrors.ErrImageTooLarge, ref.Width(), ref.Height()))
	}

	format := vipsFormatToCore(ref.Format())
	pngBuf, _, err := ref.ExportPng(govips.NewPngExportParams())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.export", err)
	}
	img, err := png.Decode(bytes.NewReader(pngBuf))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.png", err)
	}

	return &core.ImageData{
		Data:   raw,
		Format: format,
		Image:  img,
		Meta: core.Metadata{
			Width:      ref.Width(),
			Height:     ref.Height(),
			Format:     format,
			ColorSpace: vipsInterpretationToColorSpace(ref.Interpretation()),
			HasAlpha:   ref.HasAlpha(),
			SizeBytes:  int64(len(raw)),
		},
	}, nil
}

// ─── Encoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanEncode(f core.Format) bool { return f == core.FormatWebP }

// Encode writes img as WebP. Request quality is not applied to WebP; the
// backend default is used for every output.
func (b *Backend) Encode(ctx context.Context, img *core.ImageData, _ core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode", err)
	}
	if img == nil || img.Image == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, "vips.encode", apperrors.ErrEmptyInput)
	}

	ref, err := toVips(img.Image)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.load", err)
	}
	defer ref.Close()

	ep := govips.NewWebpExportParams()
	ep.Quality = b.cfg.DefaultQuality
	ep.StripMetadata = true
	buf, _, err := ref.ExportWebp(ep)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.webp", err)
	}
	return buf, nil
}

// toVips moves a Go raster into libvips through a lossless PNG buffer.
func toVips(img image.Image) (*govips.ImageRef, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("png staging: %w", err)
	}
	return govips.NewImageFromBuffer(buf.Bytes())
}

// ─── RegisterVipsBackend ──────────────────────────────────────────────────────

// RegisterVipsBackend installs the backend for WebP, replacing the pure-Go
// WebP decoder.
func RegisterVipsBackend(reg core.Registry, b *Backend) {
	reg.RegisterDecoder(core.FormatWebP, b)
	reg.RegisterEncoder(core.FormatWebP, b)
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func vipsFormatToCore(f govips.ImageType) core.Format {
	switch f {
	case govips.ImageTypeJPEG:
		return core.FormatJPEG
	case govips.ImageTypePNG:
		return core.FormatPNG
	case govips.ImageTypeGIF:
		return core.FormatGIF
	case govips.ImageTypeTIFF:
		return core.FormatTIFF
	case govips.ImageTypeWEBP:
		return core.FormatWebP
	default:
		return core.FormatUnknown
	}
}

func vipsInterpretationToColorSpace(i govips.Interpretation) core.ColorSpace {
	switch i {
	case govips.InterpretationBW:
		return core.ColorSpaceGray
	case govips.InterpretationCMYK:
		return core.ColorSpaceCMYK
	default:
		return core.ColorSpaceRGB
	}
}

// compile-time interface checks
var (
	_ core.Decoder = (*Backend)(nil)
	_ core.Encoder = (*Backend)(nil)
)
