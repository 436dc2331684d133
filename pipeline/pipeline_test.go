package pipeline_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/Skryldev/image-host/adapters/decoder"
	"github.com/Skryldev/image-host/adapters/encoder"
	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
	"github.com/Skryldev/image-host/pipeline"
)

var ip = core.IntPtr

func newRegistry() *core.DefaultRegistry {
	reg := core.NewRegistry()
	decoder.Register(reg, 0)
	encoder.Register(reg, 85)
	return reg
}

func newRedPNG(t *testing.T, w, h int) *core.ImageData {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 50, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return &core.ImageData{Data: buf.Bytes(), Format: core.FormatPNG}
}

func TestBuildResizeToJPEG(t *testing.T) {
	reg := newRegistry()
	p, err := pipeline.Build(reg, core.ActionResize, core.Params{Width: ip(40), Height: ip(10)}, core.FormatJPEG, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	out, err := p.Run(context.Background(), newRedPNG(t, 100, 100))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Format != core.FormatJPEG {
		t.Errorf("format: got %s, want jpeg", out.Format)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if cfg.Width != 40 || cfg.Height != 10 {
		t.Errorf("output size: got %dx%d, want 40x10", cfg.Width, cfg.Height)
	}
}

func TestBuildEveryAction(t *testing.T) {
	reg := newRegistry()
	tests := []struct {
		action core.Action
		params core.Params
		w, h   int
	}{
		{core.ActionResize, core.Params{Width: ip(5), Height: ip(7)}, 5, 7},
		{core.ActionCrop, core.Params{Left: ip(2), Top: ip(0), Right: ip(12), Bottom: ip(4)}, 10, 4},
		{core.ActionRotate, core.Params{Angle: ip(90)}, 10, 20},
		{core.ActionFlipHorizontal, core.Params{}, 20, 10},
		{core.ActionFlipVertical, core.Params{}, 20, 10},
		{core.ActionMirror, core.Params{}, 20, 10},
		{core.ActionGrayscale, core.Params{}, 20, 10},
		{core.ActionSepia, core.Params{}, 20, 10},
	}
	for _, tc := range tests {
		t.Run(string(tc.action), func(t *testing.T) {
			p, err := pipeline.Build(reg, tc.action, tc.params, core.FormatPNG, 0)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			out, err := p.Run(context.Background(), newRedPNG(t, 20, 10))
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if out.Meta.Width != tc.w || out.Meta.Height != tc.h {
				t.Errorf("size: got %dx%d, want %dx%d", out.Meta.Width, out.Meta.Height, tc.w, tc.h)
			}
		})
	}
}

func TestBuildRejectsInvalidRequests(t *testing.T) {
	reg := newRegistry()
	if _, err := pipeline.Build(reg, core.ActionRotate, core.Params{}, core.FormatPNG, 0); !apperrors.IsCategory(err, apperrors.CategoryInvalid) {
		t.Errorf("rotate without angle: got %v", err)
	}
	if _, err := pipeline.Build(reg, core.Action("blur"), core.Params{}, core.FormatPNG, 0); !apperrors.Is(err, apperrors.ErrUnknownAction) {
		t.Errorf("unknown action: got %v", err)
	}
}

func TestCropOutOfBoundsFailsAtRun(t *testing.T) {
	reg := newRegistry()
	p, err := pipeline.Build(reg, core.ActionCrop, core.Params{Left: ip(0), Top: ip(0), Right: ip(50), Bottom: ip(5)}, core.FormatPNG, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	_, err = p.Run(context.Background(), newRedPNG(t, 20, 10))
	if !apperrors.IsCategory(err, apperrors.CategoryInvalid) {
		t.Errorf("expected invalid error, got %v", err)
	}
}

func TestBuildRejectsOversizedResize(t *testing.T) {
	reg := newRegistry()
	_, err := pipeline.Build(reg, core.ActionResize, core.Params{Width: ip(1 << 40), Height: ip(1)}, core.FormatJPEG, 0)
	if !apperrors.Is(err, apperrors.ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
	if _, err := pipeline.Build(reg, core.ActionResize, core.Params{Width: ip(50), Height: ip(50)}, core.FormatJPEG, 2000); !apperrors.Is(err, apperrors.ErrImageTooLarge) {
		t.Errorf("50x50 at limit 2000: got %v", err)
	}
}

func TestRotateRefusesOversizedCanvas(t *testing.T) {
	reg := newRegistry()
	src := newRedPNG(t, 100, 10)

	p, err := pipeline.Build(reg, core.ActionRotate, core.Params{Angle: ip(45)}, core.FormatPNG, 2000)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	_, err = p.Run(context.Background(), src)
	if !apperrors.Is(err, apperrors.ErrImageTooLarge) || !apperrors.IsCategory(err, apperrors.CategoryInvalid) {
		t.Fatalf("expected invalid ErrImageTooLarge, got %v", err)
	}

	p, _ = pipeline.Build(reg, core.ActionRotate, core.Params{Angle: ip(45)}, core.FormatPNG, 0)
	if _, err := p.Run(context.Background(), src); err != nil {
		t.Errorf("rotate within default limit: %v", err)
	}
}

func TestEncodeUnsupportedFormat(t *testing.T) {
	reg := core.NewRegistry()
	decoder.Register(reg, 0)
	p, err := pipeline.Build(reg, core.ActionMirror, core.Params{}, core.FormatWebP, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	_, err = p.Run(context.Background(), newRedPNG(t, 4, 4))
	if !apperrors.Is(err, apperrors.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestDecodeGarbage(t *testing.T) {
	reg := newRegistry()
	p, _ := pipeline.Build(reg, core.ActionMirror, core.Params{}, core.FormatPNG, 0)
	_, err := p.Run(context.Background(), &core.ImageData{Data: []byte("not a png"), Format: core.FormatPNG})
	if !apperrors.IsCategory(err, apperrors.CategoryDecode) {
		t.Errorf("expected decode error, got %v", err)
	}
}

type recordingHook struct{ before, after []string }

func (h *recordingHook) BeforeStep(_ context.Context, name string, _ *core.ImageData) {
	h.before = append(h.before, name)
}

func (h *recordingHook) AfterStep(_ context.Context, name string, _ *core.ImageData, _ time.Duration, _ error) {
	h.after = append(h.after, name)
}

func TestHooksSeeEveryStep(t *testing.T) {
	reg := newRegistry()
	hook := &recordingHook{}
	p, err := pipeline.Build(reg, core.ActionMirror, core.Params{}, core.FormatPNG, 0, hook)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := p.Run(context.Background(), newRedPNG(t, 4, 4)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"decode", "mirror", "encode"}
	if len(hook.after) != len(want) {
		t.Fatalf("hook calls: got %v, want %v", hook.after, want)
	}
	for i := range want {
		if hook.before[i] != want[i] || hook.after[i] != want[i] {
			t.Errorf("step %d: got %s/%s, want %s", i, hook.before[i], hook.after[i], want[i])
		}
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	reg := newRegistry()
	p, _ := pipeline.Build(reg, core.ActionMirror, core.Params{}, core.FormatPNG, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Run(ctx, newRedPNG(t, 4, 4)); err == nil {
		t.Error("expected context cancellation error, got nil")
	}
}
