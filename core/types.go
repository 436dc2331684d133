package core

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	apperrors "github.com/Skryldev/image-host/errors"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatBMP     Format = "bmp"
	FormatTIFF    Format = "tiff"
	FormatWebP    Format = "webp"
	FormatUnknown Format = "unknown"
)

// ParseFormat normalises a user supplied output format. Matching is case
// insensitive and "jpg"/"tif" are accepted as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "gif":
		return FormatGIF, nil
	case "bmp":
		return FormatBMP, nil
	case "tiff", "tif":
		return FormatTIFF, nil
	case "webp":
		return FormatWebP, nil
	}
	return FormatUnknown, apperrors.New(apperrors.CategoryInvalid, "format.parse",
		fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, s))
}

// Extension is the file extension used for stored artifacts, without a dot.
func (f Format) Extension() string { return string(f) }

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatUnknown || f == "" {
		return "application/octet-stream"
	}
	return "image/" + string(f)
}

// FormatFromContentType maps MIME types to Format values.
func FormatFromContentType(ct string) Format {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "image/jpeg", "image/jpg":
		return FormatJPEG
	case "image/png":
		return FormatPNG
	case "image/gif":
		return FormatGIF
	case "image/bmp", "image/x-ms-bmp":
		return FormatBMP
	case "image/tiff":
		return FormatTIFF
	case "image/webp":
		return FormatWebP
	}
	return FormatUnknown
}

// ColorSpace represents the image colour model.
type ColorSpace string

const (
	ColorSpaceRGB  ColorSpace = "rgb"
	ColorSpaceRGBA ColorSpace = "rgba"
	ColorSpaceCMYK ColorSpace = "cmyk"
	ColorSpaceGray ColorSpace = "gray"
)

// Metadata describes a decoded or encoded image.
type Metadata struct {
	Width      int
	Height     int
	Format     Format
	ColorSpace ColorSpace
	HasAlpha   bool
	SizeBytes  int64
}

// ImageData is the value passed between pipeline steps. Data holds encoded
// bytes, Image the decoded raster once a decode step has run.
type ImageData struct {
	Data   []byte
	Format Format
	Image  image.Image
	Meta   Metadata
}

// Action enumerates the supported transformations.
type Action string

const (
	ActionResize         Action = "resize"
	ActionCrop           Action = "crop"
	ActionRotate         Action = "rotate"
	ActionFlipHorizontal Action = "flip_horizontal"
	ActionFlipVertical   Action = "flip_vertical"
	ActionMirror         Action = "mirror"
	ActionGrayscale      Action = "grayscale"
	ActionSepia          Action = "sepia"
)

// ParseAction validates an action name. Names are case sensitive.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionResize, ActionCrop, ActionRotate, ActionFlipHorizontal,
		ActionFlipVertical, ActionMirror, ActionGrayscale, ActionSepia:
		return a, nil
	}
	return "", apperrors.New(apperrors.CategoryInvalid, "action.parse", apperrors.ErrUnknownAction)
}

// User is a registered account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Image is an uploaded source asset. Locator is whatever the storage backend
// returned from Save: a filesystem path or a URL.
type Image struct {
	ID        int64
	Filename  string
	Locator   string
	UserID    int64
	CreatedAt time.Time
}

// Transformation is a ledger row describing one derived artifact.
type Transformation struct {
	ID        int64
	ImageID   int64
	Action    Action
	Params    string // canonical parameter set, see Canonical
	Locator   string
	CreatedAt time.Time
}

// ImageSummary is one row of a listing page.
type ImageSummary struct {
	ID                  int64
	Filename            string
	CreatedAt           time.Time
	TransformationCount int
}

// Page is an offset paginated listing.
type Page struct {
	Total int
	Page  int
	Size  int
	Items []ImageSummary
}

// Event is a domain notification emitted after a state change.
type Event struct {
	Type             string    `json:"type"`
	ImageID          int64     `json:"image_id"`
	UserID           int64     `json:"user_id"`
	TransformationID int64     `json:"transformation_id,omitempty"`
	Action           Action    `json:"action,omitempty"`
	Locator          string    `json:"locator,omitempty"`
	At               time.Time `json:"at"`
}

const (
	EventImageUploaded    = "image.uploaded"
	EventImageTransformed = "image.transformed"
	EventImageDeleted     = "image.deleted"
)

// Job encapsulates a single unit of work for the worker pool.
type Job struct {
	ID     string
	Ctx    context.Context //nolint:containedctx // carried to the worker goroutine
	Input  *ImageData
	Runner PipelineRunner
	// Result channel; nil for fire-and-forget.
	ResultCh chan<- JobResult
}

// JobResult wraps the outcome of a job.
type JobResult struct {
	JobID   string
	Output  *ImageData
	Err     error
	Elapsed time.Duration
}

// Step is the fundamental pipeline building block. Each Step transforms an
// *ImageData value and must be safe for concurrent use across goroutines.
type Step interface {
	Name() string
	Execute(ctx context.Context, img *ImageData) (*ImageData, error)
}

// Hook is an optional observer invoked around pipeline steps.
type Hook interface {
	BeforeStep(ctx context.Context, stepName string, img *ImageData)
	AfterStep(ctx context.Context, stepName string, img *ImageData, d time.Duration, err error)
}
