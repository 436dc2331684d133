package core

import (
	"context"
	"io"
	"time"
)

// Decoder converts encoded bytes into an in-memory ImageData.
// Implementations live in adapters/decoder/.
type Decoder interface {
	// Decode reads from r and returns a decoded ImageData.
	Decode(ctx context.Context, r io.Reader) (*ImageData, error)
	// CanDecode reports whether this decoder handles the given format hint.
	CanDecode(format Format) bool
}

// Encoder serialises an ImageData to bytes in a target format.
// Implementations live in adapters/encoder/.
type Encoder interface {
	Encode(ctx context.Context, img *ImageData, opts EncodeOptions) ([]byte, error)
	CanEncode(format Format) bool
}

// EncodeOptions carries format-specific encoding parameters.
type EncodeOptions struct {
	Quality int // 1-95; 0 = use encoder default. Only lossy codecs read it.
}

// Registry maps Format values to Decoder/Encoder implementations.
type Registry interface {
	DecoderFor(format Format) (Decoder, bool)
	EncoderFor(format Format) (Encoder, bool)
	RegisterDecoder(format Format, d Decoder)
	RegisterEncoder(format Format, e Encoder)
}

// PipelineRunner is the part of pipeline.Pipeline the worker pool needs. It
// lives here so core does not import the pipeline package.
type PipelineRunner interface {
	Run(ctx context.Context, img *ImageData) (*ImageData, error)
}

// Storage persists raw bytes and hands back a locator. Implementations live
// in adapters/storage/.
type Storage interface {
	// Save writes data and returns its locator. An empty filename is replaced
	// by a random one carrying the extension implied by contentType.
	Save(ctx context.Context, data []byte, contentType, filename string) (string, error)
	// Open resolves a locator previously returned by Save.
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
	// Delete removes the object behind locator. Missing objects are not an
	// error.
	Delete(ctx context.Context, locator string) error
}

// UserRepository stores accounts.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
}

// ImageRepository stores source image records. Every read is scoped to an
// owner; a row owned by someone else is reported exactly like a missing one.
type ImageRepository interface {
	Create(ctx context.Context, img *Image) error
	Get(ctx context.Context, id, ownerID int64) (*Image, error)
	List(ctx context.Context, ownerID int64, offset, limit int) ([]ImageSummary, int, error)
	// Delete removes the image and its transformations and returns every
	// locator that was referenced, so blobs can be cleaned up afterwards.
	Delete(ctx context.Context, id, ownerID int64) ([]string, error)
}

// Ledger records executed transformations and answers dedup lookups.
type Ledger interface {
	FindMatching(ctx context.Context, imageID int64, action Action, params string) (*Transformation, bool, error)
	// Insert stores t and reports created=true. When a row with the same
	// (image, action, params) key already exists nothing is written, t is
	// overwritten with the existing row and created is false.
	Insert(ctx context.Context, t *Transformation) (created bool, err error)
	Get(ctx context.Context, imageID, id int64) (*Transformation, error)
	ListForImage(ctx context.Context, imageID int64) ([]Transformation, error)
	CountForImage(ctx context.Context, imageID int64) (int, error)
}

// EventPublisher emits domain events to interested consumers.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// MetricsCollector receives performance observations from the pipeline.
type MetricsCollector interface {
	RecordProcessingTime(stepName string, d time.Duration)
	RecordThroughput(bytes int64)
	RecordError(stepName string, category string)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}
