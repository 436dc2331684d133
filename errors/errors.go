package errors

import (
	"errors"
	"fmt"
)

// Category classifies errors so transports can map them to responses and
// monitoring can group them.
type Category string

const (
	CategoryNotFound  Category = "not_found"
	CategoryInvalid   Category = "invalid"
	CategoryAuth      Category = "auth"
	CategoryConfig    Category = "config"
	CategoryStorage   Category = "storage"
	CategoryRateLimit Category = "rate_limit"
	CategoryConflict  Category = "conflict"

	CategoryDecode    Category = "decode"
	CategoryEncode    Category = "encode"
	CategoryPipeline  Category = "pipeline"
	CategoryTransient Category = "transient"
)

// Error is the structured error type used throughout the module.
type Error struct {
	Category  Category
	Op        string // operation name
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a non-retryable Error.
func New(category Category, op string, err error) *Error {
	return &Error{Category: category, Op: op, Err: err}
}

// Newf is New with a formatted cause.
func Newf(category Category, op, format string, args ...any) *Error {
	return New(category, op, fmt.Errorf(format, args...))
}

// Transient creates a retryable Error.
func Transient(op string, err error) *Error {
	return &Error{Category: CategoryTransient, Op: op, Err: err, Retryable: true}
}

// Wrap wraps err with context. An err that already carries a category keeps
// it, so the outermost wrapper never hides the original classification.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Category: e.Category, Op: op, Err: err, Retryable: e.Retryable}
	}
	return New(category, op, err)
}

// IsRetryable reports whether err represents a transient failure.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	return CategoryOf(err) == cat
}

// CategoryOf returns the category of the outermost *Error in err's chain, or
// "" when err is unclassified.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}

// Detail returns the innermost human readable cause of err, without the
// "[category] op:" prefixes added along the way.
func Detail(err error) string {
	for {
		e, ok := err.(*Error)
		if !ok {
			break
		}
		err = e.Err
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Sentinel errors for common failure modes.
var (
	ErrNotFound           = errors.New("not found")
	ErrUnsupportedFormat  = errors.New("unsupported image format")
	ErrInvalidDimensions  = errors.New("invalid dimensions")
	ErrEmptyInput         = errors.New("empty input")
	ErrWorkerPoolFull     = errors.New("worker pool queue full")
	ErrProcessorStopped   = errors.New("processor stopped")
	ErrUnknownAction      = errors.New("Invalid action")
	ErrQualityRange       = errors.New("Quality must be between 1 and 95")
	ErrInvalidCredentials = errors.New("Invalid credentials")
	ErrEmailTaken         = errors.New("Email already registered")
	ErrRateLimited        = errors.New("Rate limit exceeded. Try again later.")
	ErrTooLarge           = errors.New("input exceeds size limit")
	ErrImageTooLarge      = errors.New("Image dimensions exceed the allowed maximum")
	ErrPageTooLarge       = errors.New("Size must not exceed 100")

	// Request level not-found and validation details shown to API clients.
	ErrImageNotFound          = errors.New("Image not found")
	ErrTransformationNotFound = errors.New("Transformation not found")
	ErrFileNotFound           = errors.New("File not found on disk")
	ErrBadPage                = errors.New("Page and size must be positive")
	ErrNoFile                 = errors.New("No file uploaded")
	ErrNotAnImage             = errors.New("Uploaded file is not a supported image")
)

// Is and As re-export the standard helpers so callers importing this package
// under its usual alias do not also need the standard errors package.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
