package service

import (
	"bytes"
	"context"
	"io"
	"math"
	"path"
	"strings"

	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
	"github.com/Skryldev/image-host/utils"
)

// Images handles upload, retrieval, listing and deletion of source images.
type Images struct {
	images   core.ImageRepository
	users    core.UserRepository
	ledger   core.Ledger
	storage  core.Storage
	registry core.Registry
	events   core.EventPublisher
	logger   core.Logger
	maxBytes int64
}

// ImagesDeps bundles the collaborators of Images.
type ImagesDeps struct {
	Images         core.ImageRepository
	Users          core.UserRepository
	Ledger         core.Ledger
	Storage        core.Storage
	Registry       core.Registry
	Events         core.EventPublisher
	Logger         core.Logger
	MaxUploadBytes int64
}

func NewImages(d ImagesDeps) *Images {
	return &Images{
		images:   d.Images,
		users:    d.Users,
		ledger:   d.Ledger,
		storage:  d.Storage,
		registry: d.Registry,
		events:   d.Events,
		logger:   d.Logger,
		maxBytes: d.MaxUploadBytes,
	}
}

// Uploaded is the result of a successful upload.
type Uploaded struct {
	Image      core.Image
	UploadedBy string // owner email
}

// Upload stores r as a new image owned by userID. filename is kept for
// display only; the blob gets a fresh random name.
func (s *Images) Upload(ctx context.Context, userID int64, filename string, r io.Reader) (*Uploaded, error) {
	const op = "images.upload"

	owner, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	data, err := utils.ReadAll(ctx, r, s.maxBytes)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CategoryInvalid, op, apperrors.ErrNoFile)
	}

	format, err := s.sniff(ctx, data)
	if err != nil {
		return nil, err
	}

	locator, err := s.storage.Save(ctx, data, format.ContentType(), "")
	if err != nil {
		return nil, err
	}

	img := core.Image{Filename: displayName(filename), Locator: locator, UserID: userID}
	if err := s.images.Create(ctx, &img); err != nil {
		discard(s.storage, s.logger, locator)
		return nil, err
	}

	s.logger.Info("image uploaded", "image_id", img.ID, "user_id", userID, "format", string(format), "bytes", len(data))
	publish(ctx, s.events, s.logger, core.Event{
		Type:    core.EventImageUploaded,
		ImageID: img.ID,
		UserID:  userID,
		Locator: locator,
	})
	return &Uploaded{Image: img, UploadedBy: owner.Email}, nil
}

// sniff identifies the format from the leading bytes and checks that the
// payload actually decodes.
func (s *Images) sniff(ctx context.Context, data []byte) (core.Format, error) {
	const op = "images.sniff"
	format, err := core.ParseFormat(utils.DetectFormat(data))
	if err != nil {
		return "", apperrors.New(apperrors.CategoryInvalid, op, apperrors.ErrNotAnImage)
	}
	dec, ok := s.registry.DecoderFor(format)
	if !ok {
		return "", apperrors.New(apperrors.CategoryInvalid, op, apperrors.ErrNotAnImage)
	}
	if _, err := dec.Decode(ctx, bytes.NewReader(data)); err != nil {
		if apperrors.Is(err, apperrors.ErrImageTooLarge) {
			return "", err
		}
		return "", apperrors.New(apperrors.CategoryInvalid, op, apperrors.ErrNotAnImage)
	}
	return format, nil
}

func displayName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return "upload"
	}
	return name
}

// Blob is an open stored artifact.
type Blob struct {
	Body        io.ReadCloser
	Name        string // base name of the locator
	ContentType string
}

// Open returns the bytes of the caller's image or, when transformationID is
// set, of one of its transformations.
func (s *Images) Open(ctx context.Context, userID, imageID int64, transformationID *int64) (*Blob, error) {
	const op = "images.open"

	img, err := s.images.Get(ctx, imageID, userID)
	if err != nil {
		return nil, imageLookupErr(op, err)
	}

	locator := img.Locator
	if transformationID != nil {
		tr, err := s.ledger.Get(ctx, img.ID, *transformationID)
		if err != nil {
			if apperrors.IsCategory(err, apperrors.CategoryNotFound) {
				return nil, apperrors.New(apperrors.CategoryNotFound, op, apperrors.ErrTransformationNotFound)
			}
			return nil, err
		}
		locator = tr.Locator
	}

	rc, err := s.storage.Open(ctx, locator)
	if err != nil {
		return nil, blobLookupErr(op, err)
	}
	return &Blob{Body: rc, Name: BaseName(locator), ContentType: contentTypeOf(locator)}, nil
}

// BaseName returns the last element of a locator, whether path or URL.
func BaseName(locator string) string {
	return path.Base(strings.ReplaceAll(locator, "\\", "/"))
}

func contentTypeOf(locator string) string {
	ext := strings.TrimPrefix(path.Ext(BaseName(locator)), ".")
	if f, err := core.ParseFormat(ext); err == nil {
		return f.ContentType()
	}
	return core.FormatUnknown.ContentType()
}

// MaxPageSize is the largest page List serves.
const MaxPageSize = 100

// List returns page `page` (1-based) of the caller's images, size per page.
// A page past the end is empty, however large the page number.
func (s *Images) List(ctx context.Context, userID int64, page, size int) (*core.Page, error) {
	const op = "images.list"
	if page < 1 || size < 1 {
		return nil, apperrors.New(apperrors.CategoryInvalid, op, apperrors.ErrBadPage)
	}
	if size > MaxPageSize {
		return nil, apperrors.New(apperrors.CategoryInvalid, op, apperrors.ErrPageTooLarge)
	}
	offset := math.MaxInt
	if page-1 <= math.MaxInt/size {
		offset = (page - 1) * size
	}
	items, total, err := s.images.List(ctx, userID, offset, size)
	if err != nil {
		return nil, err
	}
	return &core.Page{Total: total, Page: page, Size: size, Items: items}, nil
}

// History lists the transformations recorded for the caller's image.
func (s *Images) History(ctx context.Context, userID, imageID int64) ([]core.Transformation, error) {
	img, err := s.images.Get(ctx, imageID, userID)
	if err != nil {
		return nil, imageLookupErr("images.history", err)
	}
	return s.ledger.ListForImage(ctx, img.ID)
}

// Delete removes the caller's image, its transformations and their blobs.
// Blob removal failures are logged; the records are already gone.
func (s *Images) Delete(ctx context.Context, userID, imageID int64) error {
	locators, err := s.images.Delete(ctx, imageID, userID)
	if err != nil {
		return imageLookupErr("images.delete", err)
	}
	for _, loc := range locators {
		if err := s.storage.Delete(ctx, loc); err != nil {
			s.logger.Error("delete blob", "image_id", imageID, "locator", loc, "error", err.Error())
		}
	}
	s.logger.Info("image deleted", "image_id", imageID, "user_id", userID, "blobs", len(locators))
	publish(ctx, s.events, s.logger, core.Event{Type: core.EventImageDeleted, ImageID: imageID, UserID: userID})
	return nil
}
