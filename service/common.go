package service

import (
	"context"
	"time"

	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
)

func imageLookupErr(op string, err error) error {
	if apperrors.IsCategory(err, apperrors.CategoryNotFound) {
		return apperrors.New(apperrors.CategoryNotFound, op, apperrors.ErrImageNotFound)
	}
	return err
}

func blobLookupErr(op string, err error) error {
	if apperrors.IsCategory(err, apperrors.CategoryNotFound) {
		return apperrors.New(apperrors.CategoryNotFound, op, apperrors.ErrFileNotFound)
	}
	return err
}

// publish emits e. Event delivery never fails the operation that caused it.
func publish(ctx context.Context, p core.EventPublisher, l core.Logger, e core.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		l.Warn("publish event", "type", e.Type, "image_id", e.ImageID, "error", err.Error())
	}
}

// discard removes a blob that will not be referenced. It runs on a fresh
// context so a cancelled request still cleans up.
func discard(s core.Storage, l core.Logger, locator string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Delete(ctx, locator); err != nil {
		l.Error("discard blob", "locator", locator, "error", err.Error())
	}
}
