package storage

import (
	"context"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/Skryldev/image-host/config"
	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
)

// New builds the backend selected by cfg.Storage. It is called once by the
// composition root; any other backend name is a configuration error.
func New(ctx context.Context, cfg config.Config) (core.Storage, error) {
	switch cfg.Storage {
	case config.StorageLocal:
		return NewLocal(cfg.Local.RootDir, os.FileMode(cfg.Local.Permissions))
	case config.StorageS3:
		client, err := NewMinioClient(cfg.S3)
		if err != nil {
			return nil, err
		}
		if cfg.S3.Endpoint != "" {
			// Self-hosted stores start empty; AWS buckets are provisioned
			// out of band.
			if err := client.EnsureBucket(ctx, cfg.S3.Bucket, cfg.S3.Region); err != nil {
				return nil, err
			}
		}
		return NewS3(client, cfg.S3.Bucket, cfg.S3.Region, cfg.S3.Endpoint, cfg.S3.UseSSL)
	}
	return nil, apperrors.Newf(apperrors.CategoryConfig, "storage.new", "unsupported storage backend %q", cfg.Storage)
}

// NewFilename returns a random hex token with the extension implied by
// contentType, e.g. "3f2a...9c.png".
func NewFilename(contentType string) string {
	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	if f := core.FormatFromContentType(contentType); f != core.FormatUnknown {
		return name + "." + f.Extension()
	}
	return name
}
