package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
)

var _ core.Storage = (*S3)(nil)

// S3Client is the minimal object-store surface used by the adapter. MinioClient
// implements it; tests inject doubles.
type S3Client interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
	// GetObject returns apperrors.ErrNotFound (category not_found) for a
	// missing key.
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	RemoveObject(ctx context.Context, bucket, key string) error
}

// S3 is the Storage backed by AWS S3 or an S3-compatible store. Locators are
// fully-qualified object URLs.
type S3 struct {
	client   S3Client
	bucket   string
	region   string
	endpoint *url.URL // nil means the AWS virtual-hosted style
}

// NewS3 creates an S3 adapter. endpoint is optional; when set, locators use
// the path style "<endpoint>/<bucket>/<key>".
func NewS3(client S3Client, bucket, region, endpoint string, useSSL bool) (*S3, error) {
	if client == nil {
		return nil, apperrors.Newf(apperrors.CategoryConfig, "s3.init", "client must not be nil")
	}
	if bucket == "" {
		return nil, apperrors.Newf(apperrors.CategoryConfig, "s3.init", "bucket is required")
	}
	s := &S3{client: client, bucket: bucket, region: region}
	if endpoint != "" {
		u, err := parseEndpoint(endpoint, useSSL)
		if err != nil {
			return nil, apperrors.New(apperrors.CategoryConfig, "s3.init", err)
		}
		s.endpoint = u
	}
	return s, nil
}

func parseEndpoint(endpoint string, useSSL bool) (*url.URL, error) {
	if !strings.Contains(endpoint, "://") {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		endpoint = scheme + "://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q", endpoint)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u, nil
}

func (s *S3) locator(key string) string {
	if s.endpoint == nil {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	}
	u := *s.endpoint
	u.Path = path.Join(u.Path, s.bucket, key)
	return u.String()
}

// key extracts the object key from a locator produced by this adapter.
func (s *S3) key(locator string) (string, bool) {
	prefix := s.locator("")
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if !strings.HasPrefix(locator, prefix) {
		return "", false
	}
	k := strings.TrimPrefix(locator, prefix)
	return k, k != ""
}

func (s *S3) Save(ctx context.Context, data []byte, contentType, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.Wrap(apperrors.CategoryStorage, "s3.save", err)
	}
	if filename == "" {
		filename = NewFilename(contentType)
	}
	key := path.Base(filename)
	if err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", apperrors.Wrap(apperrors.CategoryStorage, "s3.save", err)
	}
	return s.locator(key), nil
}

func (s *S3) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "s3.open", err)
	}
	key, ok := s.key(locator)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryNotFound, "s3.open", apperrors.ErrNotFound)
	}
	rc, err := s.client.GetObject(ctx, s.bucket, key)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "s3.open", err)
	}
	return rc, nil
}

// Delete hands the removal to the provider, which treats missing keys as
// success. Locators from another bucket are ignored.
func (s *S3) Delete(ctx context.Context, locator string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "s3.delete", err)
	}
	key, ok := s.key(locator)
	if !ok {
		return nil
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "s3.delete", err)
	}
	return nil
}
