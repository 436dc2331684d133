package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Skryldev/image-host/config"
	apperrors "github.com/Skryldev/image-host/errors"
)

var _ S3Client = (*MinioClient)(nil)

// MinioClient implements S3Client with minio-go. It talks to AWS S3 when no
// endpoint is configured and to any S3-compatible server otherwise.
type MinioClient struct {
	mc *minio.Client
}

// NewMinioClient builds the client from cfg. No network call is made.
func NewMinioClient(cfg config.S3Config) (*MinioClient, error) {
	endpoint := "s3.amazonaws.com"
	secure := true
	if cfg.Endpoint != "" {
		endpoint, secure = hostOf(cfg.Endpoint, cfg.UseSSL)
	}

	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "minio.new", err)
	}
	return &MinioClient{mc: mc}, nil
}

// hostOf strips an optional scheme from endpoint; an explicit scheme wins
// over useSSL.
func hostOf(endpoint string, useSSL bool) (string, bool) {
	if !strings.Contains(endpoint, "://") {
		return strings.TrimSuffix(endpoint, "/"), useSSL
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint, useSSL
	}
	return u.Host, u.Scheme == "https"
}

// EnsureBucket creates bucket when it does not exist yet.
func (c *MinioClient) EnsureBucket(ctx context.Context, bucket, region string) error {
	exists, err := c.mc.BucketExists(ctx, bucket)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "minio.bucket_exists", err)
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "minio.make_bucket", err)
	}
	return nil
}

func (c *MinioClient) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	_, err := c.mc.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (c *MinioClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := c.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err)
	}
	// GetObject is lazy; Stat surfaces a missing key before any byte is read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, translate(err)
	}
	return obj, nil
}

func (c *MinioClient) RemoveObject(ctx context.Context, bucket, key string) error {
	err := c.mc.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	if err != nil && isNoSuchKey(err) {
		return nil
	}
	return err
}

func translate(err error) error {
	if isNoSuchKey(err) {
		return apperrors.New(apperrors.CategoryNotFound, "minio.get", apperrors.ErrNotFound)
	}
	return err
}

func isNoSuchKey(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey"
	}
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
