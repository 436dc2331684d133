// Package storage provides core.Storage implementations.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
)

var _ core.Storage = (*Local)(nil)

// Local stores images on the local filesystem. Locators are filesystem paths
// rooted at the configured directory.
type Local struct {
	rootDir     string
	permissions os.FileMode
}

// NewLocal creates a Local storage adapter rooted at dir.
func NewLocal(dir string, perm os.FileMode) (*Local, error) {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.New(apperrors.CategoryStorage, "local.init",
			fmt.Errorf("mkdir %s: %w", dir, err))
	}
	return &Local{rootDir: filepath.Clean(dir), permissions: perm}, nil
}

// Root returns the directory every locator lives under.
func (l *Local) Root() string { return l.rootDir }

// resolve maps a locator back to a path and refuses anything that escapes
// the root directory.
func (l *Local) resolve(locator string) (string, error) {
	path := filepath.Clean(locator)
	rel, err := filepath.Rel(l.rootDir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperrors.New(apperrors.CategoryNotFound, "local.resolve", apperrors.ErrNotFound)
	}
	return path, nil
}

func (l *Local) Save(ctx context.Context, data []byte, contentType, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.Wrap(apperrors.CategoryStorage, "local.save", err)
	}
	if filename == "" {
		filename = NewFilename(contentType)
	}

	// Only the base name is honoured; callers cannot pick a directory.
	path := filepath.Join(l.rootDir, filepath.Base(filename))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, l.permissions)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CategoryStorage, "local.save.open", err)
	}
	if _, err = f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", apperrors.Wrap(apperrors.CategoryStorage, "local.save.write", err)
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(path)
		return "", apperrors.Wrap(apperrors.CategoryStorage, "local.save.close", err)
	}
	return path, nil
}

func (l *Local) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.open", err)
	}
	path, err := l.resolve(locator)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.New(apperrors.CategoryNotFound, "local.open", apperrors.ErrNotFound)
		}
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.open", err)
	}
	return f, nil
}

func (l *Local) Delete(ctx context.Context, locator string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.delete", err)
	}
	path, err := l.resolve(locator)
	if err != nil {
		return nil // nothing of ours lives there
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.delete", err)
	}
	return nil
}
