package storage_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Skryldev/image-host/adapters/storage"
	"github.com/Skryldev/image-host/config"
	apperrors "github.com/Skryldev/image-host/errors"
)

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "uploads")
	l, err := storage.NewLocal(dir, 0)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("root not created: %v", err)
	}

	loc, err := l.Save(ctx, []byte("payload"), "image/png", "")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Dir(loc) != filepath.Clean(dir) || !strings.HasSuffix(loc, ".png") {
		t.Errorf("unexpected locator %q", loc)
	}

	rc, err := l.Open(ctx, loc)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if string(got) != "payload" {
		t.Errorf("content: got %q", got)
	}

	if err := l.Delete(ctx, loc); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := l.Delete(ctx, loc); err != nil {
		t.Errorf("second Delete should be a no-op, got %v", err)
	}
	if _, err := l.Open(ctx, loc); !apperrors.IsCategory(err, apperrors.CategoryNotFound) {
		t.Errorf("Open after delete: expected not_found, got %v", err)
	}
}

func TestLocalSaveIgnoresDirectories(t *testing.T) {
	dir := t.TempDir()
	l, _ := storage.NewLocal(dir, 0o600)
	loc, err := l.Save(context.Background(), []byte("x"), "image/png", "../../escape.png")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if loc != filepath.Join(dir, "escape.png") {
		t.Errorf("locator escaped root: %q", loc)
	}
}

func TestLocalOpenOutsideRoot(t *testing.T) {
	dir := t.TempDir()
	l, _ := storage.NewLocal(filepath.Join(dir, "root"), 0)
	outside := filepath.Join(dir, "secret.txt")
	if err := os.WriteFile(outside, []byte("s"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Open(context.Background(), outside); !apperrors.IsCategory(err, apperrors.CategoryNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
	if err := l.Delete(context.Background(), outside); err != nil {
		t.Errorf("Delete outside root: %v", err)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Errorf("file outside root was removed: %v", err)
	}
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, bucket, key string, body io.Reader, _ int64, contentType string) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = b
	f.types[bucket+"/"+key] = contentType
	return nil
}

func (f *fakeS3) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, apperrors.New(apperrors.CategoryNotFound, "fake.get", apperrors.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeS3) RemoveObject(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, bucket+"/"+key)
	return nil
}

func TestS3Locators(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()

	aws, err := storage.NewS3(fake, "pics", "eu-west-1", "", true)
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	loc, err := aws.Save(ctx, []byte("a"), "image/jpeg", "abc.jpeg")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if want := "https://pics.s3.eu-west-1.amazonaws.com/abc.jpeg"; loc != want {
		t.Errorf("aws locator: got %q, want %q", loc, want)
	}
	if fake.types["pics/abc.jpeg"] != "image/jpeg" {
		t.Errorf("content type not forwarded: %q", fake.types["pics/abc.jpeg"])
	}

	minio, _ := storage.NewS3(fake, "pics", "us-east-1", "localhost:9000", false)
	loc, _ = minio.Save(ctx, []byte("b"), "image/png", "def.png")
	if want := "http://localhost:9000/pics/def.png"; loc != want {
		t.Errorf("endpoint locator: got %q, want %q", loc, want)
	}

	rc, err := minio.Open(ctx, loc)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if string(b) != "b" {
		t.Errorf("content: got %q", b)
	}

	if err := minio.Delete(ctx, loc); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := minio.Open(ctx, loc); !apperrors.IsCategory(err, apperrors.CategoryNotFound) {
		t.Errorf("Open after delete: expected not_found, got %v", err)
	}
	if _, err := minio.Open(ctx, "https://elsewhere.example/pics/def.png"); !apperrors.IsCategory(err, apperrors.CategoryNotFound) {
		t.Errorf("foreign locator: expected not_found, got %v", err)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Local.RootDir = t.TempDir()
	s, err := storage.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New(local): %v", err)
	}
	if _, ok := s.(*storage.Local); !ok {
		t.Errorf("expected *storage.Local, got %T", s)
	}

	cfg.Storage = "ftp"
	if _, err := storage.New(context.Background(), cfg); !apperrors.IsCategory(err, apperrors.CategoryConfig) {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestNewFilename(t *testing.T) {
	a, b := storage.NewFilename("image/jpeg"), storage.NewFilename("image/jpeg")
	if a == b {
		t.Error("filenames must be unique")
	}
	if !strings.HasSuffix(a, ".jpeg") || len(a) != 32+len(".jpeg") {
		t.Errorf("unexpected filename %q", a)
	}
	if strings.Contains(storage.NewFilename("application/zip"), ".") {
		t.Error("unknown content types get no extension")
	}
}
