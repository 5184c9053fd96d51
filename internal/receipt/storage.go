package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// localURLPrefix marks storage references served from the local filesystem.
const localURLPrefix = "/uploads/"

// Uploader persists image bytes under a year/month partition and returns a
// retrievable reference URL.
type Uploader interface {
	Upload(ctx context.Context, filename, year, month string, data []byte) (string, error)
}

// FallbackUploader tries each strategy in order and returns the first
// success. When every strategy fails it returns the no-image sentinel
// instead of an error: image storage is best-effort, the structured data is
// the primary asset.
type FallbackUploader struct {
	chain []Uploader
}

// NewFallbackUploader creates a FallbackUploader over the given strategies.
func NewFallbackUploader(chain ...Uploader) *FallbackUploader {
	return &FallbackUploader{chain: chain}
}

// Upload tries each strategy in order
func (f *FallbackUploader) Upload(ctx context.Context, filename, year, month string, data []byte) (string, error) {
	for _, uploader := range f.chain {
		url, err := uploader.Upload(ctx, filename, year, month, data)
		if err == nil {
			return url, nil
		}
		slog.Warn("storage upload failed, trying next backend",
			"backend", fmt.Sprintf("%T", uploader),
			"filename", filename,
			"error", err,
		)
	}
	slog.Warn("all storage backends failed, storing without image", "filename", filename)
	return NoImageURL, nil
}

// LocalStorage stores images on the local filesystem under
// baseDir/YYYY/MM/ and serves them via /uploads/ URLs. Deleted receipts'
// images move to trashDir rather than being removed, created on first use.
//
// Not durable on serverless filesystems; the router must be built without
// it there.
type LocalStorage struct {
	baseDir  string
	trashDir string
}

// NewLocalStorage creates a LocalStorage rooted at baseDir.
func NewLocalStorage(baseDir, trashDir string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir, trashDir: trashDir}, nil
}

// Upload writes the file under the year/month partition
func (l *LocalStorage) Upload(ctx context.Context, filename, year, month string, data []byte) (string, error) {
	dir := filepath.Join(l.baseDir, year, month)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating partition directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return path.Join(localURLPrefix, year, month, filename), nil
}

// Manages reports whether url refers to a file under this storage.
func (l *LocalStorage) Manages(url string) bool {
	return strings.HasPrefix(url, localURLPrefix)
}

// Read returns the bytes behind a /uploads/ URL.
func (l *LocalStorage) Read(url string) ([]byte, error) {
	filePath, err := l.resolve(url)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Trash moves the file behind a /uploads/ URL into the trash directory,
// prefixed with a timestamp to avoid name collisions, and returns the new
// path.
func (l *LocalStorage) Trash(url string) (string, error) {
	filePath, err := l.resolve(url)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(filePath); err != nil {
		return "", fmt.Errorf("locating file: %w", err)
	}
	if err := os.MkdirAll(l.trashDir, 0755); err != nil {
		return "", fmt.Errorf("creating trash directory: %w", err)
	}
	trashPath := filepath.Join(l.trashDir, fmt.Sprintf("%d_%s", time.Now().UnixMilli(), filepath.Base(filePath)))
	if err := os.Rename(filePath, trashPath); err != nil {
		return "", fmt.Errorf("moving file to trash: %w", err)
	}
	return trashPath, nil
}

func (l *LocalStorage) resolve(url string) (string, error) {
	if !l.Manages(url) {
		return "", fmt.Errorf("not a local storage url: %s", url)
	}
	rel := strings.TrimPrefix(url, localURLPrefix)
	if strings.Contains(rel, "..") {
		return "", fmt.Errorf("invalid storage url: %s", url)
	}
	return filepath.Join(l.baseDir, filepath.FromSlash(rel)), nil
}
