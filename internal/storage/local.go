// Package storage keeps uploaded images on the local filesystem.
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"comer/internal/config"
	"comer/internal/domain"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var allowedTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
}

// LocalStore writes files under dir and hands out references below baseURL.
type LocalStore struct {
	dir      string
	baseURL  string
	maxBytes int64
}

func NewLocalStore(cfg config.UploadsConfig) (*LocalStore, error) {
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalStore{
		dir:      cfg.Path,
		baseURL:  strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		maxBytes: cfg.MaxFileBytes,
	}, nil
}

// Dir is the directory served under the public base URL.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Put stores a png or jpeg image. The content decides the type; name is only
// used in error details.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", domain.ValidationWithDetails("ValidationError", map[string]string{name: "is empty"})
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return "", domain.ValidationWithDetails("ValidationError", map[string]string{name: "is too large"})
	}

	ext, ok := allowedTypes[mimetype.Detect(data).String()]
	if !ok {
		return "", domain.ValidationWithDetails("ValidationError", map[string]string{name: "must be a png or jpeg image"})
	}

	file := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.dir, file), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return s.baseURL + "/" + file, nil
}

// Delete removes the file behind ref. Unknown references are ignored.
func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !strings.HasPrefix(ref, s.baseURL+"/") {
		return nil
	}
	file := path.Base(ref)
	if err := os.Remove(filepath.Join(s.dir, file)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	return nil
}
