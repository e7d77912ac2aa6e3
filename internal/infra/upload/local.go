// Package upload stores submitted images on local disk and serves them back.
package upload

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"ai-answering-machine/internal/domain"
	"ai-answering-machine/internal/domain/ports/adapter"
)

var (
	_ adapter.Uploader      = (*LocalUploader)(nil)
	_ adapter.ImageResolver = (*LocalUploader)(nil)
)

var allowedTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// LocalUploader writes images under dir and returns URLs under publicURL.
type LocalUploader struct {
	dir       string
	publicURL string
	maxBytes  int64
}

func NewLocalUploader(dir, publicURL string, maxBytes int64) (*LocalUploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalUploader{dir: dir, publicURL: strings.TrimRight(publicURL, "/"), maxBytes: maxBytes}, nil
}

// Dir is the directory the uploads are served from.
func (u *LocalUploader) Dir() string { return u.dir }

// Upload stores data under a fresh name keeping only the sniffed extension.
func (u *LocalUploader) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", domain.ErrUploadFailed)
	}
	if u.maxBytes > 0 && int64(len(data)) > u.maxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds limit", domain.ErrUploadFailed, len(data))
	}
	ext, ok := allowedTypes[http.DetectContentType(data)]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedImage, name)
	}
	file := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(u.dir, file), data, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}
	return u.publicURL + "/" + file, nil
}

// Resolve reads back an image previously returned by Upload.
func (u *LocalUploader) Resolve(url string) ([]byte, string, bool, error) {
	prefix := u.publicURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return nil, "", false, nil
	}
	name := path.Base(strings.TrimPrefix(url, prefix))
	data, err := os.ReadFile(filepath.Join(u.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", false, domain.ErrNotFound
	}
	if err != nil {
		return nil, "", false, err
	}
	mt := mime.TypeByExtension(filepath.Ext(name))
	if mt == "" {
		mt = http.DetectContentType(data)
	}
	return data, mt, true, nil
}
