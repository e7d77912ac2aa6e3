package adapter

import (
	"context"

	"ai-answering-machine/internal/domain/model"
)

// Uploader stores raw image bytes and returns a stable URL for them.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// ImageCropper cuts rect out of an encoded image and re-encodes it as PNG.
type ImageCropper interface {
	Crop(data []byte, rect model.CropRect) ([]byte, error)
}

// ImageResolver returns the bytes behind an image URL served by this
// process; ok is false for URLs it does not own.
type ImageResolver interface {
	Resolve(url string) (data []byte, mimeType string, ok bool, err error)
}
