package upload

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"ai-answering-machine/internal/domain"
	"ai-answering-machine/internal/domain/model"
	"ai-answering-machine/internal/domain/ports/adapter"
)

var _ adapter.ImageCropper = Cropper{}

// Cropper cuts a rectangle out of an uploaded photo.
type Cropper struct{}

// Crop decodes data (honouring EXIF orientation), crops rect clipped to the
// image bounds and re-encodes as PNG. An empty rect selects the centred box
// of half the width and height.
func (Cropper) Crop(data []byte, rect model.CropRect) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnsupportedImage, err)
	}
	b := img.Bounds()
	if rect.Empty() {
		rect = DefaultCrop(b.Dx(), b.Dy())
	}
	r := image.Rect(rect.X, rect.Y, rect.X+rect.Width, rect.Y+rect.Height).Add(b.Min).Intersect(b)
	if r.Empty() {
		return nil, fmt.Errorf("%w: crop outside image", domain.ErrInvalidArgument)
	}
	var out bytes.Buffer
	if err := imaging.Encode(&out, imaging.Crop(img, r), imaging.PNG); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// DefaultCrop is the initial selection of the crop dialog.
func DefaultCrop(width, height int) model.CropRect {
	w, h := width/2, height/2
	return model.CropRect{X: (width - w) / 2, Y: (height - h) / 2, Width: w, Height: h}
}
