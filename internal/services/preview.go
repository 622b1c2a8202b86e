package services

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const DefaultThumbnailWidth = 320

// Thumbnailer renders JPEG thumbnails of comment images.
type Thumbnailer struct {
	Width int
}

// DecodeImage checks that data is a raster image the thumbnailer can read.
func DecodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Thumbnail fits the image into a Width x Width box, preserving aspect ratio.
// Images already smaller than the box are re-encoded unchanged in size.
func (t Thumbnailer) Thumbnail(data []byte) ([]byte, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}

	width := t.Width
	if width <= 0 {
		width = DefaultThumbnailWidth
	}
	thumb := imaging.Fit(img, width, width, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
