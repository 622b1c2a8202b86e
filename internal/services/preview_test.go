package services_test

import (
	"bytes"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simoroui/autotech-file-service-sub001/internal/services"
	"github.com/Simoroui/autotech-file-service-sub001/internal/testsupport"
)

func TestThumbnailFitsBox(t *testing.T) {
	src := testsupport.PNG(t, 800, 400)

	out, err := services.Thumbnailer{Width: 200}.Thumbnail(src)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())
}

func TestThumbnailKeepsSmallImages(t *testing.T) {
	out, err := services.Thumbnailer{}.Thumbnail(testsupport.PNG(t, 40, 30))
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 30, img.Bounds().Dy())
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	_, err := services.DecodeImage([]byte("not an image"))
	assert.Error(t, err)
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "image/png", services.ContentTypeFor("shot.PNG"))
	assert.Equal(t, "image/webp", services.ContentTypeFor("a.webp"))
	assert.Equal(t, "application/octet-stream", services.ContentTypeFor("golf.bin"))
	assert.Equal(t, "image/jpeg", services.ContentTypeFor("dash.JPG"))
	assert.Equal(t, "application/octet-stream", services.ContentTypeFor("golf.xyz123"))
	assert.Equal(t, "application/octet-stream", services.ContentTypeFor("noextension"))
	assert.Equal(t, "application/octet-stream", services.ContentTypeFor(""))
}
