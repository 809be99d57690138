package validation

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageFile(t *testing.T) {
	assert.True(t, ImageFile(1024, "image/png").Valid)
	assert.True(t, ImageFile(MaxImageSize, "image/webp").Valid)
	assert.False(t, ImageFile(MaxImageSize+1, "image/png").Valid)
	assert.False(t, ImageFile(1024, "image/bmp").Valid)
	assert.False(t, ImageFile(0, "image/png").Valid)
}

func TestDetectImageType(t *testing.T) {
	assert.Equal(t, "image/png", DetectImageType(encodePNG(t, 2, 2)))
	assert.Equal(t, "", DetectImageType([]byte("plain text, not an image")))
}

func TestImageDimensions(t *testing.T) {
	dims, err := ImageDimensions(context.Background(), bytes.NewReader(encodePNG(t, 40, 30)))
	require.NoError(t, err)
	assert.Equal(t, Dimensions{Width: 40, Height: 30}, dims)

	_, err = ImageDimensions(context.Background(), bytes.NewReader([]byte("garbage")))
	assert.ErrorIs(t, err, ErrImageDecode)
}

func TestImageDimensions_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// 永不返回数据的 reader，只能由 ctx 结束
	r, w := io.Pipe()
	defer w.Close()

	_, err := ImageDimensions(ctx, r)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImageBounds(t *testing.T) {
	assert.True(t, ImageBounds(Dimensions{Width: 4096, Height: 4096}).Valid)
	assert.False(t, ImageBounds(Dimensions{Width: 4097, Height: 10}).Valid)
	assert.False(t, ImageBounds(Dimensions{Width: 10, Height: 5000}).Valid)
}

func TestImage(t *testing.T) {
	assert.True(t, Image(context.Background(), encodePNG(t, 16, 16)).Valid)

	r := Image(context.Background(), []byte("GIF89a but truncated"))
	assert.False(t, r.Valid)

	r = Image(context.Background(), []byte("just text"))
	assert.Equal(t, "Only JPEG, PNG, GIF and WEBP images are allowed", r.Error)
}
