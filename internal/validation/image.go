package validation

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

const (
	MaxImageSize      = 5 << 20
	MaxImageDimension = 4096
)

// AllowedImageTypes 允许上传的图片类型
var AllowedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

var ErrImageDecode = errors.New("image could not be decoded")

// Dimensions 图片尺寸
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ImageFile 大小与声明类型
func ImageFile(size int64, mimeType string) Result {
	if size <= 0 {
		return fail("File is empty")
	}
	if size > MaxImageSize {
		return fail("Image must be 5MB or smaller")
	}
	if !isAllowedType(mimeType) {
		return fail("Only JPEG, PNG, GIF and WEBP images are allowed")
	}
	return ok()
}

// DetectImageType 按内容嗅探类型，不在允许列表中时返回空串
func DetectImageType(head []byte) string {
	m := mimetype.Detect(head)
	for _, t := range AllowedImageTypes {
		if m.Is(t) {
			return t
		}
	}
	return ""
}

// ImageDimensions 异步读取图片尺寸；解码失败或 ctx 结束时返回错误
func ImageDimensions(ctx context.Context, r io.Reader) (Dimensions, error) {
	type probe struct {
		dims Dimensions
		err  error
	}
	done := make(chan probe, 1)

	go func() {
		cfg, _, err := image.DecodeConfig(r)
		if err != nil {
			done <- probe{err: errors.Join(ErrImageDecode, err)}
			return
		}
		done <- probe{dims: Dimensions{Width: cfg.Width, Height: cfg.Height}}
	}()

	select {
	case <-ctx.Done():
		return Dimensions{}, ctx.Err()
	case p := <-done:
		return p.dims, p.err
	}
}

// ImageBounds 尺寸上限
func ImageBounds(d Dimensions) Result {
	if d.Width > MaxImageDimension || d.Height > MaxImageDimension {
		return fail("Image must be at most 4096x4096 pixels")
	}
	return ok()
}

// Image 完整校验：大小、嗅探类型、尺寸
func Image(ctx context.Context, data []byte) Result {
	detected := DetectImageType(data)
	if r := ImageFile(int64(len(data)), detected); !r.Valid {
		return r
	}

	dims, err := ImageDimensions(ctx, bytes.NewReader(data))
	if err != nil {
		return fail("Image could not be read")
	}
	return ImageBounds(dims)
}

func isAllowedType(mimeType string) bool {
	for _, t := range AllowedImageTypes {
		if t == mimeType {
			return true
		}
	}
	return false
}
