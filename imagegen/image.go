// Package imagegen renders prompts into PNG images through a diffusion
// backend chosen once at startup.
package imagegen

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// pngMagic is the 8-byte PNG signature.
var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// Image validation errors.
var (
	ErrImageEmpty      = errors.New("imagegen: image data is empty")
	ErrImageNotPNG     = errors.New("imagegen: image data is not a valid PNG")
	ErrImageDecodeFail = errors.New("imagegen: failed to decode image")
)

// Image is one rendered picture, PNG-encoded.
type Image struct {
	Data   []byte
	Width  int
	Height int

	// Seed is the seed sent to the backend, or -1 if the backend picks it.
	Seed int64
}

// IsPNG reports whether data starts with the PNG signature.
func IsPNG(data []byte) bool {
	return len(data) >= len(pngMagic) && bytes.Equal(data[:len(pngMagic)], pngMagic)
}

// DecodePNGConfig validates data as PNG and returns its dimensions.
// Only the header is parsed.
func DecodePNGConfig(data []byte) (width, height int, err error) {
	if len(data) == 0 {
		return 0, 0, ErrImageEmpty
	}
	if !IsPNG(data) {
		return 0, 0, ErrImageNotPNG
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrImageDecodeFail, err)
	}
	return cfg.Width, cfg.Height, nil
}

// Thumbnail returns a PNG scaled to width pixels wide, keeping the aspect
// ratio. Images already narrower than width are returned unchanged.
func Thumbnail(data []byte, width int) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecodeFail, err)
	}

	bounds := src.Bounds()
	if width <= 0 || bounds.Dx() <= width {
		return data, nil
	}
	height := bounds.Dy() * width / bounds.Dx()
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("imagegen: encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
