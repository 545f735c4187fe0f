// Package codec turns uploaded bytes into raw rasters and RGBA buffers
// back into PNG.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// RasterImage is a decoded image as tightly packed 8-bit samples.
// Channels is 3 (RGB) or 4 (non-premultiplied RGBA).
type RasterImage struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// Valid reports whether Pix matches the declared geometry.
func (r *RasterImage) Valid() bool {
	return r != nil && r.Width > 0 && r.Height > 0 &&
		len(r.Pix) == r.Width*r.Height*r.Channels
}

// PixelCount returns Width*Height.
func (r *RasterImage) PixelCount() int {
	return r.Width * r.Height
}

// DefaultMaxPixels bounds decoded rasters when no limit is given.
const DefaultMaxPixels = 40_000_000

// ErrTooManyPixels is returned for images whose header declares more
// pixels than the decode limit.
var ErrTooManyPixels = errors.New("image dimensions exceed limit")

// Decode parses an uploaded image, applying any EXIF orientation.
// Fully opaque images come back as RGB, everything else as RGBA.
// The header is checked against maxPixels before any pixel is decoded;
// maxPixels <= 0 means DefaultMaxPixels.
func Decode(data []byte, maxPixels int) (*RasterImage, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("image has empty dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d is over %d pixels", ErrTooManyPixels, cfg.Width, cfg.Height, maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("image has empty bounds %v", b)
	}
	return FromImage(img), nil
}

// FromImage converts any image.Image into a packed raster.
func FromImage(img image.Image) *RasterImage {
	b := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) || nrgba.Stride != 4*b.Dx() {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}

	if !nrgba.Opaque() {
		pix := make([]byte, len(nrgba.Pix))
		copy(pix, nrgba.Pix)
		return &RasterImage{Width: b.Dx(), Height: b.Dy(), Channels: 4, Pix: pix}
	}

	pix := make([]byte, b.Dx()*b.Dy()*3)
	for i, j := 0, 0; j < len(pix); i, j = i+4, j+3 {
		pix[j] = nrgba.Pix[i]
		pix[j+1] = nrgba.Pix[i+1]
		pix[j+2] = nrgba.Pix[i+2]
	}
	return &RasterImage{Width: b.Dx(), Height: b.Dy(), Channels: 3, Pix: pix}
}

// EncodePNG writes a packed non-premultiplied RGBA buffer as PNG.
func EncodePNG(rgba []byte, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 || len(rgba) != width*height*4 {
		return nil, fmt.Errorf("rgba buffer of %d bytes does not match %dx%d", len(rgba), width, height)
	}
	img := &image.NRGBA{
		Pix:    rgba,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
