package matting

import (
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/nfnt/resize"
)

// AlphaMask holds one 8-bit alpha value per pixel.
type AlphaMask struct {
	Width  int
	Height int
	Pix    []byte
}

// MatteFromTensor takes batch 0 of a [N,1,H,W] or [N,H,W] network output and
// scales it from [0,1] to bytes. Out of range values are clamped.
func MatteFromTensor(t *Tensor) (*AlphaMask, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	var h, w int64
	switch len(t.Shape) {
	case 4:
		if t.Shape[1] != 1 {
			return nil, fmt.Errorf("%w: expected one channel, got shape %v", ErrMalformedOutput, t.Shape)
		}
		h, w = t.Shape[2], t.Shape[3]
	case 3:
		h, w = t.Shape[1], t.Shape[2]
	default:
		return nil, fmt.Errorf("%w: unexpected rank %d (shape %v)", ErrMalformedOutput, len(t.Shape), t.Shape)
	}

	n := int(h * w)
	mask := &AlphaMask{Width: int(w), Height: int(h), Pix: make([]byte, n)}
	for i, v := range t.Data[:n] {
		switch {
		case v <= 0 || math.IsNaN(float64(v)):
			mask.Pix[i] = 0
		case v >= 1:
			mask.Pix[i] = 255
		default:
			mask.Pix[i] = uint8(v * 255)
		}
	}
	return mask, nil
}

// ResizeMatte scales the mask to width x height with bilinear resampling.
func ResizeMatte(m *AlphaMask, width, height int) (*AlphaMask, error) {
	if m == nil || len(m.Pix) != m.Width*m.Height || m.Width <= 0 || m.Height <= 0 {
		return nil, fmt.Errorf("%w: source mask is malformed", ErrMaskMismatch)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: target %dx%d", ErrMaskMismatch, width, height)
	}

	out := &AlphaMask{Width: width, Height: height, Pix: make([]byte, width*height)}
	if m.Width == width && m.Height == height {
		copy(out.Pix, m.Pix)
		return out, nil
	}

	src := &image.Gray{Pix: m.Pix, Stride: m.Width, Rect: image.Rect(0, 0, m.Width, m.Height)}
	scaled := resize.Resize(uint(width), uint(height), src, resize.Bilinear)

	gray, ok := scaled.(*image.Gray)
	if !ok {
		gray = image.NewGray(scaled.Bounds())
		draw.Draw(gray, gray.Bounds(), scaled, scaled.Bounds().Min, draw.Src)
	}
	for y := 0; y < height; y++ {
		row := gray.PixOffset(gray.Rect.Min.X, gray.Rect.Min.Y+y)
		copy(out.Pix[y*width:(y+1)*width], gray.Pix[row:row+width])
	}
	return out, nil
}
