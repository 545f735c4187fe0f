package matting

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedOutput indicates the network returned a tensor of unexpected shape
	ErrMalformedOutput = errors.New("malformed output tensor")

	// ErrUnsupportedChannels indicates a raster that is neither RGB nor RGBA
	ErrUnsupportedChannels = errors.New("unsupported channel count")

	// ErrMaskMismatch indicates the alpha mask does not cover the raster exactly
	ErrMaskMismatch = errors.New("alpha mask does not match raster")

	// ErrInvalidRaster indicates pixel data that disagrees with the declared geometry
	ErrInvalidRaster = errors.New("invalid raster")
)

// Tensor is a dense float32 buffer in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(shape ...int64) *Tensor {
	return &Tensor{Shape: shape, Data: make([]float32, elements(shape))}
}

func elements(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return int(n)
}

// Validate checks that Data holds exactly as many values as Shape describes.
func (t *Tensor) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil tensor", ErrMalformedOutput)
	}
	for _, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("%w: shape %v", ErrMalformedOutput, t.Shape)
		}
	}
	if want := elements(t.Shape); want == 0 || len(t.Data) != want {
		return fmt.Errorf("%w: shape %v holds %d values, got %d", ErrMalformedOutput, t.Shape, want, len(t.Data))
	}
	return nil
}
