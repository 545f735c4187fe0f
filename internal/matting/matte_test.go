package matting

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatteFromTensor_ScalesAndClamps(t *testing.T) {
	tensor := &Tensor{
		Shape: []int64{1, 1, 2, 3},
		Data:  []float32{0, 0.5, 1, -0.2, 1.7, float32(math.NaN())},
	}

	mask, err := MatteFromTensor(tensor)
	require.NoError(t, err)

	assert.Equal(t, 3, mask.Width)
	assert.Equal(t, 2, mask.Height)
	assert.Equal(t, []byte{0, 127, 255, 0, 255, 0}, mask.Pix)
}

func TestMatteFromTensor_UsesBatchZero(t *testing.T) {
	tensor := &Tensor{
		Shape: []int64{2, 1, 1, 2},
		Data:  []float32{1, 1, 0, 0},
	}

	mask, err := MatteFromTensor(tensor)
	require.NoError(t, err)
	assert.Equal(t, []byte{255, 255}, mask.Pix)
}

func TestMatteFromTensor_RankThree(t *testing.T) {
	mask, err := MatteFromTensor(&Tensor{Shape: []int64{1, 1, 2}, Data: []float32{1, 0}})
	require.NoError(t, err)
	assert.Equal(t, 2, mask.Width)
	assert.Equal(t, 1, mask.Height)
}

func TestMatteFromTensor_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		tensor *Tensor
	}{
		{"nil", nil},
		{"too many channels", &Tensor{Shape: []int64{1, 3, 1, 1}, Data: make([]float32, 3)}},
		{"data shorter than shape", &Tensor{Shape: []int64{1, 1, 2, 2}, Data: make([]float32, 3)}},
		{"rank two", &Tensor{Shape: []int64{2, 2}, Data: make([]float32, 4)}},
		{"zero dim", &Tensor{Shape: []int64{1, 1, 0, 2}, Data: nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MatteFromTensor(tt.tensor)
			assert.ErrorIs(t, err, ErrMalformedOutput)
		})
	}
}

func TestResizeMatte_SameSizeCopies(t *testing.T) {
	src := &AlphaMask{Width: 2, Height: 1, Pix: []byte{9, 200}}

	out, err := ResizeMatte(src, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, out.Pix)

	out.Pix[0] = 0
	assert.Equal(t, byte(9), src.Pix[0], "resize must not alias the source")
}

func TestResizeMatte_UniformValuesSurvive(t *testing.T) {
	for _, v := range []byte{0, 255} {
		src := &AlphaMask{Width: 8, Height: 8, Pix: make([]byte, 64)}
		for i := range src.Pix {
			src.Pix[i] = v
		}

		out, err := ResizeMatte(src, 3, 5)
		require.NoError(t, err)
		require.Len(t, out.Pix, 15)
		for i, got := range out.Pix {
			assert.Equal(t, v, got, "pixel %d", i)
		}
	}
}

func TestResizeMatte_Upscale(t *testing.T) {
	src := &AlphaMask{Width: 2, Height: 2, Pix: []byte{0, 255, 0, 255}}

	out, err := ResizeMatte(src, 6, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, out.Width)
	assert.Equal(t, 4, out.Height)
	assert.Len(t, out.Pix, 24)
}

func TestResizeMatte_Invalid(t *testing.T) {
	_, err := ResizeMatte(&AlphaMask{Width: 2, Height: 2, Pix: []byte{1}}, 2, 2)
	assert.ErrorIs(t, err, ErrMaskMismatch)

	_, err = ResizeMatte(&AlphaMask{Width: 1, Height: 1, Pix: []byte{1}}, 0, 2)
	assert.ErrorIs(t, err, ErrMaskMismatch)
}
