package matting

import (
	"fmt"

	"github.com/JSFTI/bg-removal/internal/codec"
)

// PixelLayout is the channel arrangement of a source raster.
type PixelLayout int

const (
	LayoutRGB PixelLayout = iota + 1
	LayoutRGBA
)

func layoutOf(channels int) (PixelLayout, error) {
	switch channels {
	case 3:
		return LayoutRGB, nil
	case 4:
		return LayoutRGBA, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedChannels, channels)
	}
}

// Composite merges the source color channels with mask into a packed RGBA
// buffer of exactly width*height*4 bytes. The source's own alpha is discarded.
func Composite(src *codec.RasterImage, mask *AlphaMask) ([]byte, error) {
	layout, err := layoutOf(src.Channels)
	if err != nil {
		return nil, err
	}
	if !src.Valid() {
		return nil, fmt.Errorf("%w: %dx%dx%d with %d bytes", ErrInvalidRaster, src.Width, src.Height, src.Channels, len(src.Pix))
	}
	n := src.PixelCount()
	if mask == nil || mask.Width != src.Width || mask.Height != src.Height || len(mask.Pix) != n {
		return nil, fmt.Errorf("%w: raster %dx%d", ErrMaskMismatch, src.Width, src.Height)
	}

	out := make([]byte, n*4)
	switch layout {
	case LayoutRGB:
		for i := 0; i < n; i++ {
			copy(out[4*i:4*i+3], src.Pix[3*i:3*i+3])
			out[4*i+3] = mask.Pix[i]
		}
	case LayoutRGBA:
		for i := 0; i < n; i++ {
			copy(out[4*i:4*i+3], src.Pix[4*i:4*i+3])
			out[4*i+3] = mask.Pix[i]
		}
	}
	return out, nil
}
