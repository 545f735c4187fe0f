package matting

import (
	"fmt"
	"image"

	"github.com/JSFTI/bg-removal/internal/codec"
	"golang.org/x/image/draw"
)

// Preprocess turns a raster into the network input: alpha dropped, resized,
// rescaled and normalized, laid out as [1, 3, H, W] in RGB order.
func Preprocess(img *codec.RasterImage, cfg ProcessorConfig) (*Tensor, error) {
	if !img.Valid() {
		return nil, fmt.Errorf("%w: %dx%d with %d bytes", ErrInvalidRaster, img.Width, img.Height, len(img.Pix))
	}
	if _, err := layoutOf(img.Channels); err != nil {
		return nil, err
	}

	src := opaqueRGBA(img)
	if cfg.DoResize && (cfg.Width != img.Width || cfg.Height != img.Height) {
		dst := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
		cfg.Resample.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		src = dst
	}

	w, h := src.Rect.Dx(), src.Rect.Dy()
	plane := w * h
	t := NewTensor(1, 3, int64(h), int64(w))
	for i := 0; i < plane; i++ {
		for c := 0; c < 3; c++ {
			v := float32(src.Pix[i*4+c])
			if cfg.DoRescale {
				v *= cfg.RescaleFactor
			}
			if cfg.DoNormalize {
				v = (v - cfg.ImageMean[c]) / cfg.ImageStd[c]
			}
			t.Data[c*plane+i] = v
		}
	}
	return t, nil
}

// opaqueRGBA copies the color channels into an RGBA image with alpha forced
// to 255, so resampling never mixes in the source's own transparency.
func opaqueRGBA(img *codec.RasterImage) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	step := img.Channels
	for i, j := 0, 0; i < len(img.Pix); i, j = i+step, j+4 {
		dst.Pix[j] = img.Pix[i]
		dst.Pix[j+1] = img.Pix[i+1]
		dst.Pix[j+2] = img.Pix[i+2]
		dst.Pix[j+3] = 0xff
	}
	return dst
}
