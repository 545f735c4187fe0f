package matting

import (
	"fmt"

	"golang.org/x/image/draw"
)

const (
	// ModelID is the Hugging Face repository the network is fetched from.
	ModelID = "briaai/RMBG-1.4"
	// ModelURL is fixed; there is no local model discovery.
	ModelURL = "https://huggingface.co/" + ModelID + "/resolve/main/onnx/model.onnx"

	DTypeFP32 = "fp32"

	InputSize = 1024
)

// LoadOptions configures how a Runtime is built.
type LoadOptions struct {
	DType          string
	IntraOpThreads int
}

// ProcessorConfig is the preprocessing parameter set the network was trained with.
type ProcessorConfig struct {
	DoNormalize   bool
	ImageMean     [3]float32
	ImageStd      [3]float32
	DoRescale     bool
	RescaleFactor float32
	DoResize      bool
	Width, Height int
	Resample      draw.Interpolator
	DoPad         bool
}

// DefaultProcessorConfig returns the only configuration the service uses.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		DoNormalize:   true,
		ImageMean:     [3]float32{0.5, 0.5, 0.5},
		ImageStd:      [3]float32{1, 1, 1},
		DoRescale:     true,
		RescaleFactor: 1.0 / 255.0,
		DoResize:      true,
		Width:         InputSize,
		Height:        InputSize,
		Resample:      draw.BiLinear,
		DoPad:         false,
	}
}

// Validate rejects parameter sets the preprocessor cannot apply.
func (c ProcessorConfig) Validate() error {
	if c.DoResize && (c.Width <= 0 || c.Height <= 0 || c.Resample == nil) {
		return fmt.Errorf("invalid resize target %dx%d", c.Width, c.Height)
	}
	if c.DoRescale && c.RescaleFactor <= 0 {
		return fmt.Errorf("invalid rescale factor %v", c.RescaleFactor)
	}
	if c.DoNormalize {
		for i, s := range c.ImageStd {
			if s == 0 {
				return fmt.Errorf("zero std for channel %d", i)
			}
		}
	}
	if c.DoPad {
		return fmt.Errorf("padding is not supported")
	}
	return nil
}
