package compositor

import "fmt"

// Config holds the mask refinement parameters.
//
// Stage order is fixed: open, close, dilate, blur.
type Config struct {
	// Opening removes isolated false-positive pixels.
	OpenKernel     int
	OpenIterations int

	// Closing fills small holes inside the cloak.
	CloseKernel     int
	CloseIterations int

	// Dilation over-covers the cloak edge so no fringe is left behind.
	DilateKernel     int
	DilateIterations int

	// BlurKernel is the Gaussian kernel applied to the refined mask.
	BlurKernel int

	// SelectThreshold binarises the blurred mask: values above it take the
	// background pixel, the rest keep the live pixel.
	SelectThreshold float32
}

// DefaultConfig returns the refinement used for handheld webcams.
func DefaultConfig() Config {
	return Config{
		OpenKernel:       3,
		OpenIterations:   2,
		CloseKernel:      5,
		CloseIterations:  1,
		DilateKernel:     3,
		DilateIterations: 1,
		BlurKernel:       5,
		SelectThreshold:  127,
	}
}

// Validate checks kernel sizes and iteration counts.
func (c Config) Validate() error {
	kernels := []struct {
		name string
		size int
	}{
		{"open", c.OpenKernel},
		{"close", c.CloseKernel},
		{"dilate", c.DilateKernel},
		{"blur", c.BlurKernel},
	}
	for _, k := range kernels {
		if k.size < 1 || k.size%2 == 0 {
			return fmt.Errorf("compositor: %s kernel must be odd and positive, got %d", k.name, k.size)
		}
	}
	if c.OpenIterations < 1 || c.CloseIterations < 1 || c.DilateIterations < 1 {
		return fmt.Errorf("compositor: iterations must be >= 1")
	}
	if c.SelectThreshold < 0 || c.SelectThreshold >= 255 {
		return fmt.Errorf("compositor: select threshold must be in [0, 255), got %v", c.SelectThreshold)
	}
	return nil
}
