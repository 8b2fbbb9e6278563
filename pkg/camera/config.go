// Package camera opens capture devices and video files for the cloak pipeline.
// Format settings are hints: a device is free to ignore them.
package camera

import "fmt"

// Config holds capture settings.
type Config struct {
	// Device is the capture index passed to OpenCV (0 = first webcam).
	Device int `json:"device"`

	// Path opens a video file instead of a device when set.
	Path string `json:"path,omitempty"`

	// === Format hints ===
	Width     int `json:"width"`     // Requested frame width in pixels
	Height    int `json:"height"`    // Requested frame height in pixels
	Framerate int `json:"framerate"` // Requested FPS

	// Quality is the JPEG quality (1-100) used for screenshots and the preview stream.
	Quality int `json:"quality"`
}

// Limits for requested formats
const (
	MinWidth     = 160
	MinHeight    = 120
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns 640x480 at 30 FPS, the format most webcams
// negotiate without dropping frames.
func DefaultConfig() Config {
	return Config{
		Device:    0,
		Width:     640,
		Height:    480,
		Framerate: 30,
		Quality:   90,
	}
}

// Source reports whether the config opens a file or a device.
func (c Config) Source() string {
	if c.Path != "" {
		return c.Path
	}
	return fmt.Sprintf("device %d", c.Device)
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Path == "" && c.Device < 0 {
		errors = append(errors, "device must be >= 0")
	}
	if c.Width < MinWidth || c.Width > MaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between %d and %d", MinWidth, MaxWidth))
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between %d and %d", MinHeight, MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	return errors
}
