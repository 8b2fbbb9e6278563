// Package app wires the camera, background estimator, compositor, window
// and web preview into a running invisibility cloak.
package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-cloak/pkg/background"
	"github.com/teslashibe/go-cloak/pkg/camera"
	"github.com/teslashibe/go-cloak/pkg/cloak"
	"github.com/teslashibe/go-cloak/pkg/compositor"
	"github.com/teslashibe/go-cloak/pkg/session"
)

// Default configuration values.
const (
	DefaultColor     = cloak.ColorRed
	DefaultWebPort   = 8090
	DefaultStreamFPS = 15
	DefaultCountdown = 3 * time.Second
	WindowTitle      = "Invisibility Cloak"
	MaskWindowTitle  = "Cloak Mask"
)

// Config holds all configuration for the cloak application.
// Flag parsing is done in cmd/cloak/main.go; this struct is data only.
type Config struct {
	// Debug enables per-frame debug output.
	Debug bool

	// ShowMask opens a second window with the refined mask.
	ShowMask bool

	// Color is a preset name or menu number (see cloak.Lookup).
	Color string

	Camera     camera.Config
	Background background.Config
	Compositor compositor.Config
	Session    session.Config

	// Headless disables the desktop window. Quit with Ctrl+C.
	Headless bool

	// WebPort serves the preview and control API. 0 disables it.
	WebPort int

	// StreamFPS caps how often frames are JPEG-encoded for the preview.
	StreamFPS int

	// Countdown is how long the user has to leave the frame before the
	// background is captured.
	Countdown time.Duration
}

// DefaultConfig returns defaults for every component.
func DefaultConfig() Config {
	cam := camera.DefaultConfig()
	bg := background.DefaultConfig()
	sess := session.DefaultConfig()
	sess.Mirror = bg.Mirror
	sess.JPEGQuality = cam.Quality

	return Config{
		Color:      DefaultColor,
		Camera:     cam,
		Background: bg,
		Compositor: compositor.DefaultConfig(),
		Session:    sess,
		WebPort:    DefaultWebPort,
		StreamFPS:  DefaultStreamFPS,
		Countdown:  DefaultCountdown,
	}
}

// Validate checks every component config and resolves the colour.
func (c *Config) Validate() error {
	if _, err := cloak.Lookup(c.Color); err != nil {
		return &ConfigError{Field: "Color", Message: fmt.Sprintf("%v (choose %s or 1-%d)",
			err, strings.Join(cloak.PresetNames(), ", "), len(cloak.PresetNames()))}
	}
	if errs := c.Camera.Validate(); len(errs) > 0 {
		return &ConfigError{Field: "Camera", Message: "camera: " + strings.Join(errs, "; ")}
	}
	if err := c.Background.Validate(); err != nil {
		return &ConfigError{Field: "Background", Message: err.Error()}
	}
	if err := c.Compositor.Validate(); err != nil {
		return &ConfigError{Field: "Compositor", Message: err.Error()}
	}
	if err := c.Session.Validate(); err != nil {
		return &ConfigError{Field: "Session", Message: err.Error()}
	}
	if c.WebPort < 0 || c.WebPort > 65535 {
		return &ConfigError{Field: "WebPort", Message: fmt.Sprintf("web port %d out of range", c.WebPort)}
	}
	if c.StreamFPS < 1 {
		return &ConfigError{Field: "StreamFPS", Message: "stream fps must be >= 1"}
	}
	if c.Countdown < 0 {
		return &ConfigError{Field: "Countdown", Message: "countdown must not be negative"}
	}
	if c.Headless && c.WebPort == 0 {
		return &ConfigError{Field: "Headless", Message: "headless mode needs the web preview (set a port)"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
