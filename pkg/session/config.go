package session

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds session behaviour that is not part of the image pipeline.
type Config struct {
	// MaxReadFailures is how many consecutive failed reads end the session.
	MaxReadFailures int

	// Mirror flips live frames horizontally before compositing. It should
	// match the background estimator so both images line up.
	Mirror bool

	// RecaptureSchedule is a cron expression ("@every 10m", "*/15 * * * *")
	// that periodically requests a background recapture. Empty disables it.
	RecaptureSchedule string

	// RecaptureDelay is how long after a recapture request the background
	// is read, so the subject can leave the frame. Live frames keep
	// compositing against the old background meanwhile.
	RecaptureDelay time.Duration

	// ScreenshotDir receives screenshot files.
	ScreenshotDir string

	// JPEGQuality is used for screenshots.
	JPEGQuality int
}

// DefaultRecaptureDelay matches the startup countdown.
const DefaultRecaptureDelay = 3 * time.Second

// DefaultConfig returns the session defaults.
func DefaultConfig() Config {
	return Config{
		MaxReadFailures: 10,
		Mirror:          true,
		RecaptureDelay:  DefaultRecaptureDelay,
		ScreenshotDir:   "screenshots",
		JPEGQuality:     90,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.MaxReadFailures < 1 {
		return fmt.Errorf("session: max read failures must be >= 1, got %d", c.MaxReadFailures)
	}
	if c.RecaptureDelay < 0 {
		return fmt.Errorf("session: recapture delay must not be negative, got %v", c.RecaptureDelay)
	}
	if c.RecaptureSchedule != "" {
		if _, err := cron.ParseStandard(c.RecaptureSchedule); err != nil {
			return fmt.Errorf("session: recapture schedule %q: %w", c.RecaptureSchedule, err)
		}
	}
	return nil
}
