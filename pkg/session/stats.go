package session

import "time"

// Stats is a point-in-time copy of session counters.
type Stats struct {
	ID        string    `json:"id"`
	Color     string    `json:"color"`
	StartedAt time.Time `json:"started_at"`

	Frames              uint64  `json:"frames"`
	FPS                 float64 `json:"fps"`
	Coverage            float64 `json:"coverage"`
	ReadFailures        uint64  `json:"read_failures"`
	ConsecutiveFailures int     `json:"consecutive_failures"`

	BackgroundAt      time.Time `json:"background_at"`
	BackgroundFrames  int       `json:"background_frames"`
	Recaptures        int       `json:"recaptures"`
	FailedRecaptures  int       `json:"failed_recaptures"`
	LastDrift         int       `json:"last_drift"`
	RecapturePending  bool      `json:"recapture_pending"`
	RecaptureAt       time.Time `json:"recapture_at"`
	Screenshots       int       `json:"screenshots"`
	LastScreenshot    string    `json:"last_screenshot,omitempty"`
	ScreenshotPending bool      `json:"screenshot_pending"`
}
