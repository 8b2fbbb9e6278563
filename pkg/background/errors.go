package background

import "errors"

var (
	// ErrCaptureFailed is returned when no usable frame was read.
	ErrCaptureFailed = errors.New("background: capture failed")

	// ErrNoFrames is returned by Median for an empty input.
	ErrNoFrames = errors.New("background: no frames")

	// ErrFrameMismatch is returned by Median when frames differ in size or type.
	ErrFrameMismatch = errors.New("background: frame size mismatch")
)
