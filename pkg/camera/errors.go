package camera

import "errors"

var (
	// ErrDeviceUnavailable is returned when a device or file cannot be opened.
	ErrDeviceUnavailable = errors.New("camera: device unavailable")

	// ErrReadFailed is returned when a single frame read fails.
	ErrReadFailed = errors.New("camera: read failed")

	// ErrEndOfStream is returned when a video file has no more frames.
	ErrEndOfStream = errors.New("camera: end of stream")

	// ErrClosed is returned when reading from a closed source.
	ErrClosed = errors.New("camera: source closed")
)
