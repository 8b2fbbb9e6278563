package compositor

import "errors"

var (
	// ErrDimensionMismatch is returned when the live frame and the
	// reference differ in size or type.
	ErrDimensionMismatch = errors.New("compositor: frame and reference dimensions differ")

	// ErrEmptyFrame is returned for an empty live frame or reference.
	ErrEmptyFrame = errors.New("compositor: empty frame")

	// ErrNoRanges is returned for a colour spec without intervals.
	ErrNoRanges = errors.New("compositor: color spec has no ranges")

	// ErrFrameType is returned when the live frame is not 8-bit BGR.
	ErrFrameType = errors.New("compositor: live frame must be 8-bit BGR")
)
