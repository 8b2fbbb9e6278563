package session

import "errors"

var (
	// ErrDeviceLost is returned by Run after too many consecutive read failures.
	ErrDeviceLost = errors.New("session: camera lost")

	// ErrNoReference is returned when compositing is attempted before a
	// background has been captured.
	ErrNoReference = errors.New("session: no background captured")

	// ErrStopped can be returned from OnFrame to end Run cleanly.
	ErrStopped = errors.New("session: stopped")
)
