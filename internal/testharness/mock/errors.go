package mock

import "errors"

// Mock package errors.
var (
	// ErrNotConnected is returned when the host has no device attached.
	ErrNotConnected = errors.New("host not connected")

	// ErrBadFrame is returned when the device output cannot be framed.
	ErrBadFrame = errors.New("bad frame in device output")
)
