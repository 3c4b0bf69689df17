package device

import "errors"

var (
	// ErrInvalidConfig is returned by New when the identity or channel list
	// is invalid. No device is created.
	ErrInvalidConfig = errors.New("invalid device config")

	// ErrUnhandled is returned by Write for message kinds the mock firmware
	// does not implement.
	ErrUnhandled = errors.New("unhandled message kind")

	// ErrShutdownTimeout is returned when a worker does not stop within the
	// shutdown timeout.
	ErrShutdownTimeout = errors.New("shutdown timeout")

	// ErrClosed is returned by Write after Close.
	ErrClosed = errors.New("device closed")
)
