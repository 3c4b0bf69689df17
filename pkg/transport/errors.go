package transport

import "errors"

// Transport errors.
var (
	// ErrConnectionClosed indicates use of a closed connection.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrHostBusy indicates a second host tried to connect while another
	// one is driving the device.
	ErrHostBusy = errors.New("another host is connected")

	// ErrPTYUnsupported is returned by OpenPTY on platforms without Unix98
	// pseudo-terminals.
	ErrPTYUnsupported = errors.New("pseudo-terminals are not supported on this platform")
)
