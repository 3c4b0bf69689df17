package transport

import (
	"context"
	"net"
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/device"
	"github.com/apt-mock/apt-mock-go/pkg/wire"
)

// Device is the byte-level surface a transport drives: one frame in per
// Write, pending output drained by Read.
// Implemented by *device.Device.
type Device interface {
	// Write submits exactly one encoded frame.
	Write(frame []byte) (int, error)

	// Read pops up to n bytes of pending output.
	Read(n int) []byte
}

// ConnectionTagger is implemented by devices that stamp their protocol log
// events with the id of the host connection driving them.
type ConnectionTagger interface {
	SetConnectionID(id string)
}

// ClientConnection represents a host-side connection to a mock.
// Implemented by ClientConn.
type ClientConnection interface {
	// LocalAddr returns the local network address.
	LocalAddr() net.Addr

	// RemoteAddr returns the remote network address.
	RemoteAddr() net.Addr

	// Send encodes and sends a message.
	Send(msg wire.Message) error

	// Receive reads the next message with the specified timeout.
	Receive(timeout time.Duration) (wire.Message, error)

	// WaitFor reads until a message of the given kind arrives.
	WaitFor(kind wire.Kind, timeout time.Duration) (wire.Message, error)

	// Close closes the connection.
	Close() error
}

// TransportServer represents a listener serving one device.
// Implemented by Server.
type TransportServer interface {
	// Start begins accepting connections.
	Start(ctx context.Context) error

	// Stop gracefully stops the server.
	Stop() error

	// Addr returns the server's listen address.
	Addr() net.Addr

	// ConnectionCount returns the number of active connections.
	ConnectionCount() int
}

// FrameReadWriter provides APT frame I/O.
// Implemented by Framer.
type FrameReadWriter interface {
	// ReadFrame reads one whole frame.
	ReadFrame() ([]byte, error)

	// WriteFrame writes one whole frame.
	WriteFrame(frame []byte) error
}

// Compile-time interface satisfaction checks.
var (
	_ Device           = (*device.Device)(nil)
	_ ConnectionTagger = (*device.Device)(nil)
	_ ClientConnection = (*ClientConn)(nil)
	_ TransportServer  = (*Server)(nil)
	_ FrameReadWriter  = (*Framer)(nil)
)
