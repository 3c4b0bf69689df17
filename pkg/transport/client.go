package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/log"
	"github.com/apt-mock/apt-mock-go/pkg/wire"
)

// ClientConfig configures a host-side client.
type ClientConfig struct {
	// Network is "tcp" (default) or "unix".
	Network string

	// DialTimeout bounds connection setup (default 5s).
	DialTimeout time.Duration

	// ProtocolLogger receives frame events (optional).
	ProtocolLogger log.Logger
}

// Client connects hosts to a mock served by Server.
type Client struct {
	config ClientConfig
}

// NewClient creates a new client.
func NewClient(config ClientConfig) *Client {
	if config.Network == "" {
		config.Network = "tcp"
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	return &Client{config: config}
}

// Connect dials the mock.
func (c *Client) Connect(ctx context.Context, address string) (*ClientConn, error) {
	dialer := &net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, c.config.Network, address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	framer := NewFramer(conn)
	framer.SetLogger(c.config.ProtocolLogger, "")

	return &ClientConn{
		conn:    conn,
		framer:  framer,
		closeCh: make(chan struct{}),
	}, nil
}

// ClientConn is a host connection to a mock.
type ClientConn struct {
	conn    net.Conn
	framer  *Framer
	closeCh chan struct{}

	closeOnce sync.Once
	writeMu   sync.Mutex
	readMu    sync.Mutex
}

// LocalAddr returns the local network address.
func (c *ClientConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *ClientConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send encodes and sends a message.
func (c *ClientConn) Send(msg wire.Message) error {
	frame, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	return c.SendFrame(frame)
}

// SendFrame sends raw bytes as one write. Used to inject malformed frames.
func (c *ClientConn) SendFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	return c.framer.WriteFrame(frame)
}

// Receive reads the next message. A positive timeout bounds the wait; a
// timeout error wraps os.ErrDeadlineExceeded.
func (c *ClientConn) Receive(timeout time.Duration) (wire.Message, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closeCh:
		return wire.Message{}, ErrConnectionClosed
	default:
	}

	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}

	return c.framer.ReadMessage()
}

// WaitFor reads messages until one of the given kind arrives, discarding
// the others. The timeout covers the whole wait.
func (c *ClientConn) WaitFor(kind wire.Kind, timeout time.Duration) (wire.Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return wire.Message{}, fmt.Errorf("timed out waiting for %s", kind)
		}
		msg, err := c.Receive(remaining)
		if err != nil {
			return wire.Message{}, fmt.Errorf("waiting for %s: %w", kind, err)
		}
		if msg.Kind == kind {
			return msg, nil
		}
	}
}

// Close closes the connection.
func (c *ClientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}
