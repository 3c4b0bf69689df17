package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/log"
	"github.com/google/uuid"
)

// DefaultAddress is the TCP address used when none is configured.
const DefaultAddress = "127.0.0.1:7480"

// ServerConfig configures a Server.
type ServerConfig struct {
	// Network is "tcp" (default) or "unix".
	Network string

	// Address to listen on: host:port for tcp, a socket path for unix.
	Address string

	// Device served to connecting hosts. Required.
	Device Device

	// Link admits one host at a time. Share it with other transports of the
	// same device; nil gives the server its own.
	Link *HostLink

	// PollInterval and Baud are passed to each connection's Bridge.
	PollInterval time.Duration
	Baud         int

	// Logger receives operational logs (optional).
	Logger *slog.Logger

	// ProtocolLogger receives connection state and frame events (optional).
	ProtocolLogger log.Logger

	// OnConnect is called when a host is admitted.
	OnConnect func(conn *ServerConn)

	// OnDisconnect is called when an admitted host's connection ends.
	OnDisconnect func(conn *ServerConn)

	// OnError is called when an error occurs. conn is nil for listener
	// errors and rejected hosts.
	OnError func(conn *ServerConn, err error)
}

// Server accepts host connections for one device.
type Server struct {
	config   ServerConfig
	listener net.Listener

	// Active connections
	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server. Start begins listening.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Device == nil {
		return nil, fmt.Errorf("device is required")
	}
	switch config.Network {
	case "":
		config.Network = "tcp"
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		return nil, fmt.Errorf("unsupported network %q", config.Network)
	}
	if config.Address == "" {
		if config.Network == "unix" {
			return nil, fmt.Errorf("unix socket path is required")
		}
		config.Address = DefaultAddress
	}
	if config.Link == nil {
		config.Link = &HostLink{}
	}

	return &Server{
		config: config,
		conns:  make(map[*ServerConn]struct{}),
	}, nil
}

// Start begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	if s.config.Network == "unix" {
		// A socket left behind by a crashed run would make Listen fail.
		if err := os.Remove(s.config.Address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, s.config.Network, s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)
	s.debugLog("listening", "network", s.config.Network, "addr", listener.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop closes the listener and every connection, then waits for them.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.cancel()
	err := s.listener.Close()

	s.connsMu.RLock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.RUnlock()

	// Wait for goroutines
	s.wg.Wait()

	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Addr returns the server's listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// acceptLoop accepts incoming connections.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if s.running.Load() && s.config.OnError != nil {
				s.config.OnError(nil, fmt.Errorf("accept error: %w", err))
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection serves one host until it disconnects.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	connID := uuid.New().String()
	remote := remoteString(conn.RemoteAddr())

	if !s.config.Link.Acquire(connID) {
		conn.Close()
		logConnState(s.config.ProtocolLogger, connID, remote, "", "REJECTED", "busy")
		s.debugLog("host rejected", "remote", remote)
		if s.config.OnError != nil {
			s.config.OnError(nil, fmt.Errorf("%w: %s", ErrHostBusy, remote))
		}
		return
	}
	defer s.config.Link.Release(connID)

	sconn := &ServerConn{
		conn:       conn,
		remoteAddr: conn.RemoteAddr(),
		connID:     connID,
	}
	sconn.bridge = NewBridge(s.config.Device, conn, BridgeConfig{
		ConnID:         connID,
		PollInterval:   s.config.PollInterval,
		Baud:           s.config.Baud,
		Logger:         s.config.Logger,
		ProtocolLogger: s.config.ProtocolLogger,
		OnError: func(err error) {
			if s.config.OnError != nil {
				s.config.OnError(sconn, err)
			}
		},
	})

	logConnState(s.config.ProtocolLogger, connID, remote, "", "CONNECTED", "")
	s.debugLog("host connected", "conn", connID, "remote", remote)

	s.connsMu.Lock()
	s.conns[sconn] = struct{}{}
	s.connsMu.Unlock()

	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	err := sconn.bridge.Run(s.ctx)
	if err != nil && s.config.OnError != nil {
		s.config.OnError(sconn, err)
	}

	s.connsMu.Lock()
	delete(s.conns, sconn)
	s.connsMu.Unlock()

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	logConnState(s.config.ProtocolLogger, connID, remote, "CONNECTED", "DISCONNECTED", reason)
	s.debugLog("host disconnected", "conn", connID, "error", err)

	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

func (s *Server) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

// ServerConn is one admitted host connection.
type ServerConn struct {
	conn       net.Conn
	bridge     *Bridge
	closeOnce  sync.Once
	remoteAddr net.Addr
	connID     string
}

// RemoteAddr returns the remote address of the host.
func (c *ServerConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// ConnID returns the unique connection identifier.
func (c *ServerConn) ConnID() string {
	return c.connID
}

// Close closes the connection.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

func remoteString(addr net.Addr) string {
	if addr == nil || addr.String() == "" {
		return "local"
	}
	return addr.String()
}
