package transport

import (
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketConfig configures a WebSocketHandler.
type WebSocketConfig struct {
	// Device served to connecting hosts. Required.
	Device Device

	// Link admits one host at a time; nil gives the handler its own.
	Link *HostLink

	// PollInterval and Baud are passed to each connection's Bridge.
	PollInterval time.Duration
	Baud         int

	// CheckOrigin overrides the upgrader's origin check. Nil accepts any
	// origin.
	CheckOrigin func(r *http.Request) bool

	// Logger receives operational logs (optional).
	Logger *slog.Logger

	// ProtocolLogger receives connection state and frame events (optional).
	ProtocolLogger log.Logger

	// OnError is called for frames the device rejected and for bridges
	// that ended with an error.
	OnError func(connID string, err error)
}

// WebSocketHandler serves a device over WebSocket. Every frame travels as
// one binary message in each direction; text messages are ignored.
type WebSocketHandler struct {
	config   WebSocketConfig
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a handler.
func NewWebSocketHandler(config WebSocketConfig) *WebSocketHandler {
	if config.Link == nil {
		config.Link = &HostLink{}
	}
	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &WebSocketHandler{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  MaxFrameSize,
			WriteBufferSize: MaxFrameSize,
			CheckOrigin:     checkOrigin,
		},
	}
}

// ServeHTTP upgrades the request and bridges it to the device until either
// side closes.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	connID := uuid.New().String()
	remote := r.RemoteAddr

	if !h.config.Link.Acquire(connID) {
		logConnState(h.config.ProtocolLogger, connID, remote, "", "REJECTED", "busy")
		http.Error(w, ErrHostBusy.Error(), http.StatusConflict)
		return
	}
	defer h.config.Link.Release(connID)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.debugLog("websocket upgrade failed", "remote", remote, "error", err)
		return
	}

	bridge := NewBridge(h.config.Device, &wsStream{conn: conn}, BridgeConfig{
		ConnID:         connID,
		PollInterval:   h.config.PollInterval,
		Baud:           h.config.Baud,
		Logger:         h.config.Logger,
		ProtocolLogger: h.config.ProtocolLogger,
		OnError: func(err error) {
			if h.config.OnError != nil {
				h.config.OnError(connID, err)
			}
		},
	})

	logConnState(h.config.ProtocolLogger, connID, remote, "", "CONNECTED", "websocket")
	h.debugLog("websocket host connected", "conn", connID, "remote", remote)

	err = bridge.Run(r.Context())
	if err != nil && h.config.OnError != nil {
		h.config.OnError(connID, err)
	}

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	logConnState(h.config.ProtocolLogger, connID, remote, "CONNECTED", "DISCONNECTED", reason)
	h.debugLog("websocket host disconnected", "conn", connID, "error", err)
}

func (h *WebSocketHandler) debugLog(msg string, args ...any) {
	if h.config.Logger != nil {
		h.config.Logger.Debug(msg, args...)
	}
}

// wsStream adapts a WebSocket connection to a byte stream. Reads
// concatenate binary messages; each Write sends one binary message.
type wsStream struct {
	conn    *websocket.Conn
	reader  io.Reader
	writeMu sync.Mutex
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.reader == nil {
			typ, r, err := s.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			s.reader = r
		}

		n, err := s.reader.Read(p)
		if err == io.EOF {
			s.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}
