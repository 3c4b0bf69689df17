package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/device"
	"github.com/apt-mock/apt-mock-go/pkg/journal"
	"github.com/apt-mock/apt-mock-go/pkg/wire"
	"github.com/go-chi/chi/v5"
)

// WebConfig holds configuration for the HTTP inspection API.
type WebConfig struct {
	Address string
	Version string
	Device  *device.Device

	// Journal serves /api/v1/moves. Nil answers 404.
	Journal *journal.Store

	// WebSocket serves /ws. Nil leaves the route unregistered.
	WebSocket http.Handler

	Logger *slog.Logger
}

// WebServer exposes device state over HTTP.
type WebServer struct {
	config WebConfig
	router chi.Router
	server *http.Server
	ln     net.Listener
}

// deviceResponse is the /api/v1/device body.
type deviceResponse struct {
	Serial       uint32 `json:"serial"`
	Model        string `json:"model"`
	Firmware     string `json:"firmware"`
	HWType       int    `json:"hw_type"`
	HWVersion    int    `json:"hw_version"`
	Notes        string `json:"notes,omitempty"`
	Channels     int    `json:"channels"`
	Broadcasting bool   `json:"broadcasting"`
	EndOfMoveOff bool   `json:"end_of_move_suspended"`
}

// channelResponse is a channel snapshot with the status word spelled out.
type channelResponse struct {
	device.Snapshot
	Flags string `json:"flags"`
}

// NewWebServer creates the HTTP server. Call Start to listen.
func NewWebServer(cfg WebConfig) *WebServer {
	s := &WebServer{config: cfg}
	s.router = s.routes()
	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// routes sets up all HTTP routes.
func (s *WebServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/device", s.handleDevice)
	r.Get("/api/v1/channels", s.handleChannels)
	r.Get("/api/v1/channels/{id}", s.handleChannel)
	r.Get("/api/v1/moves", s.handleMoves)
	r.Get("/api/v1/moves/stats", s.handleMoveStats)
	if s.config.WebSocket != nil {
		r.Handle("/ws", s.config.WebSocket)
	}
	return r
}

// Start listens on the configured address and serves in the background.
func (s *WebServer) Start() error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.ln = ln
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && s.config.Logger != nil {
			s.config.Logger.Error("http server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *WebServer) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close shuts the server down, waiting briefly for in-flight requests.
func (s *WebServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// handleHealth returns the server health status.
func (s *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	version := s.config.Version
	if version == "" {
		version = "dev"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version,
	})
}

func (s *WebServer) handleDevice(w http.ResponseWriter, r *http.Request) {
	d := s.config.Device
	id := d.Identity()
	writeJSON(w, http.StatusOK, deviceResponse{
		Serial:       id.Serial,
		Model:        id.Model,
		Firmware:     id.Firmware,
		HWType:       id.HWType,
		HWVersion:    id.HWVersion,
		Notes:        id.Notes,
		Channels:     len(d.Channels()),
		Broadcasting: d.Broadcasting(),
		EndOfMoveOff: d.EndOfMoveSuspended(),
	})
}

func (s *WebServer) handleChannels(w http.ResponseWriter, r *http.Request) {
	snaps := s.config.Device.Snapshots()
	resp := make([]channelResponse, len(snaps))
	for i, snap := range snaps {
		resp[i] = channelResponse{Snapshot: snap, Flags: snap.Status.String()}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *WebServer) handleChannel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 16)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel id")
		return
	}
	snap, ok := s.config.Device.Snapshot(uint16(id))
	if !ok {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	writeJSON(w, http.StatusOK, channelResponse{Snapshot: snap, Flags: snap.Status.String()})
}

func (s *WebServer) handleMoves(w http.ResponseWriter, r *http.Request) {
	if s.config.Journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}

	var q journal.Query
	params := r.URL.Query()
	if v := params.Get("channel"); v != "" {
		ch, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid channel")
			return
		}
		q.Channel = uint16(ch)
	}
	if v := params.Get("kind"); v != "" {
		kind, ok := wire.KindByName(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown kind")
			return
		}
		q.Kind = kind
	}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = n
	}

	moves, err := s.config.Journal.Moves(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if moves == nil {
		moves = []journal.Move{}
	}
	writeJSON(w, http.StatusOK, moves)
}

func (s *WebServer) handleMoveStats(w http.ResponseWriter, r *http.Request) {
	if s.config.Journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	stats, err := s.config.Journal.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if stats == nil {
		stats = []journal.ChannelStats{}
	}
	writeJSON(w, http.StatusOK, stats)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
