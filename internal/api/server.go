package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/vaultos/vaultwm/internal/logger"
	"github.com/vaultos/vaultwm/internal/snapshot"
)

// Version is reported by /api/health
const Version = "0.1.0"

// ErrNotLocal is returned when asked to listen on a non-loopback address
var ErrNotLocal = errors.New("status endpoint must bind to a loopback address")

// Server exposes read-only window manager state over HTTP
type Server struct {
	router   *mux.Router
	hub      *snapshot.Hub
	upgrader websocket.Upgrader
	http     *http.Server
}

// NewServer creates a new API server reading from hub
func NewServer(hub *snapshot.Hub) *Server {
	s := &Server{
		router: mux.NewRouter(),
		hub:    hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: sameHost,
		},
	}

	s.setupRoutes()
	return s
}

// sameHost accepts websocket upgrades from pages served by this host
func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return strings.HasSuffix(origin, "://"+r.Host)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// full paths on the root router: a subrouter answers a method
	// mismatch with 404 instead of 405
	r := s.router
	r.HandleFunc("/api/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/api/status/stream", s.handleStatusStream).Methods("GET")
	r.HandleFunc("/api/workspaces", s.handleWorkspaces).Methods("GET")
	r.HandleFunc("/api/workspaces/{index:[0-9]+}", s.handleWorkspace).Methods("GET")
	r.HandleFunc("/api/outputs", s.handleOutputs).Methods("GET")
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr, which must be a loopback address, and serves
// until Shutdown.
func (s *Server) Start(addr string) error {
	if err := checkLocal(addr); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.http = &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}

	logger.WithComponent("api").Info().Str("addr", ln.Addr().String()).Msg("Status endpoint listening")
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithComponent("api").Error().Err(err).Msg("Status endpoint stopped")
		}
	}()
	return nil
}

// Shutdown stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func checkLocal(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return ErrNotLocal
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) latest(w http.ResponseWriter) (snapshot.Snapshot, bool) {
	snap, ok := s.hub.Latest()
	if !ok {
		http.Error(w, "No state published yet", http.StatusServiceUnavailable)
	}
	return snap, ok
}

// HTTP Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, ready := s.hub.Latest()
	writeJSON(w, map[string]any{
		"status":  "healthy",
		"version": Version,
		"ready":   ready,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if snap, ok := s.latest(w); ok {
		writeJSON(w, snap)
	}
}

func (s *Server) handleWorkspaces(w http.ResponseWriter, r *http.Request) {
	if snap, ok := s.latest(w); ok {
		writeJSON(w, snap.Workspaces)
	}
}

func (s *Server) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.latest(w)
	if !ok {
		return
	}
	// 1-based, like the command channel
	n, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil || n < 1 || n > len(snap.Workspaces) {
		http.Error(w, "Workspace not found", http.StatusNotFound)
		return
	}
	writeJSON(w, snap.Workspaces[n-1])
}

func (s *Server) handleOutputs(w http.ResponseWriter, r *http.Request) {
	if snap, ok := s.latest(w); ok {
		writeJSON(w, snap.Outputs)
	}
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	updates := s.hub.Subscribe()
	defer s.hub.Unsubscribe(updates)

	// Send current state first
	if snap, ok := s.hub.Latest(); ok {
		if err := conn.WriteJSON(snap); err != nil {
			log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
	}

	// Stream updates
	for snap := range updates {
		if err := conn.WriteJSON(snap); err != nil {
			log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
	}
}
