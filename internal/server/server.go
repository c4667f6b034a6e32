// Package server provides the HTTP server for the cardcapture service.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayusman/cardcapture/internal/app"
	"github.com/ayusman/cardcapture/internal/server/api"
	"github.com/ayusman/cardcapture/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	App       *app.App
}

// Server represents the HTTP server for the cardcapture application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		attempts := api.NewAttemptsHandler(s.config.Store)
		s.mux.Handle("/api/attempts", attempts)
		s.mux.Handle("/api/attempts/", attempts)
		s.mux.Handle("/api/ocr/latest", api.NewOCRHandler(s.config.Store))
	}

	if s.config.App != nil {
		sessions := api.NewSessionHandler(s.config.App)
		s.mux.Handle("/api/session", sessions)
		s.mux.Handle("/api/session/", sessions)
		s.mux.Handle("/api/events", NewEventsHandler(s.config.App.Hub()))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}
	if a := s.config.App; a != nil {
		response["running"] = a.Running()
		response["phase"] = a.Machine().Phase()
		response["frames"] = a.Stats()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
