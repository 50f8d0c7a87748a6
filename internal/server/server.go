// Package server exposes Vigil's operational HTTP surface: health, version,
// the cron job table, and the job event WebSocket.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/services/scheduler"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	storage   interfaces.StorageManager
	scheduler *scheduler.Scheduler
	logger    *common.Logger
	server    *http.Server
}

// NewServer creates the operational HTTP server.
func NewServer(cfg common.ServerConfig, storage interfaces.StorageManager, sched *scheduler.Scheduler, logger *common.Logger) *Server {
	s := &Server{
		storage:   storage,
		scheduler: sched,
		logger:    logger,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      applyMiddleware(mux, logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("/ws/jobs", s.scheduler.Hub().ServeWS)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server (blocking).
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
