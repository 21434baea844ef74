// Package api serves the forwarder's status endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-forwarder/internal/api/handlers"
	"github.com/dvloznov/bank-forwarder/internal/api/middleware"
	"github.com/dvloznov/bank-forwarder/internal/runs/inmemory"
)

// NewHandler builds the status router:
//
//	GET /healthz   last outcome per stream
//	GET /api/runs  recent runs (?stream=, ?status=, ?limit=)
//	GET /metrics   Prometheus metrics from gatherer
func NewHandler(store *inmemory.Store, gatherer prometheus.Gatherer, log zerolog.Logger) http.Handler {
	runsHandler := handlers.NewRunsHandler(store, log)

	mux := http.NewServeMux()
	mux.Handle("/healthz", middleware.GetOnly(handlers.NewHealthHandler(store)))
	mux.Handle("/api/runs", middleware.GetOnly(http.HandlerFunc(runsHandler.ListRuns)))
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(mux),
		),
	)
}

// Server is the status HTTP server.
type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// NewServer creates a server for handler on addr.
func NewServer(addr string, handler http.Handler, log zerolog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: log,
	}
}

// Start serves in a background goroutine. Listen errors are logged.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.http.Addr).Msg("Starting status server")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("Status server stopped")
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
