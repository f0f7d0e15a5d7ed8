// Package server provides the HTTP API: sensor ingestion, analytics,
// reading queries, task inspection, health and data management.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/xtxerr/croft/config"
	"github.com/xtxerr/croft/internal/analytics"
	"github.com/xtxerr/croft/internal/ingest"
	"github.com/xtxerr/croft/internal/logging"
	"github.com/xtxerr/croft/internal/store"
	"github.com/xtxerr/croft/internal/tasks"
)

var log = logging.Component("server")

// Config holds server configuration.
type Config struct {
	// Listen is the address to listen on (e.g., "0.0.0.0:8000").
	Listen string

	// AllowedOrigins are the CORS origins permitted to call the API.
	AllowedOrigins []string

	// MaxBodyBytes caps an inbound request body.
	MaxBodyBytes int64

	// Version is reported by the root endpoint.
	Version string

	// Store is the reading store (required).
	Store *store.Store

	// Engine is the aggregation engine (required).
	Engine *analytics.Engine

	// Dispatcher routes inbound batches (required).
	Dispatcher *ingest.Dispatcher

	// Broker reports task status and broker health (required).
	Broker *tasks.Broker
}

// Server is the HTTP API server.
type Server struct {
	cfg  *Config
	http *http.Server
}

// New creates a server.
func New(cfg *Config) *Server {
	if cfg.Listen == "" {
		cfg.Listen = config.DefaultListenAddress
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = config.DefaultRequestBodyLimit
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{config.DefaultAllowedOrigin}
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}

	s := &Server{cfg: cfg}

	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// routes builds the request mux and wraps it in the middleware chain.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /sensor-data", s.handleCreateSensorData)
	mux.HandleFunc("GET /readings", s.handleReadings)
	mux.HandleFunc("GET /analytics", s.handleAnalytics)
	mux.HandleFunc("GET /analytics/field/{field_id}", s.handleFieldAnalytics)
	mux.HandleFunc("GET /analytics/sensor/{sensor_type}", s.handleSensorTypeAnalytics)
	mux.HandleFunc("GET /task/{task_id}", s.handleTaskStatus)
	mux.HandleFunc("DELETE /data/clear", s.handleClearData)
	mux.HandleFunc("GET /health", s.handleHealth)

	var h http.Handler = mux
	h = s.corsMiddleware(h)
	h = s.loggingMiddleware(h)
	h = s.recoveryMiddleware(h)
	return h
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run() error {
	log.Info("listening", "address", s.cfg.Listen)

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("shutting down")
	return s.http.Shutdown(ctx)
}
