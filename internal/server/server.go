// Package server provides the HTTP API for kura.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/pipeline"
	"github.com/hyperjump/kura/internal/storage"
)

// Builder runs one pipeline, failing with pipeline.ErrBusy when a build is in progress.
// *pipeline.Service implements it.
type Builder interface {
	TryBuild(ctx context.Context, ov pipeline.Overrides) (*pipeline.Result, error)
}

// Server is the HTTP server for the kura API.
type Server struct {
	builder Builder
	catalog storage.Catalog
	config  *config.ServerConfig
	logger  *zap.Logger
	version string
	formats func() []string
	server  *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithFormats sets the function listing available file extensions for /health.
func WithFormats(fn func() []string) Option {
	return func(s *Server) { s.formats = fn }
}

// NewServer creates a server with the given dependencies. catalog may be nil
// when the catalog is disabled.
func NewServer(builder Builder, catalog storage.Catalog, cfg *config.ServerConfig, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		builder: builder,
		catalog: catalog,
		config:  cfg,
		logger:  logger,
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Builds run as long as the sources and embedding service need.
	r.Post("/api/v1/stores", s.handleBuild)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Compress(5))
		r.Get("/api/v1/stores", s.handleListStores)
		r.Get("/api/v1/stores/{name}", s.handleGetStore)
		r.Get("/health", s.handleHealth)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
