// Package webui serves the prompt form, the JSON API and the operational
// endpoints. It is a thin shell: every generation goes through the
// pipeline orchestrator.
package webui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"promptpaint/logging"
	"promptpaint/metrics"
	"promptpaint/pipeline"
)

// Generator runs one prompt through the pipeline.
type Generator interface {
	Generate(ctx context.Context, prompt string, enhance bool) (*pipeline.Result, error)
}

// OperationRunner tracks in-flight work for graceful shutdown.
// *shutdown.Manager implements it.
type OperationRunner interface {
	WrapOperation(ctx context.Context, name string, fn func(context.Context) error) error
}

// ServerConfig configures the Server.
type ServerConfig struct {
	// Addr is host:port to listen on (default: 127.0.0.1:7860)
	Addr string

	ReadTimeout time.Duration

	// WriteTimeout must outlast one render; zero disables it.
	WriteTimeout time.Duration

	IdleTimeout time.Duration

	// ShutdownTimeout bounds Shutdown when ctx has no deadline.
	ShutdownTimeout time.Duration

	// PreviewWidth is the width of the inline preview (default: 256)
	PreviewWidth int

	// SamplesDir is served under /samples/.
	SamplesDir string

	// LogSkipPaths are logged at debug level only.
	LogSkipPaths []string

	Version string
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            "127.0.0.1:7860",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    0,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		PreviewWidth:    256,
		SamplesDir:      "data/samples",
		LogSkipPaths:    []string{"/health", "/metrics"},
		Version:         "dev",
	}
}

// Server is the web UI organism. It wires:
//   - the HTML form and the JSON API over a Generator
//   - sample file serving
//   - /health, /metrics and /api/status
//   - LoggingMiddleware and optional auth
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	config     ServerConfig
	generator  Generator

	logger    *logging.Logger
	collector *metrics.Collector
	history   *metrics.History
	ops       OperationRunner
	authMw    func(http.Handler) http.Handler
}

// ServerOption configures optional Server collaborators.
type ServerOption func(*Server)

func WithLogger(logger *logging.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithCollector enables /metrics and per-request counters.
func WithCollector(c *metrics.Collector) ServerOption {
	return func(s *Server) { s.collector = c }
}

// WithHistory enables /api/status.
func WithHistory(h *metrics.History) ServerOption {
	return func(s *Server) { s.history = h }
}

// WithOperations makes every generation a tracked operation.
func WithOperations(ops OperationRunner) ServerOption {
	return func(s *Server) { s.ops = ops }
}

// WithAuth wraps every route with mw, e.g. (*auth.BasicAuth).Middleware.
func WithAuth(mw func(http.Handler) http.Handler) ServerOption {
	return func(s *Server) { s.authMw = mw }
}

// NewServer creates a Server. It does not start listening.
func NewServer(config ServerConfig, generator Generator, opts ...ServerOption) (*Server, error) {
	if generator == nil {
		return nil, errors.New("webui: generator is required")
	}
	defaults := DefaultServerConfig()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.PreviewWidth <= 0 {
		config.PreviewWidth = defaults.PreviewWidth
	}
	if config.SamplesDir == "" {
		config.SamplesDir = defaults.SamplesDir
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}

	s := &Server{
		mux:       http.NewServeMux(),
		config:    config,
		generator: generator,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.logger = s.logger.Named("webui")

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	s.logger.Info("web UI server created",
		zap.String("addr", config.Addr),
		zap.Bool("auth_enabled", s.authMw != nil),
	)
	return s, nil
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /generate", s.handleGenerateForm)
	s.mux.HandleFunc("POST /api/generate", s.handleGenerateAPI)
	s.mux.HandleFunc("GET /samples/{name}", s.handleSample)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	if s.collector != nil {
		s.mux.Handle("GET /metrics", s.collector.Handler())
	}
}

// Handler returns the mux wrapped with auth and logging.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.mux
	if s.authMw != nil {
		handler = s.authMw(handler)
	}
	return NewLoggingMiddleware(s.logger, s.collector, s.config.LogSkipPaths).Handler(handler)
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("web UI listening", zap.String("url", "http://"+s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for open requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web UI")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown error: %w", err)
	}
	return nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// generate runs the pipeline, as a tracked operation when configured.
func (s *Server) generate(ctx context.Context, prompt string, enhance bool) (*pipeline.Result, error) {
	if s.ops == nil {
		return s.generator.Generate(ctx, prompt, enhance)
	}
	var result *pipeline.Result
	err := s.ops.WrapOperation(ctx, "generate", func(ctx context.Context) error {
		var err error
		result, err = s.generator.Generate(ctx, prompt, enhance)
		return err
	})
	return result, err
}
