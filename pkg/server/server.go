package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"kageforge-hq/forge/pkg/config"
	"kageforge-hq/forge/pkg/gateway"
	"kageforge-hq/forge/pkg/telemetry/health"

	"github.com/go-playground/validator/v10"
)

// Deps are the components the server exposes.
type Deps struct {
	Gateway *gateway.Gateway

	// Health serves readiness checks; nil uses a checker without checks.
	Health *health.Checker

	// Metrics is mounted on the metrics path when non-nil.
	Metrics http.Handler

	// MetricsPath defaults to "/metrics".
	MetricsPath string

	// Version, Commit and BuildTime are reported on /version.
	Version   string
	Commit    string
	BuildTime string
}

// Server is the gateway HTTP server.
type Server struct {
	config   config.ServerConfig
	deps     Deps
	logger   *slog.Logger
	validate *validator.Validate
	handler  http.Handler

	mu         sync.Mutex
	httpServer *http.Server
	isRunning  bool
}

// New creates a server. It does not listen until Start.
func New(cfg config.ServerConfig, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Gateway == nil {
		return nil, errors.New("server: gateway is required")
	}
	if deps.Health == nil {
		deps.Health = health.New(0)
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = "/metrics"
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:   cfg,
		deps:     deps,
		logger:   logger.With("component", "server"),
		validate: newValidator(),
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and blocks until ctx is done or
// the listener fails. On ctx cancellation it shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddress,
		Handler:        s.handler,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}
	srv := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting gateway server", "address", s.config.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		if ok {
			return err
		}
		return nil
	}
}

// Shutdown gracefully stops the server within the shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning || s.httpServer == nil {
		return nil
	}

	s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}

	s.isRunning = false
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.logger.Info("gateway server stopped")
	return nil
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
