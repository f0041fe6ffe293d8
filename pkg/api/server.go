package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/openswitchboard/switchboard/pkg/telemetry"
)

// Config holds the HTTP server settings.
type Config struct {
	// ListenAddr is the address to bind, e.g. ":8080".
	ListenAddr string

	// Mode selects the gin mode: debug, release or test.
	Mode string

	// ReadTimeout bounds request reads, WriteTimeout bounds response writes.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ShutdownTimeout bounds the drain of in-flight requests on shutdown.
	ShutdownTimeout time.Duration

	// TrustedProxies restricts which peers may set forwarded-for headers.
	// Empty means no proxies are trusted.
	TrustedProxies []string
}

// Server is the control plane's HTTP front end.
type Server struct {
	engine          *gin.Engine
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          zerolog.Logger
}

// NewServer builds the router, wires middleware and routes, and prepares
// the listener. Nothing is bound until Start or Run.
func NewServer(cfg Config, handlers *Handlers, metrics *telemetry.Metrics, logger zerolog.Logger) (*Server, error) {
	switch cfg.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(cfg.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	serverLogger := logger.With().Str("component", "api").Logger()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
	}
	engine.Use(
		RequestLogger(serverLogger),
		HTTPMetrics(metrics),
		Recovery(serverLogger),
	)

	registerRoutes(engine, handlers, metrics)

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		engine: engine,
		httpServer: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      engine,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		shutdownTimeout: shutdownTimeout,
		logger:          serverLogger,
	}, nil
}

// Handler returns the root HTTP handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving and blocks until the listener closes.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server starting")
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting new requests and drains in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Run serves until the context is cancelled, then drains within the
// configured shutdown timeout. A listener fault is returned immediately.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("shutdown did not drain cleanly: %w", err)
	}
	return nil
}
