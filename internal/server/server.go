package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"benchd.sh/internal/health"
	"benchd.sh/internal/middleware"
	"benchd.sh/internal/models"
	"benchd.sh/internal/observability"
	benchtls "benchd.sh/internal/tls"
)

const (
	// StreamPath is the WebSocket endpoint for the snapshot stream
	StreamPath = "/ws/system-stream"

	defaultAPIPrefix       = "/api/v1"
	defaultShutdownTimeout = 10 * time.Second
	gzipMinSize            = 1024
)

// Source produces a fresh snapshot per call
type Source interface {
	Assemble(ctx context.Context) models.Snapshot
}

// StreamHandler serves the snapshot stream and can be drained on shutdown
type StreamHandler interface {
	http.Handler
	Shutdown(ctx context.Context) error
}

// Config holds the server configuration
type Config struct {
	Addr            string
	APIPrefix       string
	ShutdownTimeout time.Duration
	Version         string
	CORS            *middleware.CORSConfig
	// RateLimit is nil when API rate limiting is disabled
	RateLimit *middleware.RateLimiterConfig
	// TLS is nil for plain HTTP
	TLS *tls.Config
}

// Server serves the health API, the snapshot stream and Prometheus metrics
type Server struct {
	config     Config
	source     Source
	assessor   *health.Assessor
	stream     StreamHandler
	logger     *observability.Logger
	limiter    *middleware.RateLimiter
	handler    http.Handler
	httpServer *http.Server
}

// New builds the router and middleware chain. Nothing listens until Start.
func New(config Config, source Source, assessor *health.Assessor, stream StreamHandler, logger *observability.Logger) (*Server, error) {
	if config.APIPrefix == "" {
		config.APIPrefix = defaultAPIPrefix
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaultShutdownTimeout
	}
	if config.CORS == nil {
		config.CORS = middleware.DefaultCORSConfig()
	}
	if err := middleware.ValidateCORSConfig(config.CORS); err != nil {
		return nil, fmt.Errorf("invalid CORS configuration: %w", err)
	}
	if assessor == nil {
		assessor = health.NewAssessor(health.DefaultThresholds())
	}

	s := &Server{
		config:   config,
		source:   source,
		assessor: assessor,
		stream:   stream,
		logger:   logger,
	}

	if config.RateLimit != nil {
		limiter, err := middleware.NewRateLimiter(*config.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		s.limiter = limiter
	}

	router, err := s.routes()
	if err != nil {
		s.stopLimiter()
		return nil, err
	}
	var handler http.Handler = router
	if config.TLS != nil {
		handler = benchtls.SecurityHeaders(handler)
	}
	s.handler = middleware.CORSMiddleware(config.CORS)(handler)

	return s, nil
}

// routes wires handlers and the per-route middleware. Rate limiting and
// compression apply to the API subrouter only so stream upgrades and
// scrapes are never throttled or wrapped by gzip.
func (s *Server) routes() (*mux.Router, error) {
	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "not found")
	})
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	router := mux.NewRouter()
	router.NotFoundHandler = notFound
	router.MethodNotAllowedHandler = methodNotAllowed

	router.Use(
		middleware.RecoveryMiddleware(s.logger),
		middleware.RequestIDMiddleware,
		middleware.NewTracingMiddleware("benchd"),
		middleware.LoggingMiddleware(s.logger),
		middleware.NewMetricsMiddleware("benchd"),
	)

	router.HandleFunc("/", s.handleInfo).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/health/live", s.handleHealthLive).Methods(http.MethodGet, http.MethodHead)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if s.stream != nil {
		router.Handle(StreamPath, s.stream).Methods(http.MethodGet)
	}

	// subrouters do not inherit the root's fallback handlers
	api := router.PathPrefix(s.config.APIPrefix).Subrouter()
	api.NotFoundHandler = notFound
	api.MethodNotAllowedHandler = methodNotAllowed
	if s.limiter != nil {
		api.Use(middleware.RateLimitMiddleware(s.limiter))
	}
	compress, err := middleware.CompressionMiddleware(gzipMinSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create compression middleware: %w", err)
	}
	api.Use(compress)

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/health/status", s.handleHealthStatus).Methods(http.MethodGet, http.MethodHead)

	return router, nil
}

// Handler returns the fully wrapped handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully. ready, if non-nil, is called once
// the listener is bound.
func (s *Server) Start(ctx context.Context, ready func(addr net.Addr)) error {
	ln, err := benchtls.Listen(s.config.Addr, s.config.TLS)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server",
			zap.String("addr", ln.Addr().String()),
			zap.String("api_prefix", s.config.APIPrefix),
			zap.Bool("tls", s.config.TLS != nil),
		)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if ready != nil {
		ready(ln.Addr())
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errCh:
		s.stopLimiter()
		return err
	}
}

// Shutdown closes stream connections with a going-away frame, then drains
// in-flight HTTP requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	defer s.stopLimiter()

	var streamErr, httpErr error
	if s.stream != nil {
		if streamErr = s.stream.Shutdown(ctx); streamErr != nil {
			s.logger.WithError(streamErr).Warn("Stream connections did not close in time")
		}
	}

	if s.httpServer != nil {
		if httpErr = s.httpServer.Shutdown(ctx); httpErr != nil {
			s.logger.WithError(httpErr).Error("Failed to shutdown HTTP server")
		}
	}

	if httpErr != nil {
		return httpErr
	}
	return streamErr
}

func (s *Server) stopLimiter() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}
