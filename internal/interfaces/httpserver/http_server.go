// Package httpserver serves the operational endpoints: health, readiness,
// Prometheus metrics and a read-only sync status.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/janhq/usage-sync/internal/domain/ingest"
)

const requestIDHeader = "X-Request-ID"

// ReadinessCheck reports whether the storage backend is reachable.
type ReadinessCheck func(ctx context.Context) error

// Options configures the server.
type Options struct {
	ServiceName     string
	Port            int
	Production      bool
	ShutdownTimeout time.Duration
	Gatherer        prometheus.Gatherer
	Ready           ReadinessCheck
}

// HTTPServer is the operational HTTP server.
type HTTPServer struct {
	opts    Options
	engine  *gin.Engine
	service *ingest.Service
	log     zerolog.Logger
}

// New creates a new HTTP server.
func New(opts Options, service *ingest.Service, log zerolog.Logger) *HTTPServer {
	if opts.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 15 * time.Second
	}

	s := &HTTPServer{
		opts:    opts,
		engine:  gin.New(),
		service: service,
		log:     log.With().Str("component", "httpserver").Logger(),
	}
	s.engine.Use(gin.Recovery(), requestID(), s.requestLogger())
	s.registerRoutes()
	return s
}

// Handler exposes the router for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *HTTPServer) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.opts.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("context cancelled, shutting down HTTP server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (s *HTTPServer) registerRoutes() {
	s.engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": s.opts.ServiceName, "status": "ok"})
	})

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	s.engine.GET("/readyz", func(c *gin.Context) {
		if s.opts.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := s.opts.Ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))

	s.engine.GET("/v1/sync/status", func(c *gin.Context) {
		statuses, err := s.service.Status(c.Request.Context())
		if err != nil {
			s.log.Error().Err(err).Msg("failed to load sync status")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sync status"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"providers": statuses})
	})
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *HTTPServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/metrics" || c.Request.URL.Path == "/healthz" {
			return
		}
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", c.Writer.Header().Get(requestIDHeader)).
			Msg("http request")
	}
}
