// Package server exposes the operational HTTP endpoints for serve mode:
// health and readiness probes, Prometheus metrics and the runner status.
package server

import (
	"context"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/telekom/m365-audit-ingest/pkg/metrics"
	"github.com/telekom/m365-audit-ingest/pkg/pipeline"
	"github.com/telekom/m365-audit-ingest/pkg/version"
)

// StatusProvider reports the current state of the ingestion loop.
type StatusProvider interface {
	Status() pipeline.Status
}

// Server wraps the gin engine and underlying http.Server.
type Server struct {
	engine *gin.Engine
	srv    *http.Server
	logger *zap.Logger
}

// New builds the operational server. The status provider may be nil, in
// which case the status endpoint returns 404.
func New(addr string, status StatusProvider, debugMode bool, logger *zap.Logger) *Server {
	if !debugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(ginzap.Ginzap(logger, time.RFC3339, true), ginzap.RecoveryWithZap(logger, true))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Version})
	})
	engine.GET("/readyz", func(c *gin.Context) {
		if status != nil && !status.Status().Running {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))
	if status != nil {
		engine.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, status.Status())
		})
	}

	return &Server{
		engine: engine,
		srv: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.Named("server"),
	}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting operational endpoints", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("Shutting down operational endpoints")
	return s.srv.Shutdown(shutdownCtx)
}

// Handler exposes the engine for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}
