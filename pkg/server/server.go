// Package server exposes the analysis service over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/duynguyendang/vultester/internal/logging"
	"github.com/duynguyendang/vultester/pkg/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Server holds the state for the REST API server.
type Server struct {
	svc      *service.AnalysisService
	router   *gin.Engine
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics
}

// NewServer creates a new Server instance. It registers its metrics observer
// on svc, so each service should back one server.
func NewServer(svc *service.AnalysisService, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	s := &Server{
		svc:      svc,
		router:   r,
		logger:   logging.OrNop(logger),
		registry: prometheus.NewRegistry(),
	}
	s.metrics = newMetrics(s.registry)
	svc.Observe(s.metrics.observe)

	r.Use(gin.Recovery(), requestID(), accessLog(s.logger), s.metrics.instrument())
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the server on the specified address.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) setupRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := s.router.Group("/api")
	api.GET("/health", s.healthCheck)
	api.POST("/analyze", s.handleAnalyze)
	api.GET("/rules", s.handleRules)
	api.GET("/rules/:id", s.handleRule)
	api.GET("/facts", s.handleFacts)
	api.GET("/graph", s.handleGraph)
	api.POST("/path", s.handlePath)
	api.POST("/explain", s.handleExplain)
	api.GET("/runs", s.handleRuns)
	api.GET("/runs/:id", s.handleRun)
}

// Health check
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Health())
}
