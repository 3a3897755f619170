// Package api serves the scan trigger and query HTTP API.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Houeta/listing-monitor/internal/cache"
	"github.com/Houeta/listing-monitor/internal/metrics"
	"github.com/Houeta/listing-monitor/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MonitoringSystem is what the API needs from the scan orchestrator.
type MonitoringSystem interface {
	StartScan(ctx context.Context, target string, pageBudget int) (string, error)
	Cancel() bool
	Status(ctx context.Context) (*models.ScanRun, error)
	ChangeLog(ctx context.Context, since time.Time, limit int) ([]models.ChangeRecord, error)
	Baseline(ctx context.Context) (*models.BaselineSnapshot, error)
	History(ctx context.Context, limit int) ([]models.ScanRun, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ChangeCacheTTL  time.Duration
	ChangeCacheSize int
}

// Server is the HTTP API.
type Server struct {
	log     *slog.Logger
	monitor MonitoringSystem
	metrics *metrics.Metrics
	changes *cache.Cache[string, []models.ChangeRecord]
	engine  *gin.Engine
	srv     *http.Server
}

// NewServer builds the router. gatherer backs /metrics and may be nil to use the default registry.
func NewServer(
	log *slog.Logger,
	monitor MonitoringSystem,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	cfg Config,
) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{
		log:     log.With("component", "api"),
		monitor: monitor,
		metrics: m,
		changes: cache.New[string, []models.ChangeRecord](cfg.ChangeCacheTTL, cfg.ChangeCacheSize),
		engine:  engine,
	}

	engine.Use(gin.Recovery(), s.observe())

	engine.GET("/health", s.health)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := engine.Group("/api/v1")
	v1.POST("/scans", s.startScan)
	v1.DELETE("/scans/current", s.cancelScan)
	v1.GET("/scans/status", s.scanStatus)
	v1.GET("/scans", s.listScans)
	v1.GET("/changes", s.listChanges)
	v1.GET("/baseline", s.baseline)

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("API server is starting...", "addr", s.srv.Addr)

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api.Start: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("API server is stopping...")

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("api.Shutdown: %w", err)
	}
	return nil
}

// observe records request metrics and logs each request.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(started)
		code := c.Writer.Status()

		s.metrics.RecordRequest(c.Request.Method, route, strconv.Itoa(code), elapsed)
		s.log.DebugContext(c.Request.Context(), "request served",
			"method", c.Request.Method,
			"route", route,
			"status", code,
			"duration", elapsed,
		)
	}
}
