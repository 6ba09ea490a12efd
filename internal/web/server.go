// internal/web/server.go
package web

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"camwatch/internal/config"
	"camwatch/internal/database"
	"camwatch/internal/metrics"
	"camwatch/internal/monitoring"
	"camwatch/internal/notifications"
)

type Server struct {
	config       *config.Config
	store        database.Store
	orchestrator *monitoring.Orchestrator
	dispatcher   *notifications.Dispatcher
	metrics      *metrics.Collector
	router       *gin.Engine
	hub          *Hub
	server       *http.Server
	logDir       string
}

func NewServer(cfg *config.Config, store database.Store, orchestrator *monitoring.Orchestrator, dispatcher *notifications.Dispatcher, metricsCollector *metrics.Collector) *Server {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	server := &Server{
		config:       cfg,
		store:        store,
		orchestrator: orchestrator,
		dispatcher:   dispatcher,
		metrics:      metricsCollector,
		router:       router,
		hub:          NewHub(metricsCollector),
		logDir:       filepath.Join(cfg.Monitoring.DataDir, "logs"),
	}

	orchestrator.Subscribe(server.publish)
	server.setupRoutes()
	return server
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Server.Port,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	logrus.WithField("port", s.config.Server.Port).Info("Starting web server")

	go s.updateMetricsRoutine(ctx)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) setupRoutes() {
	s.router.GET("/favicon.ico", s.serveFavicon)
	s.router.GET("/favicon.svg", s.serveFavicon)

	api := s.router.Group("/api")
	{
		api.GET("/health", s.healthCheck)
		api.GET("/build", s.getBuildInfo)
		api.GET("/stats", s.getStats)

		api.GET("/hosts", s.getHosts)
		api.POST("/hosts/:id/trigger", s.triggerHost)
		api.GET("/hosts/:id/run", s.getRunState)

		api.GET("/history", s.getHistory)
		api.GET("/history/summary", s.getHistorySummary)
		api.GET("/history/host/:id", s.getHostHistory)
		api.GET("/status", s.getStatus)
		api.GET("/logs/:id", s.getLogs)

		api.GET("/settings", s.getSettings)
		api.PUT("/settings", s.updateSettings)
	}
	s.setupNotificationRoutes(api)

	s.router.GET("/ws", s.handleWebSocket)

	if s.config.Prometheus.Enabled {
		s.router.GET(s.config.Prometheus.MetricsPath, gin.WrapH(promhttp.Handler()))
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"version":   Version,
	})
}

func (s *Server) updateMetricsRoutine(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	if err := s.metrics.UpdateSystemMetrics(ctx); err != nil {
		logrus.WithError(err).Error("Failed to update system metrics")
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.metrics.UpdateSystemMetrics(ctx); err != nil {
				logrus.WithError(err).Error("Failed to update system metrics")
			}
		}
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
