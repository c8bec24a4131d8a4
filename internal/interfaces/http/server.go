// Package http provides the HTTP adapter for the application layer. It is a
// thin translation layer: requests become service calls, service errors
// become status codes.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nlebrun/docuflow/internal/application/service"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// AdminRole gates statistics and template administration endpoints.
	AdminRole string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		AdminRole:    "admin",
	}
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine

	workflows service.WorkflowService
	decisions service.DecisionService
	templates service.TemplateService
	stats     service.StatsService
	roles     service.RoleService
	metrics   http.Handler
	logger    Logger
}

// NewServer creates a new HTTP server with the given services. metricsHandler
// may be nil when metrics are disabled.
func NewServer(
	config ServerConfig,
	workflows service.WorkflowService,
	decisions service.DecisionService,
	templates service.TemplateService,
	stats service.StatsService,
	roles service.RoleService,
	metricsHandler http.Handler,
	logger Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:    config,
		router:    gin.New(),
		workflows: workflows,
		decisions: decisions,
		templates: templates,
		stats:     stats,
		roles:     roles,
		metrics:   metricsHandler,
		logger:    logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.workflows, s.decisions, s.templates, s.stats, s.roles, s.config.AdminRole, s.logger)

	s.router.GET("/health", handlers.HealthCheck)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := s.router.Group("/api/v1")
	{
		workflows := api.Group("/workflows", handlers.RequireUser())
		{
			workflows.POST("", handlers.StartWorkflow)
			workflows.GET("/pending", handlers.ListPending)
			workflows.POST("/decide", handlers.Decide)
			workflows.GET("/statistics", handlers.RequireAdmin(), handlers.GetStatistics)
			workflows.GET("/statistics/export", handlers.RequireAdmin(), handlers.ExportStatistics)
			workflows.GET("/:id", handlers.GetInstance)
		}

		api.GET("/documents/:id/workflow-status", handlers.GetDocumentStatus)

		templates := api.Group("/templates", handlers.RequireUser(), handlers.RequireAdmin())
		{
			templates.POST("", handlers.CreateTemplate)
			templates.GET("", handlers.ListTemplates)
			templates.GET("/:id", handlers.GetTemplate)
			templates.PUT("/:id", handlers.UpdateTemplateMeta)
			templates.PUT("/:id/stages", handlers.UpdateTemplateStages)
			templates.DELETE("/:id", handlers.RetireTemplate)
		}
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
