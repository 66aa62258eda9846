package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tenantops/safety-core/internal/api/handler"
	"github.com/tenantops/safety-core/internal/config"
)

// Services are the dependencies the ops API is served from
type Services struct {
	Ledger   handler.LedgerService
	Controls handler.ControlService
	Failures handler.FailureService
	Audit    handler.AuditService

	// Health reporting
	Dependencies map[string]handler.Pinger
	AuditBacklog handler.AuditBacklog
	Workers      handler.PoolStats
}

// Server handles HTTP requests and manages the ops API lifecycle
type Server struct {
	logger     *slog.Logger
	httpServer *http.Server
	httpRouter *gin.Engine
}

// NewServer creates and configures the ops API server
func NewServer(log *slog.Logger, cfg *config.Config, svc Services) *Server {
	if cfg.Application.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	httpRouter := gin.New()

	setupRouter(log, httpRouter, handlers{
		wallet:   handler.NewWalletHandler(log, svc.Ledger),
		controls: handler.NewControlHandler(log, svc.Controls),
		failures: handler.NewFailureHandler(log, svc.Failures),
		audit:    handler.NewAuditHandler(log, svc.Audit),
		health:   handler.NewHealthHandler(log, svc.Dependencies, svc.AuditBacklog, svc.Workers),
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		logger:     log,
		httpServer: httpServer,
		httpRouter: httpRouter,
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx expires
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}
	return nil
}
