// Package server hosts the HTTP and websocket surface in front of the
// security pipeline.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chattrain/chattrain/internal/audit"
	"github.com/chattrain/chattrain/internal/config"
	"github.com/chattrain/chattrain/internal/logging"
	"github.com/chattrain/chattrain/internal/ratelimit"
	"github.com/chattrain/chattrain/internal/registry"
	"github.com/chattrain/chattrain/internal/scenario"
	"github.com/chattrain/chattrain/internal/security"
)

// Server owns the HTTP listener and the wiring between transport and
// the security orchestrator.
type Server struct {
	config       *config.Config
	orchestrator *security.Orchestrator
	limiter      *ratelimit.Limiter
	registry     *registry.Registry
	auditLog     *audit.Log
	scenarios    *scenario.Loader
	logger       logging.Logger
	httpServer   *http.Server
}

// New assembles the server around pre-built components.
func New(
	cfg *config.Config,
	orchestrator *security.Orchestrator,
	limiter *ratelimit.Limiter,
	reg *registry.Registry,
	auditLog *audit.Log,
	scenarios *scenario.Loader,
	logger logging.Logger,
) *Server {
	s := &Server{
		config:       cfg,
		orchestrator: orchestrator,
		limiter:      limiter,
		registry:     reg,
		auditLog:     auditLog,
		scenarios:    scenarios,
		logger:       logger.WithComponent("server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/security/stats", s.handleSecurityStats)
	mux.HandleFunc("GET /api/security/events", s.handleSecurityEvents)
	mux.HandleFunc("GET /api/users/{id}/limits", s.handleUserLimits)
	mux.HandleFunc("DELETE /api/users/{id}/limits", s.handleResetUserLimits)
	mux.HandleFunc("GET /api/scenarios", s.handleListScenarios)
	mux.HandleFunc("GET /ws/{session}", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           securityHeaders(requestLogging(s.logger, mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start serves until the context is canceled, then shuts down in
// order: stop accepting, drain HTTP, close connections, stop the
// limiter's sweeper.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info(shutdownCtx, "shutting down")
	err := s.httpServer.Shutdown(shutdownCtx)
	s.registry.CloseAll()
	s.limiter.Stop()
	return err
}
