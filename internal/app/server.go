package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	httpAdapter "judge0gw/internal/adapter/http"
	"judge0gw/internal/config"
	"judge0gw/internal/quota"
	"judge0gw/internal/telemetry"
)

// Server represents the gateway server and owns its long-lived resources
type Server struct {
	config    *config.Config
	adapter   *httpAdapter.Adapter
	store     quota.Store
	telemetry *telemetry.Telemetry
	logger    *slog.Logger
}

// NewServer builds a gateway server from configuration
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	return NewBuilder(cfg, logger).Build(ctx)
}

// Start starts serving in the background. It returns once the listener is
// bound; the server runs until Stop is called.
//
//	server, err := app.NewServer(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	if err := server.Start(ctx); err != nil {
//	    return err
//	}
//	<-ctx.Done()
//	server.Stop(shutdownCtx)
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		"host", s.config.Frontend.HTTP.Host,
		"port", s.config.Frontend.HTTP.Port,
	)
	if err := s.adapter.Start(ctx); err != nil {
		return fmt.Errorf("HTTP server: %w", err)
	}
	s.logger.Info("Gateway started successfully", "addr", s.adapter.Addr())
	return nil
}

// Stop drains in-flight requests, then releases the quota store and flushes
// pending spans. All steps run even when an earlier one fails.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error

	if err := s.adapter.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping HTTP server: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing quota store: %w", err))
	}
	if err := s.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down telemetry: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	s.logger.Info("Gateway stopped successfully")
	return nil
}

// Addr returns the bound listen address once started
func (s *Server) Addr() string {
	return s.adapter.Addr()
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.adapter.Handler()
}
