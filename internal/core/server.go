// Package core provides the API chassis for the mail-merge service.
// It creates a chi router and enforces cross-cutting concerns -- security,
// logging, and error handling -- before requests reach domain-specific
// handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mailmerge/internal/config"
	"mailmerge/internal/types"
)

// SessionValidator resolves raw session IDs (from cookies) to sessions.
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID string) (*types.Session, error)
}

// UserLoader hydrates the authenticated user for the request context.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// RouteRegistrar mounts a group of domain handler routes onto the v1 router.
// The indirection avoids import cycles between core and handler packages.
type RouteRegistrar func(r chi.Router)

// Server encapsulates all dependencies for the API, allowing for easy
// injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// Sessions resolves session cookies; Users hydrates the acting user.
	// Both may be nil in tests, in which case AuthMiddleware passes through.
	Sessions SessionValidator
	Users    UserLoader

	// V1RouteRegistrars are mounted under /v1 by MountRoutes.
	V1RouteRegistrars []RouteRegistrar

	// HealthProbes are executed by the /health endpoint.
	HealthProbes []HealthProbe

	// Internal router
	router *chi.Mux

	// onShutdown holds cleanup callbacks registered by the entry point.
	onShutdown []func() error
}

// NewServer initializes dependencies, sets up the router, and prepares the
// server for route mounting. It performs a fail-fast check on critical
// dependencies.
//
// The caller is responsible for mounting routes (via MountRoutes) after
// construction. This separation allows tests to customize route
// registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	s := &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}

	return s, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
// This is used internally by route-mounting methods and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown registers a cleanup callback to run during Shutdown, in
// registration order.
func (s *Server) OnShutdown(fn func() error) {
	s.onShutdown = append(s.onShutdown, fn)
}

// Shutdown performs a graceful termination of server resources: registered
// cleanup callbacks run in order (database pools, file handles), then the
// shutdown is logged as complete.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	for _, fn := range s.onShutdown {
		if err := fn(); err != nil {
			s.Logger.Error("error during shutdown cleanup", "error", err)
			return fmt.Errorf("shutdown cleanup: %w", err)
		}
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
