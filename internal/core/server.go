// Package core provides the API chassis for the Crixen billing service.
// It creates a chi router and enforces cross-cutting concerns (recovery,
// request correlation, logging, CORS, auth) before requests reach the
// domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"crixen/internal/config"
	"crixen/internal/types"
)

// MetricsCollector records API telemetry. Implementations push request
// latency and count metrics to CloudWatch or equivalent backends.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Authenticator resolves request credentials to an Actor. It is injected so
// handler tests can stub authentication without token infrastructure.
type Authenticator interface {
	Authenticate(r *http.Request) (types.Actor, error)
}

// RouteRegistrar mounts a handler group onto the v1 router. Handlers register
// themselves through this indirection to avoid import cycles with core.
type RouteRegistrar func(r chi.Router)

// Server encapsulates all dependencies of the HTTP API, allowing injection
// during testing and distinct wiring per environment.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Metrics       MetricsCollector
	Authenticator Authenticator
	HealthProbes  []HealthProbe

	// V1RouteRegistrars is populated by the entry point before MountRoutes.
	V1RouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer initializes dependencies and prepares the server for route
// mounting. The caller mounts routes (via MountRoutes) after construction;
// the separation lets tests customize registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server-held resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")
	return nil
}
