// Package api is the HTTP surface of the remote schedule store. It wires a
// chi router with the cross-cutting middleware chain (panic recovery, request
// IDs, structured request logging, bearer-token authentication) in front of
// the schedule fetch/save handlers.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"powersched/internal/access"
	"powersched/internal/config"
	"powersched/internal/types"
)

// ScheduleStore is the persistence contract the handlers depend on. It is
// satisfied by db.ScheduleRepository.
type ScheduleStore interface {
	FetchScopes(ctx context.Context, keys []string) (map[string]types.HostSchedules, error)
	SaveScope(ctx context.Context, key string, data types.HostSchedules, updatedBy string, updatedAt time.Time) error
}

// Server holds the dependencies of the schedule store API.
type Server struct {
	cfg      *config.Config
	store    ScheduleStore
	registry *access.Registry
	logger   *slog.Logger
	validate *validator.Validate
	clock    types.Clock

	router *chi.Mux
}

// NewServer constructs the server and performs fail-fast checks on its
// dependencies. Routes are mounted separately via MountRoutes so tests can
// customize registration.
func NewServer(cfg *config.Config, store ScheduleStore, registry *access.Registry, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("schedule store must not be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("user registry must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		cfg:      cfg,
		store:    store,
		registry: registry,
		logger:   logger,
		validate: validator.New(),
		clock:    types.RealClock{},
		router:   chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// MountRoutes installs the middleware chain and the API endpoints. The
// recoverer is outermost so panics anywhere in the chain are caught.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestID)
	s.router.Use(RequestLogger(s.logger, []string{"Authorization"}))

	s.router.Get("/health", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(s.Authenticate)
		r.Post("/schedules/fetch", s.handleFetch)
		r.Post("/schedules/save", s.handleSave)
	})
}

// handleHealth reports liveness plus build metadata.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, map[string]string{
		"status":      "ok",
		"environment": s.cfg.Environment,
		"version":     s.cfg.Build.Version,
		"commit":      s.cfg.Build.Commit,
	})
}
