package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ha1tch/hotelmig/pkg/config"
	"github.com/ha1tch/hotelmig/pkg/migration"
	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/storage"
)

// Runner is the migration engine behind the API
type Runner interface {
	CreateProfile(ctx context.Context, p *models.ConnectionProfile) error
	RunPhase(ctx context.Context, profileID int, phase migration.Phase) (*migration.PhaseReport, error)
	RunAll(ctx context.Context, profileID int) ([]migration.PhaseReport, error)
}

// Resolver answers identity lookups
type Resolver interface {
	Resolve(ctx context.Context, entity models.EntityType, remoteID int) (int, bool, error)
}

// Store is the part of local persistence the API reads and edits directly
type Store interface {
	storage.ProfileStore
	storage.LogStore
}

// Server represents the operator HTTP server
type Server struct {
	config   *config.Config
	runner   Runner
	store    Store
	identity Resolver
	logger   zerolog.Logger
	router   *chi.Mux
}

// New creates a new server instance
func New(
	cfg *config.Config,
	runner Runner,
	store Store,
	identity Resolver,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		config:   cfg,
		runner:   runner,
		store:    store,
		identity: identity,
		logger:   logger,
		router:   chi.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes. Phase runs hold the request open
// until the phase finishes, so there is no request timeout.
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/version", s.handleVersion)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/profiles", func(r chi.Router) {
			r.Post("/", s.handleCreateProfile)
			r.Get("/", s.handleListProfiles)
			r.Get("/{id}", s.handleGetProfile)
			r.Put("/{id}/cutover", s.handleUpdateCutover)
			r.Post("/{id}/phases/{phase}", s.handleRunPhase)
			r.Post("/{id}/migrate-all", s.handleRunAll)
			r.Get("/{id}/log", s.handleListLog)
		})

		r.Get("/identity/{entity}/{remote_id}", s.handleIdentity)
	})
}

// Start serves until ctx is cancelled, then drains in-flight requests
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the HTTP handler (useful for testing)
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
