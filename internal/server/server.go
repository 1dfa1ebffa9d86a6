// Package server wires the HTTP API: it builds the services on top of a
// store, mounts the handlers on a chi router and runs the http.Server.
//
// DEPENDENCY INJECTION FLOW:
//
//	main.go opens the store (sqlite or postgres) and the metrics registry
//	server.New builds:
//	  store.Snippets, store.Versions, store → VersionService
//	  store.Snippets, VersionService        → SnippetService
//	  services                              → handlers → routes
//
// This is the composition root: nothing below this package knows which
// backend it is talking to.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/snippetvault/internal/auth"
	"github.com/sakif/snippetvault/internal/config"
	"github.com/sakif/snippetvault/internal/diff"
	"github.com/sakif/snippetvault/internal/handler"
	"github.com/sakif/snippetvault/internal/metrics"
	"github.com/sakif/snippetvault/internal/middleware"
	"github.com/sakif/snippetvault/internal/repository/sqlstore"
	"github.com/sakif/snippetvault/internal/service"
)

// healthTimeout bounds the database ping behind /healthz.
const healthTimeout = 2 * time.Second

// Server holds the router and what it needs to serve. It does not own the
// store: whoever opened it closes it.
type Server struct {
	router *chi.Mux
	config *config.Config
	store  *sqlstore.Store
	logger *slog.Logger
}

// New builds the server. reg receives the service metrics and is what
// /metrics exposes; pass a fresh prometheus.NewRegistry().
func New(cfg *config.Config, store *sqlstore.Store, reg *prometheus.Registry, logger *slog.Logger) (*Server, error) {
	differ, err := diff.ForStrategy(cfg.Versions.DiffStrategy)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	// Auth is optional: without a secret every request is anonymous and
	// snippets are created without an owner.
	var tokens *auth.TokenService
	if cfg.Auth.JWTSecret != "" {
		tokens, err = auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		if err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
	} else {
		logger.Warn("no JWT secret configured, authentication is disabled")
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	versionService := service.NewVersionService(store.Snippets, store.Versions, store, differ, m, logger)
	snippetService := service.NewSnippetService(store.Snippets, versionService, logger)

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		store:  store,
		logger: logger,
	}
	s.setupRoutes(
		handler.NewSnippetHandler(snippetService, logger),
		handler.NewVersionHandler(versionService, logger),
		tokens, m, reg,
	)
	return s, nil
}

// setupRoutes mounts middleware and routes.
//
// ROUTES:
//
//	GET    /healthz
//	GET    /metrics
//	GET    /api/snippets
//	POST   /api/snippets
//	GET    /api/snippets/{id}
//	PUT    /api/snippets/{id}
//	DELETE /api/snippets/{id}
//	GET    /api/snippets/{id}/versions
//	POST   /api/snippets/{id}/versions
//	GET    /api/snippets/{id}/versions/number/{number}
//	POST   /api/snippets/{id}/versions/{versionID}/restore
//	GET    /api/versions/compare?from=&to=
//	GET    /api/versions/{versionID}
//
// Metrics sits outside Recoverer so a panicking handler is still counted,
// as the 500 Recoverer turns it into.
func (s *Server) setupRoutes(
	snippets *handler.SnippetHandler,
	versions *handler.VersionHandler,
	tokens *auth.TokenService,
	m *metrics.Metrics,
	reg *prometheus.Registry,
) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(m))
	s.router.Use(chimiddleware.Recoverer)

	if len(s.config.Server.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.Server.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
			MaxAge:         300,
		}))
	}

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	// Writes need a token only when configured so; otherwise a valid token
	// just attributes the change.
	write := auth.OptionalAuth(tokens)
	if s.config.Auth.RequireForWrites {
		write = auth.RequireAuth(tokens)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.OptionalAuth(tokens))

		r.Get("/snippets", snippets.HandleList)
		r.Get("/snippets/{id}", snippets.HandleGetByID)
		r.Get("/snippets/{id}/versions", versions.HandleHistory)
		r.Get("/snippets/{id}/versions/number/{number}", versions.HandleGetByNumber)
		r.Get("/versions/compare", versions.HandleCompare)
		r.Get("/versions/{versionID}", versions.HandleGet)

		r.Group(func(r chi.Router) {
			r.Use(write)
			r.Post("/snippets", snippets.HandleCreate)
			r.Put("/snippets/{id}", snippets.HandleUpdate)
			r.Delete("/snippets/{id}", snippets.HandleDelete)
			r.Post("/snippets/{id}/versions", versions.HandleCreate)
			r.Post("/snippets/{id}/versions/{versionID}/restore", versions.HandleRestore)
		})
	})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// Start serves until ctx is cancelled, then shuts down gracefully: new
// connections are refused and in-flight requests get
// Server.ShutdownTimeout to finish.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("database", s.config.Database.Driver),
			slog.String("diff_strategy", string(s.config.Versions.DiffStrategy)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	}
}
