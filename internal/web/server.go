// Package web provides the HTTP API for import sessions.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/config"
	"github.com/cloudagrapher/fancy-planties-sub010/internal/core"
	"github.com/cloudagrapher/fancy-planties-sub010/internal/web/middleware"
)

// Server is the HTTP server for the import API.
type Server struct {
	service  *core.Service
	profiles *core.MappingProfiles
	cfg      *config.Config
	validate *validator.Validate
	router   *chi.Mux
	server   *http.Server

	limiters     []*rateLimiter
	pollInterval time.Duration
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, profiles *core.MappingProfiles, cfg *config.Config) *Server {
	s := &Server{
		service:      service,
		profiles:     profiles,
		cfg:          cfg,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		router:       chi.NewRouter(),
		pollInterval: time.Second,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.RequestMeta)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute).middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	if s.cfg.Metrics.Enabled {
		s.router.Handle(s.cfg.Metrics.Path, promhttp.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.Security))

		r.Get("/kinds", s.handleListKinds)
		r.Get("/mappings", s.handleListMappings)
		r.With(chimw.Timeout(s.cfg.Server.RequestTimeout)).Post("/mappings/match", s.handleMatchMappings)

		r.Route("/imports", func(r chi.Router) {
			r.Use(middleware.RequireOwner)

			// The event stream stays open past the request timeout.
			r.Get("/{sessionID}/events", s.handleImportEvents)

			r.Group(func(r chi.Router) {
				r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

				submit := r.With()
				if s.cfg.Rate.Enabled {
					submit = r.With(s.newRateLimiter(s.cfg.Rate.ImportLimit, time.Minute).middleware)
				}
				submit.Post("/", s.handleStartImport)

				r.Get("/{sessionID}", s.handleGetProgress)
				r.Get("/{sessionID}/rows", s.handleListRows)
				r.Get("/{sessionID}/suggestions", s.handleSuggestions)
				r.Post("/{sessionID}/resolutions", s.handleResolve)
				r.Post("/{sessionID}/commit", s.handleCommit)
				r.Post("/{sessionID}/cancel", s.handleCancel)
			})
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("http server listening", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, l := range s.limiters {
		l.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
