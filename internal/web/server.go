// Package web provides the HTTP API for importing and exporting GRC records.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/grc/internal/config"
	"github.com/JonMunkholm/grc/internal/core"
	"github.com/JonMunkholm/grc/internal/metrics"
	"github.com/JonMunkholm/grc/internal/notification"
	"github.com/JonMunkholm/grc/internal/web/middleware"
)

// ImportLogger records finished imports.
type ImportLogger interface {
	LogImport(ctx context.Context, res *core.ImportResult, subject string, started time.Time) error
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the server needs. Authorizer, ImportLog and
// Health are optional.
type Deps struct {
	Config        *config.Config
	Pipeline      *core.Pipeline
	Notifications *notification.Service
	Limiter       *core.ImportLimiter
	Authorizer    core.Authorizer
	ImportLog     ImportLogger
	Health        Pinger
}

// Server is the HTTP server.
type Server struct {
	cfg      *config.Config
	pipeline *core.Pipeline
	notify   *notification.Service
	limiter  *core.ImportLimiter
	auth     core.Authorizer
	log      ImportLogger
	health   Pinger
	started  time.Time
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a new Server instance.
func NewServer(d Deps) *Server {
	s := &Server{
		cfg:      d.Config,
		pipeline: d.Pipeline,
		notify:   d.Notifications,
		limiter:  d.Limiter,
		auth:     d.Authorizer,
		log:      d.ImportLog,
		health:   d.Health,
		started:  time.Now(),
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.APIKeyAuth(&s.cfg.Security))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.cfg.Metrics.Enabled {
		s.router.Handle(s.cfg.Metrics.Path, metrics.Handler())
	}

	s.router.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
		r.Get("/", s.handleStatusPage)
	})

	s.router.Route("/api", func(r chi.Router) {
		// Imports carry their own deadline from the import config.
		r.Post("/import", s.handleImport)
		r.Post("/import/preview", s.handlePreview)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

			r.Get("/objects", s.handleListObjects)
			r.Get("/export/{objectType}", s.handleExport)

			r.Post("/modify_status", s.handleModifyStatus)
			r.Post("/prepare_email", s.handlePrepareEmail)
			r.Post("/prepare_emaildigest", s.handlePrepareDigest)
			r.Post("/notify_email", s.handleNotifyEmail)
			r.Post("/notify_emaildigest", s.handleNotifyDigest)
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

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
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
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
