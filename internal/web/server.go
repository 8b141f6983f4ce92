// Package web provides the HTTP API for split, merge, dashboard and
// registration runs.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/worksplit/internal/config"
	"github.com/JonMunkholm/worksplit/internal/core"
	mw "github.com/JonMunkholm/worksplit/internal/web/middleware"
)

// requestTimeout bounds the non-run endpoints. Runs are bounded by the
// service's run timeout instead.
const requestTimeout = 60 * time.Second

// Server is the HTTP server for the workbook API.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(securityHeaders)
	s.router.Use(withRequester)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(s.cfg.Security))
		if s.cfg.Rate.Enabled {
			r.Use(mw.NewRateLimiter(s.cfg.Rate.RequestsPerMinute).Middleware)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Get("/sheets", s.handleListSheets)
			r.Get("/sheets/{name}", s.handleGetSheet)
			r.Get("/sheets/{name}/export", s.handleExportSheet)
			r.Delete("/sheets/{name}", s.handleDeleteSheet)

			r.Get("/dashboard/export", s.handleDashboardExport)

			r.Post("/registrations/events", s.handleRegistrationEvent)
			r.Post("/registrations/pending", s.handleProcessPending)

			r.Get("/audit-log", s.handleAuditLog)
		})

		// Runs write many sheets and get their own, tighter limit.
		r.Group(func(r chi.Router) {
			if s.cfg.Rate.Enabled {
				r.Use(mw.NewRateLimiter(s.cfg.Rate.RunLimit).Middleware)
			}

			r.Post("/sheets/{name}/import", s.handleImportSheet)
			r.Post("/split", s.handleSplit)
			r.Post("/merge", s.handleMerge)
			r.Post("/cleanup", s.handleCleanup)
			r.Post("/dashboard", s.handleDashboard)
		})
	})
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	addr := s.cfg.Server.Addr()
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

// healthResponse is the body of /healthz.
type healthResponse struct {
	Status string                `json:"status"`
	Runs   core.RunLimiterStatus `json:"runs"`
	Error  string                `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Runs: s.service.Limiter().Status()}
	status := http.StatusOK
	if err := s.service.Ping(ctx); err != nil {
		slog.Warn("health check failed", "error", err)
		resp.Status = "unavailable"
		resp.Error = core.MapError(err).Code
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
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

// withRequester stores the client address and user agent for audit entries.
func withRequester(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.ContextWithRequester(r.Context(), core.Requester{
			IPAddress: mw.ClientIP(r),
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
