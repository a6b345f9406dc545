// Package httpserver exposes the sync, auth and admin JSON API over HTTP.
package httpserver

import (
	"context"
	"net/http"
	"os"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/and161185/kobo-sync/internal/service"
)

// maxBodyBytes bounds every request body; sync batches are the largest.
const maxBodyBytes = 8 << 20

// Pinger reports store liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires services into HTTP handlers.
type Server struct {
	sync    service.SyncService
	auth    service.AuthService
	admin   service.AdminService
	reports service.ReportService
	health  Pinger
	log     *zap.Logger
}

// Options tune the router around the handlers.
type Options struct {
	CORSOrigins    []string
	StaticDir      string
	RequestTimeout time.Duration
	Sentry         bool
}

// New constructs a Server with injected services.
func New(sync service.SyncService, auth service.AuthService, admin service.AdminService,
	reports service.ReportService, health Pinger, log *zap.Logger) *Server {
	return &Server{sync: sync, auth: auth, admin: admin, reports: reports, health: health, log: log}
}

// Router builds the handler tree with the middleware chain.
func (s *Server) Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, AccessLog(s.log), Recover(s.log))
	if opts.Sentry {
		r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}
	r.Use(middleware.RequestSize(maxBodyBytes))

	r.Get("/healthz", s.healthz)

	r.Route("/sync", func(r chi.Router) {
		r.Post("/profile", s.syncProfile)
		r.Post("/items", s.syncItems)
		r.Post("/sales", s.syncSales)
	})
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.register)
		r.Post("/login", s.login)
	})
	r.Route("/admin", func(r chi.Router) {
		r.Get("/users", s.listUsers)
		r.Get("/users/{koboId}/details", s.userDetails)
		r.Get("/users/{koboId}/login-history", s.loginHistory)
		r.Post("/users/reset-pin", s.resetPIN)
		r.Post("/users/terminate", s.terminate)
		r.Post("/users/update-role", s.updateRole)
		r.Post("/users/toggle-pro", s.togglePro)
		r.Get("/stats", s.stats)
		r.Get("/analytics", s.analytics)
		r.Get("/analytics/v2", s.analyticsV2)
	})
	r.Post("/subscription/activate", s.activateSubscription)

	if opts.StaticDir != "" {
		if fi, err := os.Stat(opts.StaticDir); err == nil && fi.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(opts.StaticDir)))
		}
	}
	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Ping(r.Context()); err != nil {
		s.log.Warn("health check", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "error", Message: "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}
