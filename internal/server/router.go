// Package server assembles the HTTP route table of the session gate.
package server

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/vetcare-gate/internal/api"
	"github.com/ashureev/vetcare-gate/internal/config"
	"github.com/ashureev/vetcare-gate/internal/domain"
	"github.com/ashureev/vetcare-gate/internal/events"
	"github.com/ashureev/vetcare-gate/internal/guard"
	"github.com/ashureev/vetcare-gate/internal/identity"
	"github.com/ashureev/vetcare-gate/internal/middleware"
	"github.com/ashureev/vetcare-gate/internal/probe"
	"github.com/ashureev/vetcare-gate/internal/session"
	"github.com/ashureev/vetcare-gate/internal/store"
	"github.com/ashureev/vetcare-gate/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// Deps holds everything the routes are built from.
type Deps struct {
	Repo        store.Repository
	Registry    *session.Registry
	Hub         *events.Hub
	Checks      []probe.Check
	Templates   *template.Template
	LoginRate   config.LoginRateConfig
	FrontendURL string
	IsDev       bool
	Logger      *slog.Logger
}

// NewRouter builds the route table. ctx bounds the login limiters' cleanup.
//
// /admin and everything below it need an admin session. Every other page
// needs an end-user session, except the login views, the auth API, the
// session feed, static assets and health.
func NewRouter(ctx context.Context, d Deps) chi.Router {
	baseHandler := api.NewHandler(d.Registry, d.Logger)
	healthHandler := api.NewHealthHandler(d.Checks)
	wsHandler := events.NewWebSocketHandler(d.Hub, d.Registry, d.FrontendURL, d.IsDev)
	userGuard := guard.New(domain.UserRole)
	adminGuard := guard.New(domain.AdminRole)
	loginLimit := LoginLimit(ctx, d.LoginRate)

	origins := []string{"*"}
	if d.FrontendURL != "" {
		origins = []string{d.FrontendURL}
	}

	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.SecurityHeaders(d.IsDev))
	r.Use(middleware.CORS(origins))

	// Public routes.
	healthHandler.RegisterHealth(r)
	spa := web.SPAHandler()
	r.Handle("/assets/*", spa)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(d.Repo, d.IsDev))

		for _, g := range []*guard.Guard{userGuard, adminGuard} {
			role := g.Role().Role
			api.NewAuthHandler(baseHandler, g).RegisterRoutes(r, loginLimit)
			api.NewLoginView(baseHandler, g, d.Templates, web.LoginTemplate).
				RegisterRoutes(r, g.RedirectIfAuthenticated(baseHandler.Lookup(role)), loginLimit)
		}
		r.HandleFunc("/api/*", func(w http.ResponseWriter, _ *http.Request) {
			api.Error(w, http.StatusNotFound, "not found")
		})

		r.Get("/ws/session", wsHandler.ServeHTTP)

		// Admin portal.
		r.Group(func(r chi.Router) {
			r.Use(adminGuard.Require(baseHandler.Lookup(domain.RoleAdmin)))
			r.Handle("/admin", spa)
			r.Handle("/admin/*", spa)
		})

		// Everything else belongs to the end-user app.
		r.Group(func(r chi.Router) {
			r.Use(userGuard.Require(baseHandler.Lookup(domain.RoleUser)))
			r.Handle("/*", spa)
		})
	})

	return r
}

// LoginLimit throttles credential submissions per device and address, and
// per address alone.
func LoginLimit(ctx context.Context, cfg config.LoginRateConfig) func(http.Handler) http.Handler {
	perIP := middleware.NewRateLimiter(ctx, perMinute(cfg.IPPerMinute), cfg.IPBurst, identity.IPFromRequest)
	perDevice := middleware.NewRateLimiter(ctx, perMinute(cfg.PerMinute), cfg.Burst, func(r *http.Request) string {
		return identity.DeviceIDFromContext(r.Context()) + "|" + identity.IPFromRequest(r)
	})
	return func(next http.Handler) http.Handler {
		return perIP.Middleware(perDevice.Middleware(next))
	}
}

func perMinute(n int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(n))
}
