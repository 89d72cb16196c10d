package handler

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pulsetrack/pulsetrack/internal/middleware"
	"github.com/pulsetrack/pulsetrack/internal/model"
)

// RouterConfig wires handlers and middleware into the HTTP surface.
type RouterConfig struct {
	Logger *slog.Logger

	Root      *Handler
	Health    *HealthHandler
	Metrics   *MetricsHandler
	Ingest    *IngestHandler
	Users     *UserHandler
	Dashboard *DashboardHandler
	Admin     *AdminHandler

	Tokens       middleware.TokenValidator
	ConnectLimit middleware.RateLimitConfig
	LoginLimit   middleware.RateLimitConfig
	CORS         middleware.CORSConfig
	Security     middleware.SecurityConfig
	MaxBodySize  int64
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(cfg.Security))

	// Ops endpoints (no auth required)
	r.Get("/", cfg.Root.Root)
	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)
	r.Get("/metrics", cfg.Metrics.Metrics)

	// Tracker endpoints, called from customer sites.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitIP(cfg.ConnectLimit))
		r.Get("/ws/session", cfg.Ingest.Session)
		r.Get("/create_user", cfg.Users.Create)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.CORS))
		r.Use(middleware.MaxBodySize(cfg.MaxBodySize))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitIP(cfg.LoginLimit))
			r.Post("/admin/register", cfg.Admin.Register)
			r.Post("/admin/login", cfg.Admin.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(middleware.AuthConfig{
				Logger:    cfg.Logger,
				Validator: cfg.Tokens,
			}))

			r.Get("/admin/me", cfg.Admin.Me)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireSuperAdmin())
				r.Get("/admin", cfg.Admin.List)
				r.Patch("/admin/{id}/status", cfg.Admin.SetStatus)
				r.Put("/admin/{id}/features", cfg.Admin.SetFeatures)
			})

			r.Route("/dashboard", func(r chi.Router) {
				r.With(middleware.RequireFeature(model.FeatureMain)).Get("/", cfg.Dashboard.Main)
				r.With(middleware.RequireFeature(model.FeatureMain)).Get("/active", cfg.Dashboard.Active)
				r.With(middleware.RequireFeature(model.FeatureTrends)).Get("/trends", cfg.Dashboard.Trends)
				r.With(middleware.RequireFeature(model.FeaturePages)).Get("/pages", cfg.Dashboard.Pages)
				r.With(middleware.RequireFeature(model.FeaturePages)).Get("/bounces", cfg.Dashboard.Bounces)
				r.With(middleware.RequireFeature(model.FeatureDevices)).Get("/devices", cfg.Dashboard.Devices)
				r.With(middleware.RequireFeature(model.FeatureContent)).Get("/content", cfg.Dashboard.Content)
				r.With(middleware.RequireFeature(model.FeatureUsers)).Get("/sessions", cfg.Dashboard.Sessions)
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(middleware.RequireFeature(model.FeatureUsers))
				r.Get("/top", cfg.Dashboard.TopUsers)
				r.Get("/{id}/sessions", cfg.Dashboard.UserSessions)
			})
		})
	})

	// 404 and 405 handlers
	r.NotFound(cfg.Root.NotFound)
	r.MethodNotAllowed(cfg.Root.MethodNotAllowed)

	return r
}
