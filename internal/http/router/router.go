package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/headcorn/dashboard-api/internal/auth"
	"github.com/headcorn/dashboard-api/internal/config"
	"github.com/headcorn/dashboard-api/internal/http/handler"
	"github.com/headcorn/dashboard-api/internal/http/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	_ "github.com/headcorn/dashboard-api/docs" // Import generated swagger docs
)

type Router struct {
	cfg              *config.Config
	logger           *zap.Logger
	authMiddleware   *auth.Middleware
	rateLimiter      *middleware.RateLimiter
	healthHandler    *handler.HealthHandler
	authHandler      *handler.AuthHandler
	dashboardHandler *handler.DashboardHandler
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	authMiddleware *auth.Middleware,
	rateLimiter *middleware.RateLimiter,
	healthHandler *handler.HealthHandler,
	authHandler *handler.AuthHandler,
	dashboardHandler *handler.DashboardHandler,
) *Router {
	return &Router{
		cfg:              cfg,
		logger:           logger,
		authMiddleware:   authMiddleware,
		rateLimiter:      rateLimiter,
		healthHandler:    healthHandler,
		authHandler:      authHandler,
		dashboardHandler: dashboardHandler,
	}
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.Logging(rt.logger))
	r.Use(middleware.SecurityHeaders(&rt.cfg.Security))
	r.Use(middleware.CORS(&rt.cfg.CORS, &rt.cfg.App, rt.logger))
	r.Use(rt.rateLimiter.LimitByIP)
	if timeout := rt.cfg.Server.RequestTimeoutDuration(); timeout > 0 {
		r.Use(chimw.Timeout(timeout))
	}

	// Health and service info
	r.Get("/", rt.healthHandler.Root)
	r.Get("/health", rt.healthHandler.Liveness)
	r.Get("/health/db", rt.healthHandler.DatabaseStats)
	r.Get("/health/ready", rt.healthHandler.Ready)

	// Swagger documentation
	if rt.cfg.Server.EnableSwagger {
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", rt.healthHandler.Health)

		r.Route("/auth", func(r chi.Router) {
			// Credential endpoints share the stricter per-IP budget
			r.Group(func(r chi.Router) {
				r.Use(rt.rateLimiter.LimitLogin)
				r.Post("/check-email", rt.authHandler.CheckEmail)
				r.Post("/register", rt.authHandler.Register)
				r.Post("/login", rt.authHandler.Login)
			})

			r.Group(func(r chi.Router) {
				r.Use(rt.authMiddleware.Authenticate)
				r.Use(middleware.CaptureUser)
				r.Get("/me", rt.authHandler.Me)
				r.Post("/change-password", rt.authHandler.ChangePassword)
			})
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Use(rt.authMiddleware.Authenticate)
			r.Use(middleware.CaptureUser)

			r.Get("/", rt.dashboardHandler.GetDashboard)
			r.Get("/items", rt.dashboardHandler.ListItems)
			r.Get("/items/{id}", rt.dashboardHandler.GetItem)
			r.Get("/items/{id}/export", rt.dashboardHandler.ExportItem)
			r.Post("/query", rt.dashboardHandler.CustomQuery)
		})
	})

	return r
}
