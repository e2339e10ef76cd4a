package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-admin-auth/internal/config"
	"go-admin-auth/internal/handler"
	"go-admin-auth/internal/metrics"
	"go-admin-auth/internal/middleware"
	"go-admin-auth/internal/rbac"
)

type Handlers struct {
	Auth   *handler.AuthHandler
	Users  *handler.UserHandler
	Audit  *handler.AuditHandler
	Health *handler.HealthHandler
}

func New(
	cfg *config.Config,
	authMiddleware *middleware.AuthMiddleware,
	m *metrics.Metrics,
	h Handlers,
) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.NewProxyTrust(cfg.TrustedProxies).Handler)
	r.Use(middleware.Logging)
	r.Use(m.Instrument)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", h.Health.Check)

	guarded := func(router chi.Router, action rbac.Action, resource string) chi.Router {
		return router.With(authMiddleware.RequireAuth, authMiddleware.RequirePermission(action, resource))
	}

	guarded(r, rbac.ActionRead, "metrics").Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/login", h.Auth.Login)
			auth.Post("/refresh", h.Auth.Refresh)
			auth.Post("/logout", h.Auth.Logout)
			auth.With(authMiddleware.RequireAuth).Get("/me", h.Auth.Me)
			auth.With(authMiddleware.RequireAuth).Get("/permissions", h.Auth.Permissions)
		})

		guarded(api, rbac.ActionRead, "users").Get("/users", h.Users.List)
		guarded(api, rbac.ActionRead, "users").Get("/users/{id}", h.Users.Get)
		guarded(api, rbac.ActionCreate, "users").Post("/users", h.Users.Create)
		guarded(api, rbac.ActionUpdate, "users").Patch("/users/{id}", h.Users.Update)
		guarded(api, rbac.ActionDelete, "users").Delete("/users/{id}", h.Users.Delete)

		guarded(api, rbac.ActionRead, "system").Get("/audit", h.Audit.List)
	})

	return r
}
