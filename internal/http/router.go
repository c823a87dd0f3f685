package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stratumhq/stratum/internal/config"
	"github.com/stratumhq/stratum/internal/http/features/session"
	"github.com/stratumhq/stratum/internal/http/features/tenants"
	"github.com/stratumhq/stratum/internal/http/features/tenantusers"
	"github.com/stratumhq/stratum/internal/http/middleware"
	"github.com/stratumhq/stratum/internal/httputil"
	"github.com/stratumhq/stratum/pkg/auth"
	"github.com/stratumhq/stratum/pkg/permission"
	"github.com/stratumhq/stratum/pkg/repository"
	"github.com/stratumhq/stratum/pkg/tenant"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger            *slog.Logger
	Tokens            *auth.TokenService
	Resolver          *tenant.Resolver
	Executor          *tenant.Executor
	Scopes            *tenant.ScopeManager
	TenantsRepo       *repository.TenantsRepository
	MappingsRepo      *repository.EmailMappingsRepository
	RefreshTokensRepo *repository.RefreshTokensRepository
	AuditRepo         *repository.AuditRepository
	Cache             tenants.Invalidator
	RateLimitConfig   config.RateLimitConfig
	SecurityHeaders   config.SecurityHeadersConfig
	MaxRequestBody    int64
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.MaxRequestBody))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimitConfig, cfg.Logger)

	sessionHandler := session.NewHandler(cfg.Logger, cfg.Tokens)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters["auth"])
		r.Use(middleware.ResolveTenant(cfg.Resolver))
		r.Post("/login", sessionHandler.Login)
	})
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters["refresh"])
		r.Post("/refresh-token", sessionHandler.Refresh)
	})

	tenantsHandler := tenants.NewHandler(cfg.Logger, cfg.TenantsRepo, cfg.MappingsRepo, cfg.AuditRepo, cfg.Scopes, cfg.Cache)
	usersHandler := tenantusers.NewHandler(cfg.Logger, cfg.Executor, cfg.MappingsRepo, cfg.RefreshTokensRepo)

	// Admin surface. Every route below requires a valid access token; the
	// per-route permission check runs against the token's claims.
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters["admin"])
		r.Use(middleware.Auth(cfg.Tokens))
		r.Use(middleware.ResolveTenant(cfg.Resolver))

		r.With(middleware.RequirePermission(permission.Claim(permission.FeatureTenants, permission.ActionView))).
			Get("/tenants", tenantsHandler.List)
		r.With(middleware.RequirePermission(permission.Claim(permission.FeatureTenants, permission.ActionCreate))).
			Post("/tenants", tenantsHandler.Create)
		r.With(middleware.RequirePermission(permission.Claim(permission.FeatureTenants, permission.ActionEdit))).
			Post("/tenants/{tenantID}/activate", tenantsHandler.Activate)
		r.With(middleware.RequirePermission(permission.Claim(permission.FeatureTenants, permission.ActionEdit))).
			Post("/tenants/{tenantID}/deactivate", tenantsHandler.Deactivate)
		r.With(middleware.RequirePermission(permission.Claim(permission.FeatureTenants, permission.ActionEdit))).
			Post("/tenants/{tenantID}/renew", tenantsHandler.Renew)

		r.With(middleware.RequirePermission(permission.Claim(permission.FeatureCrossTenantUsers, permission.ActionView))).
			Get("/tenants/{tenantID}/users", usersHandler.List)
		r.With(middleware.RequirePermission(permission.Claim(permission.FeatureCrossTenantUsers, permission.ActionView))).
			Get("/tenants/{tenantID}/users/{userID}", usersHandler.Get)
		r.With(middleware.RequirePermission(permission.Claim(permission.FeatureCrossTenantUsers, permission.ActionCreate))).
			Post("/tenants/{tenantID}/users", usersHandler.Create)
		r.With(middleware.RequirePermission(permission.Claim(permission.FeatureCrossTenantUsers, permission.ActionEdit))).
			Put("/tenants/{tenantID}/users/{userID}", usersHandler.Update)
		r.With(middleware.RequirePermission(permission.Claim(permission.FeatureCrossTenantUsers, permission.ActionDelete))).
			Delete("/tenants/{tenantID}/users/{userID}", usersHandler.Delete)

		r.With(middleware.RequirePermission(permission.Claim(permission.FeatureAuditLog, permission.ActionView))).
			Get("/audit", tenantsHandler.Audit)
	})

	return r
}
