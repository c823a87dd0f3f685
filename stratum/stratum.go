// Package stratum provides the multi-tenant administration backend as an
// embeddable library.
//
// Setup:
//
//  1. Run migrations from migrations/ folder using your preferred tool
//  2. Create a Stratum instance and mount its routes
//
// Basic usage:
//
//	db, _ := sql.Open("postgres", "postgres://localhost/myapp?sslmode=disable")
//
//	st, err := stratum.New(stratum.Config{
//	    DB:        db,
//	    JWTSecret: "your-secret-key-at-least-32-chars",
//	})
//	if err != nil {
//	    log.Fatal(err) // Will fail if migrations haven't been run
//	}
//
//	r := chi.NewRouter()
//	r.Mount("/admin", st.Router())
//	http.ListenAndServe(":8080", r)
package stratum

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stratumhq/stratum/internal/http/features/session"
	"github.com/stratumhq/stratum/internal/http/features/tenants"
	"github.com/stratumhq/stratum/internal/http/features/tenantusers"
	"github.com/stratumhq/stratum/internal/http/middleware"
	"github.com/stratumhq/stratum/internal/httputil"
	"github.com/stratumhq/stratum/pkg/auth"
	"github.com/stratumhq/stratum/pkg/permission"
	"github.com/stratumhq/stratum/pkg/rbac"
	"github.com/stratumhq/stratum/pkg/repository"
	"github.com/stratumhq/stratum/pkg/tenant"
)

// Config holds the configuration for the library.
type Config struct {
	// DB is the shared directory database connection (required).
	DB *sql.DB

	// JWTSecret is the secret key for signing access tokens (required, min 32 chars).
	JWTSecret string

	// JWTIssuer is the issuer claim in access tokens (default: "stratum").
	JWTIssuer string

	// AccessTokenTTL is the lifetime of access tokens (default: 15 minutes).
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is the lifetime of refresh tokens (default: 7 days).
	RefreshTokenTTL time.Duration

	// DirectoryCacheTTL bounds how stale a cached tenant record may be
	// (default: 30 seconds).
	DirectoryCacheTTL time.Duration

	// LoginPath is the full request path login requests arrive on, used by
	// the email-mapping resolution strategy. When mounting under a prefix,
	// include the prefix (e.g. "/admin/login"). Default: "/login".
	LoginPath string

	// Logger is the structured logger (default: JSON to stdout).
	Logger *slog.Logger
}

// Stratum is the wired backend instance.
type Stratum struct {
	config       Config
	db           *sql.DB
	tenantsRepo  *repository.TenantsRepository
	mappingsRepo *repository.EmailMappingsRepository
	sessionsRepo *repository.RefreshTokensRepository
	auditRepo    *repository.AuditRepository
	dir          *tenant.CachedDirectory
	scopes       *tenant.ScopeManager
	resolver     *tenant.Resolver
	tokens       *auth.TokenService
	executor     *tenant.Executor
}

// New creates a wired instance over an existing database pool.
// Returns an error if required database tables don't exist.
// Run migrations first - see migrations/ folder for SQL files.
func New(cfg Config) (*Stratum, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := validateSchema(cfg.DB); err != nil {
		return nil, err
	}

	tenantsRepo := repository.NewTenantsRepository(cfg.DB)
	mappingsRepo := repository.NewEmailMappingsRepository(cfg.DB)
	refreshTokensRepo := repository.NewRefreshTokensRepository(cfg.DB)
	auditRepo := repository.NewAuditRepository(cfg.DB)

	dir, err := tenant.NewCachedDirectory(
		tenant.NewStoreDirectory(tenantsRepo, mappingsRepo),
		cfg.DirectoryCacheTTL,
	)
	if err != nil {
		return nil, fmt.Errorf("stratum: initializing directory cache: %w", err)
	}

	scopes := tenant.NewScopeManager(cfg.DB, dir, cfg.Logger)
	tokens := auth.NewTokenService(auth.TokenConfig{
		Secret:          []byte(cfg.JWTSecret),
		Issuer:          cfg.JWTIssuer,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	}, auth.NewScopedIdentity(scopes), dir, refreshTokensRepo)

	resolver := tenant.NewResolver(
		tenant.NewHeaderStrategy(),
		tenant.NewEmailMappingStrategy(dir, cfg.LoginPath, 1<<20),
		tenant.NewClaimStrategy(middleware.ClaimSetFrom),
	)

	return &Stratum{
		config:       cfg,
		db:           cfg.DB,
		tenantsRepo:  tenantsRepo,
		mappingsRepo: mappingsRepo,
		sessionsRepo: refreshTokensRepo,
		auditRepo:    auditRepo,
		dir:          dir,
		scopes:       scopes,
		resolver:     resolver,
		tokens:       tokens,
		executor:     tenant.NewExecutor(dir, scopes, auditRepo, cfg.Logger),
	}, nil
}

// Bootstrap seeds the system roles. Call once at startup; re-running is
// harmless.
func (s *Stratum) Bootstrap(ctx context.Context) error {
	roles := repository.NewRolesRepository(s.db)
	return rbac.NewSeeder(roles, s.config.Logger).SeedSystem(ctx)
}

// Router returns a chi router with all routes registered.
// Mount this on your main router:
//
//	r := chi.NewRouter()
//	r.Mount("/admin", st.Router())
//
// Routes:
//
//	POST /login                              - Authenticate against the resolved tenant
//	POST /refresh-token                      - Rotate a token pair
//	GET  /tenants                            - List tenants (protected)
//	POST /tenants                            - Provision a tenant (protected)
//	POST /tenants/{tenantID}/activate        - Activate (protected)
//	POST /tenants/{tenantID}/deactivate      - Deactivate (protected)
//	POST /tenants/{tenantID}/renew           - Extend the subscription (protected)
//	GET  /tenants/{tenantID}/users           - Cross-tenant user list (protected)
//	POST /tenants/{tenantID}/users           - Cross-tenant user create (protected)
//	GET  /tenants/{tenantID}/users/{userID}  - Cross-tenant user read (protected)
//	PUT  /tenants/{tenantID}/users/{userID}  - Cross-tenant user update (protected)
//	DELETE /tenants/{tenantID}/users/{userID} - Cross-tenant user delete (protected)
//	GET  /audit                              - The caller's cross-tenant audit trail (protected)
func (s *Stratum) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recover(s.config.Logger))

	sessionHandler := session.NewHandler(s.config.Logger, s.tokens)
	r.Group(func(r chi.Router) {
		r.Use(middleware.ResolveTenant(s.resolver))
		r.Post("/login", sessionHandler.Login)
	})
	r.Post("/refresh-token", sessionHandler.Refresh)

	tenantsHandler := tenants.NewHandler(s.config.Logger, s.tenantsRepo, s.mappingsRepo, s.auditRepo, s.scopes, s.dir)
	usersHandler := tenantusers.NewHandler(s.config.Logger, s.executor, s.mappingsRepo, s.sessionsRepo)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(s.tokens))
		r.Use(middleware.ResolveTenant(s.resolver))

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

// TokenService returns the token service for advanced usage.
func (s *Stratum) TokenService() *auth.TokenService {
	return s.tokens
}

// Executor returns the cross-tenant execution engine, for running your own
// operations inside audited, scoped tenant access.
func (s *Stratum) Executor() *tenant.Executor {
	return s.executor
}

// ScopeManager returns the scope manager, for opening tenant scopes
// directly.
func (s *Stratum) ScopeManager() *tenant.ScopeManager {
	return s.scopes
}

// AuthMiddleware returns middleware that validates access tokens.
// Use this to protect your own routes:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(st.AuthMiddleware())
//	    r.Get("/protected", handler)
//	})
func (s *Stratum) AuthMiddleware() func(http.Handler) http.Handler {
	return middleware.Auth(s.tokens)
}

// Caller extracts the cross-tenant caller identity from a request.
// Use after AuthMiddleware:
//
//	caller, ok := st.Caller(r)
//	result, err := st.Executor().ExecuteAs(r.Context(), caller, target, "my.op", op)
func (s *Stratum) Caller(r *http.Request) (tenant.Caller, bool) {
	return middleware.CallerFrom(r.Context())
}

// HealthHandler returns a simple health check handler.
func (s *Stratum) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Handler returns an http.Handler for mounting with http.StripPrefix.
// This is useful when using standard library ServeMux:
//
//	mux := http.NewServeMux()
//	mux.Handle("/admin/", http.StripPrefix("/admin", st.Handler()))
func (s *Stratum) Handler() http.Handler {
	return s.Router()
}

// Routes registers all routes on an http.ServeMux with the given prefix.
// This provides a simpler way to mount routes without StripPrefix:
//
//	mux := http.NewServeMux()
//	st.Routes(mux, "/api/v1/admin")
func (s *Stratum) Routes(mux *http.ServeMux, prefix string) {
	mux.Handle(prefix+"/", http.StripPrefix(prefix, s.Router()))
}

// Close releases the dedicated tenant pools. The shared pool passed in
// Config.DB belongs to the caller and is left open.
func (s *Stratum) Close() error {
	return s.scopes.Close()
}

func validateConfig(cfg *Config) error {
	if cfg.DB == nil {
		return errors.New("stratum: DB is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("stratum: JWTSecret is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return errors.New("stratum: JWTSecret must be at least 32 characters")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = "stratum"
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if cfg.DirectoryCacheTTL == 0 {
		cfg.DirectoryCacheTTL = 30 * time.Second
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
}

// validateSchema checks that required database tables exist.
func validateSchema(db *sql.DB) error {
	requiredTables := []string{
		"tenants", "email_tenant_mappings", "users", "roles",
		"user_roles", "refresh_tokens", "cross_tenant_audit",
	}

	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1
	`

	for _, table := range requiredTables {
		var name string
		err := db.QueryRow(query, table).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("stratum: missing table '%s' - run migrations first (see migrations/ folder)", table)
		}
		if err != nil {
			return fmt.Errorf("stratum: failed to check schema: %w", err)
		}
	}

	return nil
}
