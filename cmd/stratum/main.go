package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/stratumhq/stratum/internal/config"
	httpserver "github.com/stratumhq/stratum/internal/http"
	"github.com/stratumhq/stratum/internal/http/middleware"
	"github.com/stratumhq/stratum/pkg/auth"
	"github.com/stratumhq/stratum/pkg/domain"
	"github.com/stratumhq/stratum/pkg/permission"
	"github.com/stratumhq/stratum/pkg/rbac"
	"github.com/stratumhq/stratum/pkg/repository"
	"github.com/stratumhq/stratum/pkg/tenant"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Connect to the shared directory database
	db, err := repository.NewDB(repository.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("connected to database")

	tenantsRepo := repository.NewTenantsRepository(db)
	mappingsRepo := repository.NewEmailMappingsRepository(db)
	refreshTokensRepo := repository.NewRefreshTokensRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	dir, err := tenant.NewCachedDirectory(
		tenant.NewStoreDirectory(tenantsRepo, mappingsRepo),
		cfg.DirectoryCacheTTL,
	)
	if err != nil {
		logger.Error("failed to initialize tenant directory cache", "error", err)
		os.Exit(1)
	}

	scopes := tenant.NewScopeManager(db, dir, logger)
	defer scopes.Close()

	identities := auth.NewScopedIdentity(scopes)
	tokens := auth.NewTokenService(auth.TokenConfig{
		Secret:          []byte(cfg.JWTSecret),
		Issuer:          cfg.JWTIssuer,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	}, identities, dir, refreshTokensRepo)

	executor := tenant.NewExecutor(dir, scopes, auditRepo, logger)

	resolver := tenant.NewResolver(
		tenant.NewHeaderStrategy(),
		tenant.NewEmailMappingStrategy(dir, "/login", cfg.MaxRequestBodySize),
		tenant.NewClaimStrategy(middleware.ClaimSetFrom),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := bootstrap(ctx, cfg, logger, db, tenantsRepo, mappingsRepo); err != nil {
		cancel()
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	cancel()

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Logger:            logger,
		Tokens:            tokens,
		Resolver:          resolver,
		Executor:          executor,
		Scopes:            scopes,
		TenantsRepo:       tenantsRepo,
		MappingsRepo:      mappingsRepo,
		RefreshTokensRepo: refreshTokensRepo,
		AuditRepo:         auditRepo,
		Cache:             dir,
		RateLimitConfig:   cfg.RateLimit,
		SecurityHeaders:   cfg.SecurityHeaders,
		MaxRequestBody:    cfg.MaxRequestBodySize,
	})

	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

// bootstrap ensures the pseudo-tenant row exists, seeds the system roles,
// and creates the configured bootstrap administrator if it is missing.
func bootstrap(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db repository.Querier,
	tenantsRepo *repository.TenantsRepository,
	mappingsRepo *repository.EmailMappingsRepository,
) error {
	_, err := tenantsRepo.GetByID(ctx, domain.SystemTenantID)
	if errors.Is(err, domain.ErrTenantNotFound) {
		now := time.Now()
		err = tenantsRepo.Create(ctx, &domain.Tenant{
			ID:          domain.SystemTenantID,
			DisplayName: "System",
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err == nil {
			logger.Info("system tenant created")
		}
	}
	if err != nil && !errors.Is(err, domain.ErrTenantExists) {
		return err
	}

	rolesRepo := repository.NewRolesRepository(db)
	if err := rbac.NewSeeder(rolesRepo, logger).SeedSystem(ctx); err != nil {
		return err
	}

	if cfg.BootstrapAdminEmail == "" {
		return nil
	}

	usersRepo := repository.NewUsersRepository(db)
	_, err = usersRepo.GetByEmail(ctx, domain.SystemTenantID, cfg.BootstrapAdminEmail)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return err
	}

	hash, err := auth.HashPassword(cfg.BootstrapAdminPassword)
	if err != nil {
		return err
	}
	now := time.Now()
	admin := &domain.Principal{
		ID:           uuid.New(),
		TenantID:     domain.SystemTenantID,
		Email:        cfg.BootstrapAdminEmail,
		DisplayName:  "Bootstrap Administrator",
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := usersRepo.Create(ctx, admin); err != nil {
		return err
	}
	role, err := rolesRepo.GetByName(ctx, domain.SystemTenantID, permission.RoleSysAdmin)
	if err != nil {
		return err
	}
	if err := usersRepo.AssignRole(ctx, admin.ID, role.ID); err != nil {
		return err
	}
	if err := mappingsRepo.Create(ctx, &domain.EmailTenantMapping{
		Email:     cfg.BootstrapAdminEmail,
		TenantID:  domain.SystemTenantID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil && !errors.Is(err, domain.ErrEmailMapped) {
		return err
	}

	logger.Info("bootstrap administrator created", "email", cfg.BootstrapAdminEmail)
	return nil
}
