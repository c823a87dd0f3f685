package config

import (
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ServerAddr != "0.0.0.0" {
		t.Errorf("ServerAddr = %q, want %q", cfg.ServerAddr, "0.0.0.0")
	}
	if cfg.ServerPort != 8080 {
		t.Errorf("ServerPort = %d, want %d", cfg.ServerPort, 8080)
	}
	if cfg.DBHost != "localhost" {
		t.Errorf("DBHost = %q, want %q", cfg.DBHost, "localhost")
	}
	if cfg.DBName != "stratum" {
		t.Errorf("DBName = %q, want %q", cfg.DBName, "stratum")
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want %v", cfg.AccessTokenTTL, 15*time.Minute)
	}
	if cfg.RefreshTokenTTL != 7*24*time.Hour {
		t.Errorf("RefreshTokenTTL = %v, want %v", cfg.RefreshTokenTTL, 7*24*time.Hour)
	}
	if cfg.DirectoryCacheTTL != 30*time.Second {
		t.Errorf("DirectoryCacheTTL = %v, want %v", cfg.DirectoryCacheTTL, 30*time.Second)
	}
	if cfg.MaxRequestBodySize != 1<<20 {
		t.Errorf("MaxRequestBodySize = %d, want %d", cfg.MaxRequestBodySize, 1<<20)
	}
	if !cfg.RateLimit.Enabled {
		t.Error("rate limiting should default to enabled")
	}
}

func TestLoad_RequiredJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Error("Load should fail when JWT_SECRET is not set")
	}
}

func TestLoad_ShortJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "too-short")

	if _, err := Load(); err == nil {
		t.Error("Load should fail when JWT_SECRET is under 32 characters")
	}
}

func TestLoad_BootstrapAdminPair(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("BOOTSTRAP_ADMIN_EMAIL", "root@example.test")
	t.Setenv("BOOTSTRAP_ADMIN_PASSWORD", "")

	if _, err := Load(); err == nil {
		t.Error("Load should fail when only one bootstrap variable is set")
	}

	t.Setenv("BOOTSTRAP_ADMIN_PASSWORD", "a long enough password")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BootstrapAdminEmail != "root@example.test" {
		t.Errorf("BootstrapAdminEmail = %q", cfg.BootstrapAdminEmail)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("DIRECTORY_CACHE_TTL", "2m")
	t.Setenv("RATE_LIMIT_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ServerPort != 9090 {
		t.Errorf("ServerPort = %d, want 9090", cfg.ServerPort)
	}
	if cfg.AccessTokenTTL != 5*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 5m", cfg.AccessTokenTTL)
	}
	if cfg.DirectoryCacheTTL != 2*time.Minute {
		t.Errorf("DirectoryCacheTTL = %v, want 2m", cfg.DirectoryCacheTTL)
	}
	if cfg.RateLimit.Enabled {
		t.Error("rate limiting should be disabled")
	}
}
