package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr string
	ServerPort int

	// Database (shared storage target)
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret       string
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Tenant directory
	DirectoryCacheTTL time.Duration

	// Bootstrap system administrator, created on startup when no
	// principal with that email exists yet. Optional.
	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	// Limits
	MaxRequestBodySize int64
	RateLimit          RateLimitConfig
	SecurityHeaders    SecurityHeadersConfig
}

// RateLimitConfig holds per-endpoint-class rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool

	AuthRequestsPerMinute    int
	AuthWindowMinutes        int
	RefreshRequestsPerMinute int
	RefreshWindowMinutes     int
	AdminRequestsPerMinute   int
	AdminWindowMinutes       int
}

// SecurityHeadersConfig holds security header configuration.
type SecurityHeadersConfig struct {
	Enabled            bool
	CSP                string
	HSTSMaxAge         int
	FrameOptions       string
	ContentTypeOptions string
	XSSProtection      string
	ReferrerPolicy     string
	PermissionsPolicy  string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ServerAddr: getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "stratum"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		JWTIssuer:       getEnv("JWT_ISSUER", "stratum"),
		AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),

		DirectoryCacheTTL: getEnvDuration("DIRECTORY_CACHE_TTL", 30*time.Second),

		BootstrapAdminEmail:    getEnv("BOOTSTRAP_ADMIN_EMAIL", ""),
		BootstrapAdminPassword: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),

		MaxRequestBodySize: getEnvInt64("MAX_REQUEST_BODY_SIZE", 1<<20),

		RateLimit: RateLimitConfig{
			Enabled:                  getEnvBool("RATE_LIMIT_ENABLED", true),
			AuthRequestsPerMinute:    getEnvInt("RATE_LIMIT_AUTH_REQUESTS", 10),
			AuthWindowMinutes:        getEnvInt("RATE_LIMIT_AUTH_WINDOW_MINUTES", 1),
			RefreshRequestsPerMinute: getEnvInt("RATE_LIMIT_REFRESH_REQUESTS", 30),
			RefreshWindowMinutes:     getEnvInt("RATE_LIMIT_REFRESH_WINDOW_MINUTES", 1),
			AdminRequestsPerMinute:   getEnvInt("RATE_LIMIT_ADMIN_REQUESTS", 120),
			AdminWindowMinutes:       getEnvInt("RATE_LIMIT_ADMIN_WINDOW_MINUTES", 1),
		},

		SecurityHeaders: SecurityHeadersConfig{
			Enabled:            getEnvBool("SECURITY_HEADERS_ENABLED", true),
			CSP:                getEnv("SECURITY_CSP", "default-src 'none'; frame-ancestors 'none'"),
			HSTSMaxAge:         getEnvInt("SECURITY_HSTS_MAX_AGE", 31536000),
			FrameOptions:       getEnv("SECURITY_FRAME_OPTIONS", "DENY"),
			ContentTypeOptions: getEnv("SECURITY_CONTENT_TYPE_OPTIONS", "nosniff"),
			XSSProtection:      getEnv("SECURITY_XSS_PROTECTION", "1; mode=block"),
			ReferrerPolicy:     getEnv("SECURITY_REFERRER_POLICY", "strict-origin-when-cross-origin"),
			PermissionsPolicy:  getEnv("SECURITY_PERMISSIONS_POLICY", ""),
		},
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if (cfg.BootstrapAdminEmail == "") != (cfg.BootstrapAdminPassword == "") {
		return nil, fmt.Errorf("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
