package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/stratumhq/stratum/internal/httputil"
	"github.com/stratumhq/stratum/pkg/auth"
	"github.com/stratumhq/stratum/pkg/policy"
	"github.com/stratumhq/stratum/pkg/tenant"
)

type contextKey string

// ClaimsKey is the context key for the validated token claims.
const ClaimsKey contextKey = "claims"

// Auth creates middleware that validates Bearer access tokens and stores the
// claims in the request context.
func Auth(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tokenString string
			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
					tokenString = parts[1]
				}
			}

			if tokenString == "" {
				httputil.Error(w, http.StatusUnauthorized, "missing_authorization", "missing authorization")
				return
			}

			claims, err := tokens.ValidateAccessToken(tokenString)
			if err != nil {
				httputil.Error(w, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims extracts the token claims from the request context.
func GetClaims(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*auth.Claims)
	return claims, ok
}

// ClaimSetFrom adapts the context claims for the tenant claim-resolution
// strategy.
func ClaimSetFrom(r *http.Request) (policy.ClaimSet, bool) {
	claims, ok := GetClaims(r.Context())
	if !ok {
		return nil, false
	}
	return claims.ClaimSet(), true
}

// CallerFrom builds the cross-tenant caller identity from the context
// claims.
func CallerFrom(ctx context.Context) (tenant.Caller, bool) {
	claims, ok := GetClaims(ctx)
	if !ok {
		return tenant.Caller{}, false
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return tenant.Caller{}, false
	}
	return tenant.Caller{
		ID:       id,
		TenantID: claims.Tenant,
		Claims:   claims.ClaimSet(),
	}, true
}

// RequirePermission creates middleware that denies the request unless the
// caller's claim set satisfies the permission.
func RequirePermission(requiredPermission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaims(r.Context())
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, "missing_authorization", "missing authorization")
				return
			}
			if !policy.Evaluate(claims.ClaimSet(), requiredPermission) {
				httputil.Error(w, http.StatusForbidden, "forbidden", "access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
