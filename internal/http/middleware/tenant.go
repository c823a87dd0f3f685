package middleware

import (
	"net/http"

	"github.com/stratumhq/stratum/pkg/tenant"
)

// ResolveTenant creates middleware that runs the tenant resolution chain and
// stores the winning identifier in the request context. Resolution failure
// is not an error here; tenant-scoped operations fail later when they find
// no resolved tenant.
func ResolveTenant(resolver *tenant.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, _, ok := resolver.Resolve(r); ok {
				r = r.WithContext(tenant.WithResolved(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}
