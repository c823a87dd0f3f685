package tenant

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/stratumhq/stratum/pkg/policy"
)

// HeaderName is the request header carrying an explicit tenant identifier.
const HeaderName = "tenant"

// Strategy extracts a tenant identifier from an inbound request. Strategies
// report ok=false rather than erroring; the chain only cares whether an
// identifier was produced.
type Strategy interface {
	Name() string
	Resolve(r *http.Request) (tenantID string, ok bool)
}

// Resolver tries strategies in fixed priority order; the first to return an
// identifier wins. Callers must not rely on later strategies overriding
// earlier ones.
type Resolver struct {
	strategies []Strategy
}

// NewResolver creates a resolver over the given strategies, in priority order.
func NewResolver(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies}
}

// Resolve returns the first tenant identifier any strategy produces, along
// with the winning strategy's name.
func (r *Resolver) Resolve(req *http.Request) (tenantID, strategy string, ok bool) {
	for _, s := range r.strategies {
		if id, ok := s.Resolve(req); ok && id != "" {
			return id, s.Name(), true
		}
	}
	return "", "", false
}

// EmailMappingStrategy resolves the tenant for the login endpoint by looking
// the request body's email up in the email -> tenant index. It applies to no
// other endpoint.
type EmailMappingStrategy struct {
	dir       Directory
	loginPath string
	maxBody   int64
}

// NewEmailMappingStrategy creates the login-body strategy.
func NewEmailMappingStrategy(dir Directory, loginPath string, maxBody int64) *EmailMappingStrategy {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &EmailMappingStrategy{dir: dir, loginPath: loginPath, maxBody: maxBody}
}

func (s *EmailMappingStrategy) Name() string { return "email-mapping" }

// Resolve peeks at the login body. The body is buffered and rewound so the
// login handler can read it again; a non-JSON or empty body resolves to
// nothing rather than failing.
func (s *EmailMappingStrategy) Resolve(r *http.Request) (string, bool) {
	if r.Method != http.MethodPost || r.URL.Path != s.loginPath || r.Body == nil {
		return "", false
	}

	body, readErr := io.ReadAll(io.LimitReader(r.Body, s.maxBody))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if readErr != nil {
		return "", false
	}

	var payload struct {
		UserName string `json:"userName"`
		Email    string `json:"email"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", false
	}

	email := payload.UserName
	if email == "" {
		email = payload.Email
	}
	if email == "" {
		return "", false
	}

	id, err := s.dir.TenantIDByEmail(r.Context(), email)
	if err != nil {
		return "", false
	}
	return id, true
}

// HeaderStrategy reads the tenant identifier from a fixed header.
type HeaderStrategy struct {
	header string
}

// NewHeaderStrategy creates the header strategy.
func NewHeaderStrategy() *HeaderStrategy {
	return &HeaderStrategy{header: HeaderName}
}

func (s *HeaderStrategy) Name() string { return "header" }

func (s *HeaderStrategy) Resolve(r *http.Request) (string, bool) {
	id := r.Header.Get(s.header)
	return id, id != ""
}

// ClaimStrategy reads the tenant claim of the caller's validated identity
// token. The claims accessor is injected so the strategy stays decoupled
// from the HTTP middleware that validates tokens.
type ClaimStrategy struct {
	claimsFrom func(r *http.Request) (policy.ClaimSet, bool)
}

// NewClaimStrategy creates the token-claim strategy.
func NewClaimStrategy(claimsFrom func(r *http.Request) (policy.ClaimSet, bool)) *ClaimStrategy {
	return &ClaimStrategy{claimsFrom: claimsFrom}
}

func (s *ClaimStrategy) Name() string { return "claim" }

func (s *ClaimStrategy) Resolve(r *http.Request) (string, bool) {
	claims, ok := s.claimsFrom(r)
	if !ok {
		return "", false
	}
	return claims.First(policy.ClaimTenant)
}
