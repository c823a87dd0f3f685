package tenant

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stratumhq/stratum/pkg/domain"
	"github.com/stratumhq/stratum/pkg/policy"
)

type fakeDirectory struct {
	tenants map[string]*domain.Tenant
	emails  map[string]string
}

func (d *fakeDirectory) TenantByID(_ context.Context, id string) (*domain.Tenant, error) {
	t, ok := d.tenants[id]
	if !ok {
		return nil, domain.ErrTenantNotFound
	}
	return t, nil
}

func (d *fakeDirectory) TenantIDByEmail(_ context.Context, email string) (string, error) {
	id, ok := d.emails[email]
	if !ok {
		return "", domain.ErrTenantNotFound
	}
	return id, nil
}

func TestEmailMappingStrategy(t *testing.T) {
	dir := &fakeDirectory{emails: map[string]string{"alice@acme.test": "acme"}}
	strategy := NewEmailMappingStrategy(dir, "/login", 1<<20)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		wantID string
		wantOK bool
	}{
		{
			name:   "login body with mapped userName",
			method: "POST",
			path:   "/login",
			body:   `{"userName":"alice@acme.test","password":"x"}`,
			wantID: "acme",
			wantOK: true,
		},
		{
			name:   "login body with mapped email field",
			method: "POST",
			path:   "/login",
			body:   `{"email":"alice@acme.test"}`,
			wantID: "acme",
			wantOK: true,
		},
		{
			name:   "unmapped email",
			method: "POST",
			path:   "/login",
			body:   `{"userName":"nobody@nowhere.test"}`,
			wantOK: false,
		},
		{
			name:   "malformed body tolerated",
			method: "POST",
			path:   "/login",
			body:   `{not json`,
			wantOK: false,
		},
		{
			name:   "empty body tolerated",
			method: "POST",
			path:   "/login",
			body:   ``,
			wantOK: false,
		},
		{
			name:   "wrong path ignored",
			method: "POST",
			path:   "/tenants",
			body:   `{"userName":"alice@acme.test"}`,
			wantOK: false,
		},
		{
			name:   "wrong method ignored",
			method: "GET",
			path:   "/login",
			body:   `{"userName":"alice@acme.test"}`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewReader([]byte(tt.body)))
			id, ok := strategy.Resolve(req)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if id != tt.wantID {
				t.Errorf("id = %q, want %q", id, tt.wantID)
			}
		})
	}
}

func TestEmailMappingStrategyRewindsBody(t *testing.T) {
	dir := &fakeDirectory{emails: map[string]string{"alice@acme.test": "acme"}}
	strategy := NewEmailMappingStrategy(dir, "/login", 1<<20)

	body := `{"userName":"alice@acme.test","password":"secret"}`
	req := httptest.NewRequest("POST", "/login", bytes.NewReader([]byte(body)))

	if _, ok := strategy.Resolve(req); !ok {
		t.Fatal("expected resolution to succeed")
	}

	// The handler downstream must still see the full body.
	replay, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("reading replayed body: %v", err)
	}
	if string(replay) != body {
		t.Errorf("replayed body = %q, want %q", replay, body)
	}
}

func TestResolverPrecedence(t *testing.T) {
	dir := &fakeDirectory{emails: map[string]string{"alice@acme.test": "acme"}}

	claimSet := policy.ClaimSet{{Type: policy.ClaimTenant, Value: "claimco"}}
	resolver := NewResolver(
		NewHeaderStrategy(),
		NewEmailMappingStrategy(dir, "/login", 1<<20),
		NewClaimStrategy(func(r *http.Request) (policy.ClaimSet, bool) { return claimSet, true }),
	)

	t.Run("header beats claim", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/tenants", nil)
		req.Header.Set(HeaderName, "headerco")

		id, strategy, ok := resolver.Resolve(req)
		if !ok || id != "headerco" || strategy != "header" {
			t.Errorf("got (%q, %q, %v), want (headerco, header, true)", id, strategy, ok)
		}
	})

	t.Run("claim wins when header absent", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/tenants", nil)

		id, strategy, ok := resolver.Resolve(req)
		if !ok || id != "claimco" || strategy != "claim" {
			t.Errorf("got (%q, %q, %v), want (claimco, claim, true)", id, strategy, ok)
		}
	})

	t.Run("header beats email mapping on login", func(t *testing.T) {
		// alice's email maps to acme, but the explicit header wins.
		req := httptest.NewRequest("POST", "/login", bytes.NewReader([]byte(`{"userName":"alice@acme.test"}`)))
		req.Header.Set(HeaderName, "globex")

		id, strategy, ok := resolver.Resolve(req)
		if !ok || id != "globex" || strategy != "header" {
			t.Errorf("got (%q, %q, %v), want (globex, header, true)", id, strategy, ok)
		}
	})

	t.Run("email mapping serves header-less login", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/login", bytes.NewReader([]byte(`{"userName":"alice@acme.test"}`)))

		id, strategy, ok := resolver.Resolve(req)
		if !ok || id != "acme" || strategy != "email-mapping" {
			t.Errorf("got (%q, %q, %v), want (acme, email-mapping, true)", id, strategy, ok)
		}
	})

	t.Run("nothing resolves", func(t *testing.T) {
		empty := NewResolver(
			NewHeaderStrategy(),
			NewClaimStrategy(func(r *http.Request) (policy.ClaimSet, bool) { return nil, false }),
		)
		req := httptest.NewRequest("GET", "/tenants", nil)

		if _, _, ok := empty.Resolve(req); ok {
			t.Error("expected no resolution")
		}
	})
}
