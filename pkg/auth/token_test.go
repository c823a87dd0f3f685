package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/stratumhq/stratum/pkg/domain"
)

type fakeDirectory struct {
	tenants map[string]*domain.Tenant
}

func (d *fakeDirectory) TenantByID(_ context.Context, id string) (*domain.Tenant, error) {
	t, ok := d.tenants[id]
	if !ok {
		return nil, domain.ErrTenantNotFound
	}
	return t, nil
}

func (d *fakeDirectory) TenantIDByEmail(_ context.Context, _ string) (string, error) {
	return "", domain.ErrTenantNotFound
}

type fakeIdentities struct {
	principals map[string]*domain.Principal // keyed by tenantID + "/" + email
	roles      map[string][]*domain.Role    // keyed by role name set per principal email
}

func (f *fakeIdentities) FindByEmail(_ context.Context, tenantID, email string) (*domain.Principal, error) {
	p, ok := f.principals[tenantID+"/"+email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return p, nil
}

func (f *fakeIdentities) FindByID(_ context.Context, tenantID string, id uuid.UUID) (*domain.Principal, error) {
	for key, p := range f.principals {
		if p.ID == id && strings.HasPrefix(key, tenantID+"/") {
			return p, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (f *fakeIdentities) RolesFor(_ context.Context, p *domain.Principal) ([]*domain.Role, error) {
	return f.roles[p.Email], nil
}

type fakeRefreshTokens struct {
	byHash  map[string]*domain.RefreshToken
	revoked map[uuid.UUID]bool
}

func newFakeRefreshTokens() *fakeRefreshTokens {
	return &fakeRefreshTokens{
		byHash:  make(map[string]*domain.RefreshToken),
		revoked: make(map[uuid.UUID]bool),
	}
}

func (f *fakeRefreshTokens) Create(_ context.Context, t *domain.RefreshToken) error {
	f.byHash[t.TokenHash] = t
	return nil
}

func (f *fakeRefreshTokens) GetByTokenHash(_ context.Context, hash string) (*domain.RefreshToken, error) {
	t, ok := f.byHash[hash]
	if !ok {
		return nil, domain.ErrInvalidToken
	}
	if f.revoked[t.ID] {
		return nil, domain.ErrInvalidToken
	}
	return t, nil
}

func (f *fakeRefreshTokens) Revoke(_ context.Context, id uuid.UUID) error {
	f.revoked[id] = true
	return nil
}

const testPassword = "correct horse battery staple"

func newTestTokenService(t *testing.T) (*TokenService, *fakeIdentities, *fakeRefreshTokens) {
	t.Helper()

	hash, err := HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	past := time.Now().Add(-time.Hour)
	dir := &fakeDirectory{tenants: map[string]*domain.Tenant{
		"system":  {ID: "system", IsActive: true},
		"acme":    {ID: "acme", IsActive: true},
		"dormant": {ID: "dormant", IsActive: false},
		"lapsed":  {ID: "lapsed", IsActive: true, ExpiresAt: &past},
	}}

	alice := &domain.Principal{
		ID:           uuid.New(),
		TenantID:     "acme",
		Email:        "alice@acme.test",
		PasswordHash: hash,
		IsActive:     true,
	}
	bob := &domain.Principal{
		ID:           uuid.New(),
		TenantID:     "acme",
		Email:        "bob@acme.test",
		PasswordHash: hash,
		IsActive:     false,
	}
	carol := &domain.Principal{
		ID:           uuid.New(),
		TenantID:     "lapsed",
		Email:        "carol@lapsed.test",
		PasswordHash: hash,
		IsActive:     true,
	}
	dora := &domain.Principal{
		ID:           uuid.New(),
		TenantID:     "dormant",
		Email:        "dora@dormant.test",
		PasswordHash: hash,
		IsActive:     true,
	}

	identities := &fakeIdentities{
		principals: map[string]*domain.Principal{
			"acme/alice@acme.test":     alice,
			"acme/bob@acme.test":       bob,
			"lapsed/carol@lapsed.test": carol,
			"dormant/dora@dormant.test": dora,
		},
		roles: map[string][]*domain.Role{
			"alice@acme.test": {
				{Name: "Admin", Claims: []string{"Permission.Users.View", "Permission.Users.Create"}},
				{Name: "Member", Claims: []string{"Permission.Users.View", "Permission.Dashboard.View"}},
			},
		},
	}

	refresh := newFakeRefreshTokens()
	svc := NewTokenService(TokenConfig{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer: "test",
	}, identities, dir, refresh)

	return svc, identities, refresh
}

func TestAuthenticateRejectionOrder(t *testing.T) {
	svc, _, _ := newTestTokenService(t)

	tests := []struct {
		name     string
		tenantID string
		email    string
		password string
		wantErr  error
	}{
		{"unresolved tenant", "", "alice@acme.test", testPassword, domain.ErrTenantNotResolved},
		// unknown tenant is indistinguishable from bad credentials
		{"unknown tenant", "ghost", "alice@acme.test", testPassword, domain.ErrInvalidCredentials},
		// tenant inactive wins over everything about the user
		{"inactive tenant", "dormant", "dora@dormant.test", testPassword, domain.ErrLoginTenantInactive},
		{"unknown user", "acme", "nobody@acme.test", testPassword, domain.ErrInvalidCredentials},
		{"wrong password", "acme", "alice@acme.test", "wrong", domain.ErrInvalidCredentials},
		// credential check precedes the active check so an attacker cannot
		// probe account state with a bad password
		{"inactive user wrong password", "acme", "bob@acme.test", "wrong", domain.ErrInvalidCredentials},
		{"inactive user", "acme", "bob@acme.test", testPassword, domain.ErrUserInactive},
		{"expired subscription", "lapsed", "carol@lapsed.test", testPassword, domain.ErrSubscriptionExpired},
		{"success", "acme", "alice@acme.test", testPassword, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := svc.Authenticate(context.Background(), tt.tenantID, tt.email, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && (pair == nil || pair.AccessToken == "") {
				t.Error("expected a token pair on success")
			}
		})
	}
}

func TestIssuedClaims(t *testing.T) {
	svc, _, _ := newTestTokenService(t)

	pair, err := svc.Authenticate(context.Background(), "acme", "alice@acme.test", testPassword)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}

	if claims.Tenant != "acme" {
		t.Errorf("tenant claim = %q, want acme", claims.Tenant)
	}
	if claims.Email != "alice@acme.test" {
		t.Errorf("email claim = %q", claims.Email)
	}
	if len(claims.Roles) != 2 {
		t.Errorf("roles = %v, want Admin and Member", claims.Roles)
	}

	// Overlapping role claims collapse to a deduplicated sorted set.
	want := []string{"Permission.Dashboard.View", "Permission.Users.Create", "Permission.Users.View"}
	if len(claims.Permissions) != len(want) {
		t.Fatalf("permissions = %v, want %v", claims.Permissions, want)
	}
	for i, p := range want {
		if claims.Permissions[i] != p {
			t.Errorf("permissions[%d] = %q, want %q", i, claims.Permissions[i], p)
		}
	}
}

func TestValidateAccessToken(t *testing.T) {
	svc, _, _ := newTestTokenService(t)

	pair, err := svc.Authenticate(context.Background(), "acme", "alice@acme.test", testPassword)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	t.Run("valid token", func(t *testing.T) {
		if _, err := svc.ValidateAccessToken(pair.AccessToken); err != nil {
			t.Errorf("ValidateAccessToken: %v", err)
		}
	})

	t.Run("tampered token", func(t *testing.T) {
		tampered := pair.AccessToken[:len(pair.AccessToken)-4] + "AAAA"
		if _, err := svc.ValidateAccessToken(tampered); !errors.Is(err, domain.ErrInvalidToken) {
			t.Errorf("err = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("wrong signing algorithm", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"sub": uuid.New().String(),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("signing: %v", err)
		}
		if _, err := svc.ValidateAccessToken(unsigned); !errors.Is(err, domain.ErrInvalidToken) {
			t.Errorf("err = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		old, err := svc.Authenticate(context.Background(), "acme", "alice@acme.test", testPassword)
		svc.now = time.Now
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if _, err := svc.ValidateAccessToken(old.AccessToken); !errors.Is(err, domain.ErrInvalidToken) {
			t.Errorf("err = %v, want ErrInvalidToken", err)
		}
	})
}

func TestRefresh(t *testing.T) {
	t.Run("accepts expired access token", func(t *testing.T) {
		svc, _, _ := newTestTokenService(t)

		svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		old, err := svc.Authenticate(context.Background(), "acme", "alice@acme.test", testPassword)
		svc.now = time.Now
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}

		// The access token is expired but the refresh token is still live.
		if _, err := svc.ValidateAccessToken(old.AccessToken); err == nil {
			t.Fatal("precondition: access token should be expired")
		}
		pair, err := svc.Refresh(context.Background(), old.AccessToken, old.RefreshToken)
		if err != nil {
			t.Fatalf("Refresh: %v", err)
		}
		if _, err := svc.ValidateAccessToken(pair.AccessToken); err != nil {
			t.Errorf("new access token invalid: %v", err)
		}
	})

	t.Run("rejects tampered access token even when expired", func(t *testing.T) {
		svc, _, _ := newTestTokenService(t)

		pair, err := svc.Authenticate(context.Background(), "acme", "alice@acme.test", testPassword)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}

		tampered := pair.AccessToken[:len(pair.AccessToken)-4] + "AAAA"
		if _, err := svc.Refresh(context.Background(), tampered, pair.RefreshToken); !errors.Is(err, domain.ErrInvalidToken) {
			t.Errorf("err = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("rotates the refresh token", func(t *testing.T) {
		svc, _, _ := newTestTokenService(t)

		first, err := svc.Authenticate(context.Background(), "acme", "alice@acme.test", testPassword)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}

		second, err := svc.Refresh(context.Background(), first.AccessToken, first.RefreshToken)
		if err != nil {
			t.Fatalf("Refresh: %v", err)
		}
		if second.RefreshToken == first.RefreshToken {
			t.Error("refresh token must rotate on use")
		}

		// The redeemed token is dead.
		if _, err := svc.Refresh(context.Background(), first.AccessToken, first.RefreshToken); err == nil {
			t.Error("reusing a redeemed refresh token must fail")
		}
	})

	t.Run("rejects expired refresh token", func(t *testing.T) {
		svc, _, refresh := newTestTokenService(t)

		pair, err := svc.Authenticate(context.Background(), "acme", "alice@acme.test", testPassword)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		for _, stored := range refresh.byHash {
			stored.ExpiresAt = time.Now().Add(-time.Minute)
		}

		if _, err := svc.Refresh(context.Background(), pair.AccessToken, pair.RefreshToken); !errors.Is(err, domain.ErrRefreshTokenExpired) {
			t.Errorf("err = %v, want ErrRefreshTokenExpired", err)
		}
	})

	t.Run("rejects mismatched refresh token owner", func(t *testing.T) {
		svc, identities, _ := newTestTokenService(t)

		alicePair, err := svc.Authenticate(context.Background(), "acme", "alice@acme.test", testPassword)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}

		// Activate bob and log him in to get a second refresh token.
		identities.principals["acme/bob@acme.test"].IsActive = true
		bobPair, err := svc.Authenticate(context.Background(), "acme", "bob@acme.test", testPassword)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}

		if _, err := svc.Refresh(context.Background(), alicePair.AccessToken, bobPair.RefreshToken); !errors.Is(err, domain.ErrInvalidToken) {
			t.Errorf("err = %v, want ErrInvalidToken", err)
		}
	})
}
