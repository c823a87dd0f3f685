package auth

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/stratumhq/stratum/pkg/domain"
	"github.com/stratumhq/stratum/pkg/policy"
	"github.com/stratumhq/stratum/pkg/tenant"
)

const (
	refreshTokenLen = 32

	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenConfig holds token service configuration.
type TokenConfig struct {
	Secret          []byte
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

/// Claims are the contents of an issued access token: identity, home tenant,
// role names, and the deduplicated union of the roles' permission claims.
type Claims struct {
	jwt.RegisteredClaims
	Email       string   `json:"email,omitempty"`
	Tenant      string   `json:"tenant,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// ClaimSet converts token claims into the flat typed claim set the policy
// engine evaluates.
func (c *Claims) ClaimSet() policy.ClaimSet {
	cs := policy.ClaimSet{
		{Type: policy.ClaimSubject, Value: c.Subject},
		{Type: policy.ClaimEmail, Value: c.Email},
		{Type: policy.ClaimTenant, Value: c.Tenant},
	}
	for _, r := range c.Roles {
		cs = append(cs, policy.Claim{Type: policy.ClaimRole, Value: r})
	}
	for _, p := range c.Permissions {
		cs = append(cs, policy.Claim{Type: policy.ClaimPermission, Value: p})
	}
	return cs
}

// TokenPair is an issued access token plus its opaque refresh token.
type TokenPair struct {
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
}

// RefreshTokenStore persists opaque refresh tokens. Satisfied by
// repository.RefreshTokensRepository.
type RefreshTokenStore interface {
	Create(ctx context.Context, t *domain.RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	Revoke(ctx context.Context, id uuid.UUID) error
}

// TokenService authenticates credentials and issues, validates, and
// refreshes signed identity tokens.
type TokenService struct {
	config        TokenConfig
	identities    IdentityStore
	dir           tenant.Directory
	refreshTokens RefreshTokenStore
	now           func() time.Time
}

// NewTokenService creates a token service.
func NewTokenService(config TokenConfig, identities IdentityStore, dir tenant.Directory, refreshTokens RefreshTokenStore) *TokenService {
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	return &TokenService{
		config:        config,
		identities:    identities,
		dir:           dir,
		refreshTokens: refreshTokens,
		now:           time.Now,
	}
}

// Authenticate verifies credentials against the resolved tenant and issues a
// token pair. Unknown identity and bad password produce the same error so
// callers cannot enumerate users.
func (s *TokenService) Authenticate(ctx context.Context, tenantID, email, password string) (*TokenPair, error) {
	if tenantID == "" {
		return nil, domain.ErrTenantNotResolved
	}

	t, err := s.dir.TenantByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrTenantNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !t.IsActive {
		return nil, domain.ErrLoginTenantInactive
	}

	principal, err := s.identities.FindByEmail(ctx, tenantID, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !VerifyPassword(password, principal.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	if !principal.IsActive {
		return nil, domain.ErrUserInactive
	}
	if !t.IsSystem() && t.Expired(s.now()) {
		return nil, domain.ErrSubscriptionExpired
	}

	return s.issue(ctx, principal)
}

// Refresh validates the signature of an expired access token - explicitly
// skipping its lifetime check, since refresh exists precisely because the
// token has expired - redeems the refresh token, and reissues through the
// same claim-aggregation path as Authenticate. The refresh token rotates on
// every use.
func (s *TokenService) Refresh(ctx context.Context, expiredToken, refreshToken string) (*TokenPair, error) {
	claims, err := s.parseSignedToken(expiredToken, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	stored, err := s.refreshTokens.GetByTokenHash(ctx, HashToken(refreshToken))
	if err != nil {
		return nil, err
	}
	if !stored.IsValid(s.now()) {
		return nil, domain.ErrRefreshTokenExpired
	}

	principalID, err := uuid.Parse(claims.Subject)
	if err != nil || stored.PrincipalID != principalID {
		return nil, domain.ErrInvalidToken
	}

	principal, err := s.identities.FindByID(ctx, claims.Tenant, principalID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	if !principal.IsActive {
		return nil, domain.ErrUserInactive
	}

	if err := s.refreshTokens.Revoke(ctx, stored.ID); err != nil {
		return nil, err
	}

	return s.issue(ctx, principal)
}

// ValidateAccessToken validates an access token, signature and lifetime
// both, and returns its claims.
func (s *TokenService) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.parseSignedToken(tokenString)
}

func (s *TokenService) parseSignedToken(tokenString string, opts ...jwt.ParserOption) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return s.config.Secret, nil
	}, opts...)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, domain.ErrInvalidToken
	}

	return claims, nil
}

// issue aggregates claims for the principal and signs a token pair. This is
// the single issuance path; Authenticate and Refresh both end here.
func (s *TokenService) issue(ctx context.Context, principal *domain.Principal) (*TokenPair, error) {
	roles, err := s.identities.RolesFor(ctx, principal)
	if err != nil {
		return nil, err
	}

	roleNames := make([]string, 0, len(roles))
	seen := make(map[string]struct{})
	var permissions []string
	for _, role := range roles {
		roleNames = append(roleNames, role.Name)
		for _, claim := range role.Claims {
			if _, ok := seen[claim]; ok {
				continue
			}
			seen[claim] = struct{}{}
			permissions = append(permissions, claim)
		}
	}
	sort.Strings(permissions)

	now := s.now()
	accessExpiry := now.Add(s.config.AccessTokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExpiry),
			Issuer:    s.config.Issuer,
			ID:        uuid.New().String(),
		},
		Email:       principal.Email,
		Tenant:      principal.TenantID,
		Roles:       roleNames,
		Permissions: permissions,
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.Secret)
	if err != nil {
		return nil, err
	}

	refreshToken, err := GenerateToken(refreshTokenLen)
	if err != nil {
		return nil, err
	}
	refreshExpiry := now.Add(s.config.RefreshTokenTTL)
	err = s.refreshTokens.Create(ctx, &domain.RefreshToken{
		ID:          uuid.New(),
		PrincipalID: principal.ID,
		TokenHash:   HashToken(refreshToken),
		ExpiresAt:   refreshExpiry,
		CreatedAt:   now,
	})
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:           accessToken,
		AccessTokenExpiresAt:  accessExpiry,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: refreshExpiry,
	}, nil
}
