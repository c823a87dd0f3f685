package domain

import (
	"time"

	"github.com/google/uuid"
)

// Principal represents an account. Every principal belongs to exactly one
// home tenant; role names are resolved within that tenant.
type Principal struct {
	ID           uuid.UUID
	TenantID     string
	Email        string
	DisplayName  string
	PasswordHash string
	IsActive     bool
	RoleNames    []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// HasRole reports whether the principal carries the named role.
func (p *Principal) HasRole(name string) bool {
	for _, r := range p.RoleNames {
		if r == name {
			return true
		}
	}
	return false
}

// Role is a tenant-scoped named set of permission claims.
type Role struct {
	ID        uuid.UUID
	TenantID  string
	Name      string
	Claims    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasClaim reports whether the role grants the given permission claim.
func (r *Role) HasClaim(claim string) bool {
	for _, c := range r.Claims {
		if c == claim {
			return true
		}
	}
	return false
}

// RefreshToken is the persisted half of a token pair: an opaque random
// string handed to the client, stored hashed with its own expiry.
type RefreshToken struct {
	ID          uuid.UUID
	PrincipalID uuid.UUID
	TokenHash   string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	RevokedAt   *time.Time
}

// IsValid reports whether the refresh token can still be redeemed.
func (t *RefreshToken) IsValid(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
