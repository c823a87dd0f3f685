package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/stratumhq/stratum/pkg/domain"
	"github.com/stratumhq/stratum/pkg/repository"
	"github.com/stratumhq/stratum/pkg/tenant"
)

// IdentityStore is the identity/claims provider the token service consumes:
// find a principal and list the roles (with their permission claims) granted
// to it. Implementations own credential storage; the token service only ever
// sees the stored hash.
type IdentityStore interface {
	FindByEmail(ctx context.Context, tenantID, email string) (*domain.Principal, error)
	FindByID(ctx context.Context, tenantID string, id uuid.UUID) (*domain.Principal, error)
	RolesFor(ctx context.Context, p *domain.Principal) ([]*domain.Role, error)
}

// ScopedIdentity resolves principals and roles inside the owning tenant's
// execution scope, so identity data follows the tenant's storage target
// (shared partition or dedicated database).
type ScopedIdentity struct {
	scopes *tenant.ScopeManager
}

// NewScopedIdentity creates an identity store over the scope manager.
func NewScopedIdentity(scopes *tenant.ScopeManager) *ScopedIdentity {
	return &ScopedIdentity{scopes: scopes}
}

func (s *ScopedIdentity) FindByEmail(ctx context.Context, tenantID, email string) (*domain.Principal, error) {
	scope, err := s.scopes.OpenScope(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	return repository.NewUsersRepository(scope.DB()).GetByEmail(ctx, tenantID, email)
}

func (s *ScopedIdentity) FindByID(ctx context.Context, tenantID string, id uuid.UUID) (*domain.Principal, error) {
	scope, err := s.scopes.OpenScope(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	return repository.NewUsersRepository(scope.DB()).GetByID(ctx, id)
}

// RolesFor resolves the principal's role names within its home tenant. Role
// names are tenant-scoped; the pseudo-tenant roles (SysAdmin, Support) fall
// back to the system tenant when the home tenant does not define the name.
func (s *ScopedIdentity) RolesFor(ctx context.Context, p *domain.Principal) ([]*domain.Role, error) {
	scope, err := s.scopes.OpenScope(ctx, p.TenantID)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	roles := repository.NewRolesRepository(scope.DB())

	var out []*domain.Role
	for _, name := range p.RoleNames {
		role, err := roles.GetByName(ctx, p.TenantID, name)
		if errors.Is(err, domain.ErrRoleNotFound) && p.TenantID != domain.SystemTenantID {
			role, err = s.systemRole(ctx, name)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}

func (s *ScopedIdentity) systemRole(ctx context.Context, name string) (*domain.Role, error) {
	scope, err := s.scopes.OpenScope(ctx, domain.SystemTenantID)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	return repository.NewRolesRepository(scope.DB()).GetByName(ctx, domain.SystemTenantID, name)
}
