// Package rbac seeds the canonical roles and their permission sets.
package rbac

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stratumhq/stratum/pkg/domain"
	"github.com/stratumhq/stratum/pkg/permission"
)

// RoleStore is the role persistence the seeder drives. Satisfied by
// repository.RolesRepository.
type RoleStore interface {
	GetByName(ctx context.Context, tenantID, name string) (*domain.Role, error)
	Create(ctx context.Context, role *domain.Role) error
	AddClaim(ctx context.Context, roleID uuid.UUID, claim string) error
	RemoveClaim(ctx context.Context, roleID uuid.UUID, claim string) error
}

// Seeder upserts canonical roles idempotently: missing roles are created
// with their catalog permission set; existing roles are diffed claim by
// claim. Custom claims outside the catalog are never touched, and nothing is
// ever dropped and recreated wholesale, so seeding is safe to run repeatedly
// and concurrently with live traffic.
type Seeder struct {
	roles  RoleStore
	logger *slog.Logger
	now    func() time.Time
}

// NewSeeder creates a seeder.
func NewSeeder(roles RoleStore, logger *slog.Logger) *Seeder {
	return &Seeder{roles: roles, logger: logger, now: time.Now}
}

// SeedSystem seeds the pseudo-tenant roles (SysAdmin, Support) into the
// system tenant. Run at startup.
func (s *Seeder) SeedSystem(ctx context.Context) error {
	return s.seed(ctx, domain.SystemTenantID, permission.SystemRoles())
}

// SeedTenant seeds the per-tenant canonical roles (Admin, Member). Run
// during provisioning and safe to re-run at any time.
func (s *Seeder) SeedTenant(ctx context.Context, tenantID string) error {
	return s.seed(ctx, tenantID, permission.TenantRoles())
}

func (s *Seeder) seed(ctx context.Context, tenantID string, names []string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			return s.seedRole(ctx, tenantID, name)
		})
	}
	return g.Wait()
}

func (s *Seeder) seedRole(ctx context.Context, tenantID, name string) error {
	canonical := permission.ClaimsForRole(name)

	role, err := s.roles.GetByName(ctx, tenantID, name)
	if errors.Is(err, domain.ErrRoleNotFound) {
		now := s.now()
		role = &domain.Role{
			ID:        uuid.New(),
			TenantID:  tenantID,
			Name:      name,
			Claims:    canonical,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if createErr := s.roles.Create(ctx, role); createErr == nil {
			s.logger.Info("seeded role", "tenant", tenantID, "role", name, "claims", len(canonical))
			return nil
		}
		// A concurrent seeder may have created it first; fall through to
		// the diff path against whatever won.
		role, err = s.roles.GetByName(ctx, tenantID, name)
	}
	if err != nil {
		return err
	}

	canonicalSet := make(map[string]struct{}, len(canonical))
	for _, claim := range canonical {
		canonicalSet[claim] = struct{}{}
	}

	for _, claim := range canonical {
		if role.HasClaim(claim) {
			continue
		}
		if err := s.roles.AddClaim(ctx, role.ID, claim); err != nil {
			return err
		}
	}

	for _, claim := range role.Claims {
		if _, ok := canonicalSet[claim]; ok {
			continue
		}
		// Only catalog-managed claims are reclaimed; custom claims added
		// out-of-band stay.
		if !permission.InCatalog(claim) {
			continue
		}
		if err := s.roles.RemoveClaim(ctx, role.ID, claim); err != nil {
			return err
		}
	}

	return nil
}
