package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/stratumhq/stratum/pkg/domain"
)

// RolesRepository handles role and role-claim persistence.
type RolesRepository struct {
	db Querier
}

// NewRolesRepository creates a new roles repository.
func NewRolesRepository(db Querier) *RolesRepository {
	return &RolesRepository{db: db}
}

// Create creates a new role with its initial claims.
func (r *RolesRepository) Create(ctx context.Context, role *domain.Role) error {
	return r.CreateTx(ctx, r.db, role)
}

// CreateTx creates a new role within a transaction.
func (r *RolesRepository) CreateTx(ctx context.Context, q Querier, role *domain.Role) error {
	query := `
		INSERT INTO roles (id, tenant_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := q.ExecContext(ctx, query,
		role.ID,
		role.TenantID,
		role.Name,
		role.CreatedAt,
		role.UpdatedAt,
	)
	if err != nil {
		return err
	}

	for _, claim := range role.Claims {
		if err := r.addClaim(ctx, q, role.ID, claim); err != nil {
			return err
		}
	}
	return nil
}

// GetByName retrieves a role by tenant and name, with claims populated.
func (r *RolesRepository) GetByName(ctx context.Context, tenantID, name string) (*domain.Role, error) {
	query := `
		SELECT id, tenant_id, name, created_at, updated_at
		FROM roles
		WHERE tenant_id = $1 AND name = $2
	`

	var role domain.Role
	err := r.db.QueryRowContext(ctx, query, tenantID, name).Scan(
		&role.ID,
		&role.TenantID,
		&role.Name,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, err
	}

	claims, err := r.ClaimsFor(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Claims = claims
	return &role, nil
}

// ListByTenant retrieves all roles of a tenant, with claims populated.
func (r *RolesRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Role, error) {
	query := `
		SELECT id, tenant_id, name, created_at, updated_at
		FROM roles
		WHERE tenant_id = $1
		ORDER BY name ASC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*domain.Role
	for rows.Next() {
		var role domain.Role
		err := rows.Scan(&role.ID, &role.TenantID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
		if err != nil {
			return nil, err
		}
		roles = append(roles, &role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, role := range roles {
		claims, err := r.ClaimsFor(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		role.Claims = claims
	}

	return roles, nil
}

// ClaimsFor retrieves the permission claims granted to a role.
func (r *RolesRepository) ClaimsFor(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	query := `
		SELECT claim_value
		FROM role_claims
		WHERE role_id = $1
		ORDER BY claim_value ASC
	`

	rows, err := r.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []string
	for rows.Next() {
		var claim string
		if err := rows.Scan(&claim); err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}

	return claims, rows.Err()
}

// AddClaim grants a permission claim to a role. Re-adding an existing claim
// is a no-op, which keeps seeding idempotent under concurrency.
func (r *RolesRepository) AddClaim(ctx context.Context, roleID uuid.UUID, claim string) error {
	return r.addClaim(ctx, r.db, roleID, claim)
}

func (r *RolesRepository) addClaim(ctx context.Context, q Querier, roleID uuid.UUID, claim string) error {
	query := `
		INSERT INTO role_claims (role_id, claim_value, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (role_id, claim_value) DO NOTHING
	`
	_, err := q.ExecContext(ctx, query, roleID, claim)
	return err
}

// RemoveClaim revokes a permission claim from a role.
func (r *RolesRepository) RemoveClaim(ctx context.Context, roleID uuid.UUID, claim string) error {
	query := `
		DELETE FROM role_claims
		WHERE role_id = $1 AND claim_value = $2
	`
	_, err := r.db.ExecContext(ctx, query, roleID, claim)
	return err
}

// AssignedCount counts principals currently holding the role. Deleting a
// role with a non-zero count is a conflict.
func (r *RolesRepository) AssignedCount(ctx context.Context, roleID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM user_roles
		WHERE role_id = $1
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, roleID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Delete removes a role and its claims. Fails with a conflict while the
// role is still assigned.
func (r *RolesRepository) Delete(ctx context.Context, roleID uuid.UUID) error {
	assigned, err := r.AssignedCount(ctx, roleID)
	if err != nil {
		return err
	}
	if assigned > 0 {
		return domain.ErrRoleAssigned
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM role_claims WHERE role_id = $1`, roleID); err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrRoleNotFound
	}
	return nil
}
