package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/stratumhq/stratum/pkg/domain"
)

// UsersRepository handles principal persistence. It runs against whatever
// Querier it is bound to, so the same code serves the shared pool and
// dedicated tenant pools.
type UsersRepository struct {
	db Querier
}

// NewUsersRepository creates a new users repository.
func NewUsersRepository(db Querier) *UsersRepository {
	return &UsersRepository{db: db}
}

const userColumns = `id, tenant_id, email, display_name, password_hash, is_active, created_at, updated_at, deleted_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.Principal, error) {
	var p domain.Principal
	err := row.Scan(
		&p.ID,
		&p.TenantID,
		&p.Email,
		&p.DisplayName,
		&p.PasswordHash,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Create creates a new principal.
func (r *UsersRepository) Create(ctx context.Context, p *domain.Principal) error {
	return r.CreateTx(ctx, r.db, p)
}

// CreateTx creates a new principal within a transaction.
func (r *UsersRepository) CreateTx(ctx context.Context, q Querier, p *domain.Principal) error {
	query := `
		INSERT INTO users (id, tenant_id, email, display_name, password_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := q.ExecContext(ctx, query,
		p.ID,
		p.TenantID,
		p.Email,
		p.DisplayName,
		p.PasswordHash,
		p.IsActive,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrUserExists
	}
	return err
}

// GetByID retrieves a principal by ID, with role names populated.
func (r *UsersRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Principal, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1 AND deleted_at IS NULL
	`
	p, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return r.withRoleNames(ctx, p)
}

// GetByEmail retrieves a principal by email within a tenant.
func (r *UsersRepository) GetByEmail(ctx context.Context, tenantID, email string) (*domain.Principal, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE tenant_id = $1 AND email = $2 AND deleted_at IS NULL
	`
	p, err := scanUser(r.db.QueryRowContext(ctx, query, tenantID, email))
	if err != nil {
		return nil, err
	}
	return r.withRoleNames(ctx, p)
}

// ListByTenant retrieves all principals of a tenant.
func (r *UsersRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Principal, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.Principal
	for rows.Next() {
		p, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, p)
	}

	return users, rows.Err()
}

// Update updates a principal's mutable profile fields.
func (r *UsersRepository) Update(ctx context.Context, p *domain.Principal) error {
	query := `
		UPDATE users
		SET display_name = $1, is_active = $2, updated_at = NOW()
		WHERE id = $3 AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, p.DisplayName, p.IsActive, p.ID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

// SoftDelete soft deletes a principal.
func (r *UsersRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE users
		SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

// AssignRole assigns a role to a principal. Assigning an already-held role
// is a no-op.
func (r *UsersRepository) AssignRole(ctx context.Context, userID, roleID uuid.UUID) error {
	return r.AssignRoleTx(ctx, r.db, userID, roleID)
}

// AssignRoleTx assigns a role within a transaction.
func (r *UsersRepository) AssignRoleTx(ctx context.Context, q Querier, userID, roleID uuid.UUID) error {
	query := `
		INSERT INTO user_roles (user_id, role_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, role_id) DO NOTHING
	`
	_, err := q.ExecContext(ctx, query, userID, roleID)
	return err
}

// UnassignRole removes a role from a principal.
func (r *UsersRepository) UnassignRole(ctx context.Context, userID, roleID uuid.UUID) error {
	query := `
		DELETE FROM user_roles
		WHERE user_id = $1 AND role_id = $2
	`
	_, err := r.db.ExecContext(ctx, query, userID, roleID)
	return err
}

// CountWithRole counts active principals of a tenant holding the named role.
// Used to refuse removing the last admin.
func (r *UsersRepository) CountWithRole(ctx context.Context, tenantID, roleName string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM users u
		INNER JOIN user_roles ur ON ur.user_id = u.id
		INNER JOIN roles ro ON ro.id = ur.role_id
		WHERE u.tenant_id = $1
			AND ro.name = $2
			AND u.is_active = TRUE
			AND u.deleted_at IS NULL
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, tenantID, roleName).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// withRoleNames populates RoleNames from the user_roles join.
func (r *UsersRepository) withRoleNames(ctx context.Context, p *domain.Principal) (*domain.Principal, error) {
	query := `
		SELECT ro.name
		FROM roles ro
		INNER JOIN user_roles ur ON ur.role_id = ro.id
		WHERE ur.user_id = $1
		ORDER BY ro.name ASC
	`

	rows, err := r.db.QueryContext(ctx, query, p.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		p.RoleNames = append(p.RoleNames, name)
	}

	return p, rows.Err()
}
