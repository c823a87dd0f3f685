package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/stratumhq/stratum/pkg/domain"
)

// TenantsRepository handles tenant data persistence. Tenants are never
// physically deleted; deactivation flips is_active.
type TenantsRepository struct {
	db Querier
}

// NewTenantsRepository creates a new tenants repository.
func NewTenantsRepository(db Querier) *TenantsRepository {
	return &TenantsRepository{db: db}
}

const tenantColumns = `id, display_name, owner_email, is_active, expires_at, connection_info, created_at, updated_at`

func scanTenant(row interface{ Scan(...any) error }) (*domain.Tenant, error) {
	var t domain.Tenant
	err := row.Scan(
		&t.ID,
		&t.DisplayName,
		&t.OwnerEmail,
		&t.IsActive,
		&t.ExpiresAt,
		&t.ConnectionInfo,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Create creates a new tenant.
func (r *TenantsRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	return r.CreateTx(ctx, r.db, tenant)
}

// CreateTx creates a new tenant within a transaction.
func (r *TenantsRepository) CreateTx(ctx context.Context, q Querier, tenant *domain.Tenant) error {
	query := `
		INSERT INTO tenants (` + tenantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := q.ExecContext(ctx, query,
		tenant.ID,
		tenant.DisplayName,
		tenant.OwnerEmail,
		tenant.IsActive,
		tenant.ExpiresAt,
		tenant.ConnectionInfo,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrTenantExists
	}
	return err
}

// GetByID retrieves a tenant by ID.
func (r *TenantsRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE id = $1
	`
	return scanTenant(r.db.QueryRowContext(ctx, query, id))
}

// GetByOwnerEmail retrieves a tenant by its owner's email.
func (r *TenantsRepository) GetByOwnerEmail(ctx context.Context, email string) (*domain.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE owner_email = $1
	`
	return scanTenant(r.db.QueryRowContext(ctx, query, email))
}

// List retrieves all tenants ordered by creation time.
func (r *TenantsRepository) List(ctx context.Context) ([]*domain.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}

	return tenants, rows.Err()
}

// SetActive activates or deactivates a tenant. The write is row-scoped so
// concurrent updates to other tenants are unaffected.
func (r *TenantsRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `
		UPDATE tenants
		SET is_active = $1, updated_at = NOW()
		WHERE id = $2
	`
	result, err := r.db.ExecContext(ctx, query, active, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrTenantNotFound
	}

	return nil
}

// Renew extends a tenant's subscription expiry.
func (r *TenantsRepository) Renew(ctx context.Context, id string, expiresAt time.Time) error {
	query := `
		UPDATE tenants
		SET expires_at = $1, updated_at = NOW()
		WHERE id = $2
	`
	result, err := r.db.ExecContext(ctx, query, expiresAt, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrTenantNotFound
	}

	return nil
}
