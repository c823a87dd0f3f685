package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/stratumhq/stratum/pkg/domain"
)

// EmailMappingsRepository handles the email -> tenant index used for
// login-time tenant resolution. The primary key on email enforces at most
// one mapping per address.
type EmailMappingsRepository struct {
	db Querier
}

// NewEmailMappingsRepository creates a new email mappings repository.
func NewEmailMappingsRepository(db Querier) *EmailMappingsRepository {
	return &EmailMappingsRepository{db: db}
}

// Create creates a new mapping.
func (r *EmailMappingsRepository) Create(ctx context.Context, m *domain.EmailTenantMapping) error {
	return r.CreateTx(ctx, r.db, m)
}

// CreateTx creates a new mapping within a transaction, typically alongside
// the user's first record in the tenant.
func (r *EmailMappingsRepository) CreateTx(ctx context.Context, q Querier, m *domain.EmailTenantMapping) error {
	query := `
		INSERT INTO email_tenant_mappings (email, tenant_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := q.ExecContext(ctx, query,
		m.Email,
		m.TenantID,
		m.IsActive,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrEmailMapped
	}
	return err
}

// GetByEmail retrieves the active mapping for an email address.
func (r *EmailMappingsRepository) GetByEmail(ctx context.Context, email string) (*domain.EmailTenantMapping, error) {
	query := `
		SELECT email, tenant_id, is_active, created_at, updated_at
		FROM email_tenant_mappings
		WHERE email = $1 AND is_active = TRUE
	`

	var m domain.EmailTenantMapping
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&m.Email,
		&m.TenantID,
		&m.IsActive,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, err
	}

	return &m, nil
}

// Deactivate marks a mapping inactive, freeing the email for a new mapping.
func (r *EmailMappingsRepository) Deactivate(ctx context.Context, email string) error {
	query := `
		UPDATE email_tenant_mappings
		SET is_active = FALSE, updated_at = NOW()
		WHERE email = $1 AND is_active = TRUE
	`
	result, err := r.db.ExecContext(ctx, query, email)
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
