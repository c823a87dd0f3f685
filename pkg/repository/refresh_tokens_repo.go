package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/stratumhq/stratum/pkg/domain"
)

// RefreshTokensRepository handles refresh token persistence. Tokens are
// opaque random strings stored hashed; only the hash ever reaches the
// database.
type RefreshTokensRepository struct {
	db Querier
}

// NewRefreshTokensRepository creates a new refresh tokens repository.
func NewRefreshTokensRepository(db Querier) *RefreshTokensRepository {
	return &RefreshTokensRepository{db: db}
}

// Create creates a new refresh token record.
func (r *RefreshTokensRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, principal_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID,
		t.PrincipalID,
		t.TokenHash,
		t.ExpiresAt,
		t.CreatedAt,
	)
	return err
}

// GetByTokenHash retrieves a refresh token by its hash.
func (r *RefreshTokensRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	query := `
		SELECT id, principal_id, token_hash, expires_at, created_at, revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`

	var t domain.RefreshToken
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&t.ID,
		&t.PrincipalID,
		&t.TokenHash,
		&t.ExpiresAt,
		&t.CreatedAt,
		&t.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}

	return &t, nil
}

// Revoke marks a refresh token as revoked.
func (r *RefreshTokensRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE id = $1 AND revoked_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// RevokeAllForPrincipal revokes every live refresh token of a principal.
func (r *RefreshTokensRepository) RevokeAllForPrincipal(ctx context.Context, principalID uuid.UUID) error {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE principal_id = $1 AND revoked_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, principalID)
	return err
}
