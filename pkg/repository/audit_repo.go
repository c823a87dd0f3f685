package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/stratumhq/stratum/pkg/domain"
)

// AuditRepository handles the append-only cross-tenant audit log. There is
// deliberately no update or delete path.
type AuditRepository struct {
	db Querier
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db Querier) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record appends one audit record.
func (r *AuditRepository) Record(ctx context.Context, rec *domain.AuditRecord) error {
	query := `
		INSERT INTO cross_tenant_audit (id, actor_id, from_tenant, to_tenant, operation_name, succeeded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.ActorID,
		rec.FromTenant,
		rec.ToTenant,
		rec.OperationName,
		rec.Succeeded,
		rec.CreatedAt,
	)
	return err
}

// ListByActor retrieves audit records for an actor, newest first.
func (r *AuditRepository) ListByActor(ctx context.Context, actorID uuid.UUID, limit int) ([]*domain.AuditRecord, error) {
	query := `
		SELECT id, actor_id, from_tenant, to_tenant, operation_name, succeeded, created_at
		FROM cross_tenant_audit
		WHERE actor_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, actorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		err := rows.Scan(
			&rec.ID,
			&rec.ActorID,
			&rec.FromTenant,
			&rec.ToTenant,
			&rec.OperationName,
			&rec.Succeeded,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}
