package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditRecord captures one cross-tenant execution outcome. Records are
// append-only; nothing in the system mutates them after insert.
type AuditRecord struct {
	ID            uuid.UUID
	ActorID       uuid.UUID
	FromTenant    string
	ToTenant      string
	OperationName string
	Succeeded     bool
	CreatedAt     time.Time
}
