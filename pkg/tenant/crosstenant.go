package tenant

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stratumhq/stratum/pkg/domain"
	"github.com/stratumhq/stratum/pkg/permission"
	"github.com/stratumhq/stratum/pkg/policy"
)

// Caller identifies the principal invoking a cross-tenant operation: who they
// are, their home tenant, and the claim set of their validated token.
type Caller struct {
	ID       uuid.UUID
	TenantID string
	Claims   policy.ClaimSet
}

// Operation is a unit of work executed inside a freshly opened scope for the
// target tenant. The context carries the same scope as its ambient scope.
type Operation func(ctx context.Context, scope *Scope) (any, error)

// AuditSink records cross-tenant execution outcomes.
type AuditSink interface {
	Record(ctx context.Context, rec *domain.AuditRecord) error
}

// Executor runs operations against tenants the caller does not own.
type Executor struct {
	dir    Directory
	scopes *ScopeManager
	audit  AuditSink
	logger *slog.Logger
	now    func() time.Time
}

// NewExecutor creates a cross-tenant execution engine.
func NewExecutor(dir Directory, scopes *ScopeManager, audit AuditSink, logger *slog.Logger) *Executor {
	return &Executor{
		dir:    dir,
		scopes: scopes,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// ExecuteAs runs op against the target tenant on the caller's behalf.
//
// The caller is authorized first: a denial opens no scope and touches no
// target data. The target must exist, be active, and be unexpired. The
// operation runs inside a scope nested under the caller's ambient one via a
// child context, so the ambient scope is restored the moment ExecuteAs
// returns. Exactly one audit record is written per invocation outcome, and
// an audit write failure never masks the operation's own result.
func (e *Executor) ExecuteAs(ctx context.Context, caller Caller, targetTenantID, operationName string, op Operation) (any, error) {
	if !e.authorized(caller, targetTenantID) {
		e.writeAudit(ctx, caller, targetTenantID, operationName, false)
		return nil, domain.ErrForbidden
	}

	target, err := e.dir.TenantByID(ctx, targetTenantID)
	if err != nil {
		return nil, err
	}
	if !target.IsActive {
		return nil, domain.ErrTenantInactive
	}
	if target.Expired(e.now()) {
		return nil, domain.ErrTenantExpired
	}

	scope, err := e.scopes.OpenScope(ctx, targetTenantID)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	result, opErr := op(WithScope(ctx, scope), scope)

	e.writeAudit(ctx, caller, targetTenantID, operationName, opErr == nil)

	return result, opErr
}

// authorized decides whether the caller may act on the target tenant. Any
// System- or CrossTenant-typed permission claim grants access to any tenant;
// otherwise the caller is confined to their home tenant.
func (e *Executor) authorized(caller Caller, targetTenantID string) bool {
	if targetTenantID == caller.TenantID {
		return true
	}
	for _, claim := range caller.Claims.Values(policy.ClaimPermission) {
		if p, ok := permission.Lookup(claim); ok && p.AllowsAnyTenant() {
			return true
		}
	}
	return false
}

func (e *Executor) writeAudit(ctx context.Context, caller Caller, targetTenantID, operationName string, succeeded bool) {
	rec := &domain.AuditRecord{
		ID:            uuid.New(),
		ActorID:       caller.ID,
		FromTenant:    caller.TenantID,
		ToTenant:      targetTenantID,
		OperationName: operationName,
		Succeeded:     succeeded,
		CreatedAt:     e.now(),
	}

	// The record must land even when the operation was cancelled.
	if err := e.audit.Record(context.WithoutCancel(ctx), rec); err != nil {
		e.logger.Warn("cross-tenant audit write failed",
			"actor", caller.ID,
			"from", caller.TenantID,
			"to", targetTenantID,
			"operation", operationName,
			"error", err,
		)
	}
}
