package tenant

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"

	"github.com/stratumhq/stratum/pkg/domain"
	"github.com/stratumhq/stratum/pkg/repository"
)

// Scope is an exclusively-owned execution context bound to one tenant's data
// access. It is created per logical operation and must be closed by the
// operation that opened it; it is never shared across goroutines.
type Scope struct {
	tenantID  string
	db        *sql.DB
	dedicated bool

	closeOnce sync.Once
	release   func()
}

// TenantID returns the tenant this scope is bound to.
func (s *Scope) TenantID() string { return s.tenantID }

// Dedicated reports whether the scope is bound to the tenant's own storage
// target rather than the shared one.
func (s *Scope) Dedicated() bool { return s.dedicated }

// DB returns the data-access handle for this scope. Repositories bound to it
// operate inside the tenant's partition.
func (s *Scope) DB() repository.Querier { return s.db }

// Close releases the scope's connection lease. It is idempotent and must run
// on every exit path, including panics and cancellation.
func (s *Scope) Close() error {
	s.closeOnce.Do(s.release)
	return nil
}

// ScopeManager produces execution scopes. It owns the shared pool and a
// lazily-opened pool per dedicated tenant. It performs no authorization;
// callers must have confirmed access before opening a scope.
type ScopeManager struct {
	shared *sql.DB
	dir    Directory
	logger *slog.Logger

	// openPool is repository.Open in production; injectable for tests.
	openPool func(dsn string) (*sql.DB, error)

	mu     sync.Mutex
	pools  map[string]*sql.DB
	leases map[string]int
}

// NewScopeManager creates a scope manager over the shared pool.
func NewScopeManager(shared *sql.DB, dir Directory, logger *slog.Logger) *ScopeManager {
	return &ScopeManager{
		shared:   shared,
		dir:      dir,
		logger:   logger,
		openPool: repository.Open,
		pools:    make(map[string]*sql.DB),
		leases:   make(map[string]int),
	}
}

// OpenScope opens a scope for the tenant. Fails with domain.ErrTenantNotFound
// or domain.ErrTenantInactive; it never falls back to another tenant's
// storage.
func (m *ScopeManager) OpenScope(ctx context.Context, tenantID string) (*Scope, error) {
	if tenantID == "" {
		return nil, domain.ErrTenantNotResolved
	}

	t, err := m.dir.TenantByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, domain.ErrTenantInactive
	}

	db := m.shared
	dedicated := false
	if t.Dedicated() {
		db, err = m.pool(t)
		if err != nil {
			return nil, err
		}
		dedicated = true
	}

	m.mu.Lock()
	m.leases[tenantID]++
	m.mu.Unlock()

	return &Scope{
		tenantID:  tenantID,
		db:        db,
		dedicated: dedicated,
		release: func() {
			m.mu.Lock()
			m.leases[tenantID]--
			m.mu.Unlock()
		},
	}, nil
}

// ActiveScopes returns the number of open scopes for a tenant.
func (m *ScopeManager) ActiveScopes(tenantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leases[tenantID]
}

// pool returns the tenant's dedicated pool, opening it on first use.
func (m *ScopeManager) pool(t *domain.Tenant) (*sql.DB, error) {
	m.mu.Lock()
	if db, ok := m.pools[t.ID]; ok {
		m.mu.Unlock()
		return db, nil
	}
	m.mu.Unlock()

	// Open outside the lock; connecting can be slow.
	db, err := m.openPool(*t.ConnectionInfo)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.pools[t.ID]; ok {
		db.Close()
		return existing, nil
	}
	m.pools[t.ID] = db
	m.logger.Info("opened dedicated tenant pool", "tenant", t.ID)
	return db, nil
}

// Close closes all dedicated tenant pools. The shared pool belongs to the
// caller and is left open.
func (m *ScopeManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for id, db := range m.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.pools, id)
	}
	return firstErr
}
