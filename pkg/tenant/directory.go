// Package tenant implements the tenant resolution, scoping, and cross-tenant
// execution core: which tenant an inbound request belongs to, how an
// operation binds to that tenant's storage, and how privileged operations
// run against a tenant the caller does not own.
package tenant

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	"github.com/stratumhq/stratum/pkg/domain"
	"github.com/stratumhq/stratum/pkg/repository"
)

// Directory looks up tenant records and the email -> tenant index.
type Directory interface {
	// TenantByID returns the tenant record, or domain.ErrTenantNotFound.
	TenantByID(ctx context.Context, id string) (*domain.Tenant, error)
	// TenantIDByEmail returns the tenant mapped to a login email, or
	// domain.ErrTenantNotFound when no active mapping exists.
	TenantIDByEmail(ctx context.Context, email string) (string, error)
}

// StoreDirectory is the Postgres-backed directory.
type StoreDirectory struct {
	tenants  *repository.TenantsRepository
	mappings *repository.EmailMappingsRepository
}

// NewStoreDirectory creates a directory over the tenant repositories.
func NewStoreDirectory(tenants *repository.TenantsRepository, mappings *repository.EmailMappingsRepository) *StoreDirectory {
	return &StoreDirectory{tenants: tenants, mappings: mappings}
}

func (d *StoreDirectory) TenantByID(ctx context.Context, id string) (*domain.Tenant, error) {
	return d.tenants.GetByID(ctx, id)
}

func (d *StoreDirectory) TenantIDByEmail(ctx context.Context, email string) (string, error) {
	m, err := d.mappings.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	return m.TenantID, nil
}

// CachedDirectory is a read-through cache over another Directory. The
// directory is read on every request, so lookups are cached with a short TTL
// and misses are coalesced; tenant mutations call Invalidate.
type CachedDirectory struct {
	inner Directory
	cache *ristretto.Cache
	group singleflight.Group
	ttl   time.Duration
}

// NewCachedDirectory wraps a directory with a ristretto cache.
func NewCachedDirectory(inner Directory, ttl time.Duration) (*CachedDirectory, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 22,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedDirectory{inner: inner, cache: cache, ttl: ttl}, nil
}

func (d *CachedDirectory) TenantByID(ctx context.Context, id string) (*domain.Tenant, error) {
	key := "tenant:" + id
	if v, ok := d.cache.Get(key); ok {
		return v.(*domain.Tenant), nil
	}

	v, err, _ := d.group.Do(key, func() (any, error) {
		t, err := d.inner.TenantByID(ctx, id)
		if err != nil {
			return nil, err
		}
		d.cache.SetWithTTL(key, t, 1, d.ttl)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Tenant), nil
}

func (d *CachedDirectory) TenantIDByEmail(ctx context.Context, email string) (string, error) {
	key := "email:" + email
	if v, ok := d.cache.Get(key); ok {
		return v.(string), nil
	}

	v, err, _ := d.group.Do(key, func() (any, error) {
		id, err := d.inner.TenantIDByEmail(ctx, email)
		if err != nil {
			return "", err
		}
		d.cache.SetWithTTL(key, id, 1, d.ttl)
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops a tenant's cached record after a mutation
// (activate/deactivate/renew).
func (d *CachedDirectory) Invalidate(id string) {
	d.cache.Del("tenant:" + id)
}

// InvalidateEmail drops a cached email mapping.
func (d *CachedDirectory) InvalidateEmail(email string) {
	d.cache.Del("email:" + email)
}
