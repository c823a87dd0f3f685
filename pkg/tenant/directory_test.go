package tenant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stratumhq/stratum/pkg/domain"
)

type countingDirectory struct {
	fakeDirectory
	tenantLookups int
	emailLookups  int
}

func (d *countingDirectory) TenantByID(ctx context.Context, id string) (*domain.Tenant, error) {
	d.tenantLookups++
	return d.fakeDirectory.TenantByID(ctx, id)
}

func (d *countingDirectory) TenantIDByEmail(ctx context.Context, email string) (string, error) {
	d.emailLookups++
	return d.fakeDirectory.TenantIDByEmail(ctx, email)
}

func TestCachedDirectoryReadThrough(t *testing.T) {
	inner := &countingDirectory{fakeDirectory: fakeDirectory{
		tenants: map[string]*domain.Tenant{"acme": {ID: "acme", IsActive: true}},
		emails:  map[string]string{"alice@acme.test": "acme"},
	}}
	dir, err := NewCachedDirectory(inner, time.Minute)
	if err != nil {
		t.Fatalf("NewCachedDirectory: %v", err)
	}

	got, err := dir.TenantByID(context.Background(), "acme")
	if err != nil || got.ID != "acme" {
		t.Fatalf("TenantByID = %v, %v", got, err)
	}
	if inner.tenantLookups != 1 {
		t.Errorf("inner lookups = %d, want 1", inner.tenantLookups)
	}

	id, err := dir.TenantIDByEmail(context.Background(), "alice@acme.test")
	if err != nil || id != "acme" {
		t.Fatalf("TenantIDByEmail = %q, %v", id, err)
	}
}

func TestCachedDirectoryMissPassesThrough(t *testing.T) {
	inner := &countingDirectory{fakeDirectory: fakeDirectory{tenants: map[string]*domain.Tenant{}}}
	dir, err := NewCachedDirectory(inner, time.Minute)
	if err != nil {
		t.Fatalf("NewCachedDirectory: %v", err)
	}

	// Negative results are never cached; every miss hits the store.
	for i := 0; i < 3; i++ {
		if _, err := dir.TenantByID(context.Background(), "ghost"); !errors.Is(err, domain.ErrTenantNotFound) {
			t.Fatalf("err = %v, want ErrTenantNotFound", err)
		}
	}
	if inner.tenantLookups != 3 {
		t.Errorf("inner lookups = %d, want 3", inner.tenantLookups)
	}
}

func TestCachedDirectoryInvalidate(t *testing.T) {
	inner := &countingDirectory{fakeDirectory: fakeDirectory{
		tenants: map[string]*domain.Tenant{"acme": {ID: "acme", IsActive: true}},
		emails:  map[string]string{"alice@acme.test": "acme"},
	}}
	dir, err := NewCachedDirectory(inner, time.Minute)
	if err != nil {
		t.Fatalf("NewCachedDirectory: %v", err)
	}

	if _, err := dir.TenantByID(context.Background(), "acme"); err != nil {
		t.Fatalf("TenantByID: %v", err)
	}
	dir.cache.Wait() // flush the buffered write before invalidating
	dir.Invalidate("acme")
	dir.InvalidateEmail("alice@acme.test")

	// Flipped store state is visible after invalidation.
	inner.tenants["acme"].IsActive = false
	got, err := dir.TenantByID(context.Background(), "acme")
	if err != nil {
		t.Fatalf("TenantByID: %v", err)
	}
	if got.IsActive {
		t.Error("stale record served after invalidation")
	}
}
