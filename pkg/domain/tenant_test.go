package domain

import (
	"testing"
	"time"
)

func TestTenantExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		tenant Tenant
		want   bool
	}{
		{"no expiry", Tenant{ID: "acme"}, false},
		{"future expiry", Tenant{ID: "acme", ExpiresAt: &future}, false},
		{"past expiry", Tenant{ID: "acme", ExpiresAt: &past}, true},
		{"system tenant ignores expiry", Tenant{ID: SystemTenantID, ExpiresAt: &past}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tenant.Expired(now); got != tt.want {
				t.Errorf("Expired = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTenantDedicated(t *testing.T) {
	dsn := "postgres://dedicated"
	empty := ""

	if (&Tenant{ID: "acme"}).Dedicated() {
		t.Error("tenant without connection info is not dedicated")
	}
	if (&Tenant{ID: "acme", ConnectionInfo: &empty}).Dedicated() {
		t.Error("empty connection info is not dedicated")
	}
	if !(&Tenant{ID: "acme", ConnectionInfo: &dsn}).Dedicated() {
		t.Error("tenant with connection info is dedicated")
	}
}

func TestTenantIsSystem(t *testing.T) {
	if !(&Tenant{ID: SystemTenantID}).IsSystem() {
		t.Error("system tenant not recognized")
	}
	if (&Tenant{ID: "acme"}).IsSystem() {
		t.Error("regular tenant must not be system")
	}
}
