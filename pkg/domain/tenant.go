package domain

import "time"

// SystemTenantID is the reserved identifier of the root tenant that hosts
// the system-wide roles (SysAdmin, Support). It never expires.
const SystemTenantID = "system"

// Tenant represents an isolated customer organization. The ID doubles as the
// routing key carried in the `tenant` header and token claim, and is
// immutable after creation.
type Tenant struct {
	ID             string
	DisplayName    string
	OwnerEmail     string
	IsActive       bool
	ExpiresAt      *time.Time
	ConnectionInfo *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsSystem reports whether this is the root tenant.
func (t *Tenant) IsSystem() bool {
	return t.ID == SystemTenantID
}

// Expired reports whether the tenant's subscription has lapsed. A nil
// expiry means the subscription never lapses, and the system tenant never
// expires.
func (t *Tenant) Expired(now time.Time) bool {
	if t.IsSystem() {
		return false
	}
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// Dedicated reports whether the tenant has its own storage target.
func (t *Tenant) Dedicated() bool {
	return t.ConnectionInfo != nil && *t.ConnectionInfo != ""
}

// EmailTenantMapping is a denormalized email -> tenant index enabling O(1)
// login-time tenant resolution. At most one active mapping exists per email.
type EmailTenantMapping struct {
	Email     string
	TenantID  string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
