// Package permission holds the static permission catalog: every
// (action, feature) pair the system can gate on, its canonical claim string,
// and the role -> permission-set tables used by seeding and authorization.
package permission

import (
	"fmt"
	"strings"
)

// Prefix is the leading segment of every canonical permission claim.
const Prefix = "Permission"

// Action is the verb half of a permission.
type Action string

const (
	ActionView   Action = "View"
	ActionCreate Action = "Create"
	ActionEdit   Action = "Edit"
	ActionDelete Action = "Delete"
)

// Feature is the subject half of a permission.
type Feature string

const (
	FeatureUsers            Feature = "Users"
	FeatureRoles            Feature = "Roles"
	FeatureDashboard        Feature = "Dashboard"
	FeatureTenants          Feature = "Tenants"
	FeatureCrossTenantUsers Feature = "CrossTenantUsers"
	FeatureAuditLog         Feature = "AuditLog"
)

// Type determines the tenant boundary a permission is evaluated against.
type Type int

const (
	// TypeTenant permissions apply only within the holder's home tenant.
	TypeTenant Type = iota
	// TypeCrossTenant permissions allow acting on other tenants' data.
	TypeCrossTenant
	// TypeSystem permissions are global administrative capabilities.
	TypeSystem
)

func (t Type) String() string {
	switch t {
	case TypeCrossTenant:
		return "CrossTenant"
	case TypeSystem:
		return "System"
	default:
		return "Tenant"
	}
}

// Permission is one immutable catalog entry.
type Permission struct {
	Action  Action
	Feature Feature
	Type    Type
	IsRoot  bool
}

// Claim returns the canonical claim string, Permission.<Feature>.<Action>.
func (p Permission) Claim() string {
	return Claim(p.Feature, p.Action)
}

// AllowsAnyTenant reports whether holders may act outside their home tenant.
func (p Permission) AllowsAnyTenant() bool {
	return p.Type != TypeTenant
}

// Claim builds the canonical claim string for a feature/action pair.
func Claim(feature Feature, action Action) string {
	return Prefix + "." + string(feature) + "." + string(action)
}

// Parse splits a claim string into its feature and action. It validates
// shape only, not catalog membership, so programmatically generated
// permissions parse without registration.
func Parse(claim string) (Feature, Action, error) {
	parts := strings.Split(claim, ".")
	if len(parts) != 3 || parts[0] != Prefix || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("malformed permission claim %q", claim)
	}
	return Feature(parts[1]), Action(parts[2]), nil
}

// featureSet drives catalog generation: one row per feature, expanded to one
// Permission per action.
type featureSet struct {
	feature Feature
	typ     Type
	isRoot  bool
	actions []Action
}

var crud = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete}

var featureSets = []featureSet{
	{FeatureUsers, TypeTenant, false, crud},
	{FeatureRoles, TypeTenant, false, crud},
	{FeatureDashboard, TypeTenant, false, []Action{ActionView}},
	{FeatureTenants, TypeSystem, true, crud},
	{FeatureCrossTenantUsers, TypeCrossTenant, true, crud},
	{FeatureAuditLog, TypeSystem, true, []Action{ActionView}},
}

var (
	all     []Permission
	byClaim map[string]Permission
)

func init() {
	byClaim = make(map[string]Permission)
	for _, fs := range featureSets {
		for _, a := range fs.actions {
			p := Permission{Action: a, Feature: fs.feature, Type: fs.typ, IsRoot: fs.isRoot}
			all = append(all, p)
			byClaim[p.Claim()] = p
		}
	}
}

// All returns every catalog entry.
func All() []Permission {
	out := make([]Permission, len(all))
	copy(out, all)
	return out
}

// Lookup returns the catalog entry for a claim string, if it exists.
func Lookup(claim string) (Permission, bool) {
	p, ok := byClaim[claim]
	return p, ok
}

// InCatalog reports whether the claim names a catalog-managed permission.
// Seeding uses this to distinguish managed claims from custom ones added
// out-of-band.
func InCatalog(claim string) bool {
	_, ok := byClaim[claim]
	return ok
}

// Canonical role names. Admin and Member are created in every tenant;
// SysAdmin and Support live in the system pseudo-tenant and carry
// System/CrossTenant-typed permissions.
const (
	RoleAdmin    = "Admin"
	RoleMember   = "Member"
	RoleSysAdmin = "SysAdmin"
	RoleSupport  = "Support"
)

// TenantRoles returns the canonical role names seeded into every tenant.
func TenantRoles() []string { return []string{RoleAdmin, RoleMember} }

// SystemRoles returns the canonical role names seeded into the system tenant.
func SystemRoles() []string { return []string{RoleSysAdmin, RoleSupport} }

// ForRole returns the canonical permission set for a role name, or nil for
// roles the catalog does not manage.
func ForRole(name string) []Permission {
	var out []Permission
	switch name {
	case RoleAdmin:
		for _, p := range all {
			if p.Type == TypeTenant {
				out = append(out, p)
			}
		}
	case RoleMember:
		for _, p := range all {
			if p.Type == TypeTenant && p.Action == ActionView {
				out = append(out, p)
			}
		}
	case RoleSysAdmin:
		out = append(out, all...)
	case RoleSupport:
		for _, p := range all {
			if p.Action == ActionView && (p.Type == TypeCrossTenant || p.Type == TypeSystem) {
				out = append(out, p)
			}
		}
	}
	return out
}

// ClaimsForRole returns the canonical claim strings for a role name.
func ClaimsForRole(name string) []string {
	perms := ForRole(name)
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.Claim())
	}
	return out
}
