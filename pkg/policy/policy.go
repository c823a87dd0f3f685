// Package policy decides allow/deny for a principal's claim set against a
// required permission. Policies are materialized on demand from the
// permission string itself, so the programmatically generated catalog never
// needs a static policy registry that could drift from it.
package policy

import (
	"github.com/stratumhq/stratum/pkg/permission"
)

// Claim types attached to an authenticated principal.
const (
	ClaimSubject    = "sub"
	ClaimEmail      = "email"
	ClaimTenant     = "tenant"
	ClaimRole       = "role"
	ClaimPermission = "permission"
)

// Claim is a typed key/value fact about a principal.
type Claim struct {
	Type  string
	Value string
}

// ClaimSet is the full set of claims carried by a validated identity token.
type ClaimSet []Claim

// First returns the value of the first claim of the given type.
func (cs ClaimSet) First(claimType string) (string, bool) {
	for _, c := range cs {
		if c.Type == claimType {
			return c.Value, true
		}
	}
	return "", false
}

// Values returns every value of the given claim type, in order.
func (cs ClaimSet) Values(claimType string) []string {
	var out []string
	for _, c := range cs {
		if c.Type == claimType {
			out = append(out, c.Value)
		}
	}
	return out
}

// Has reports whether the set contains the exact typed claim.
func (cs ClaimSet) Has(claimType, value string) bool {
	for _, c := range cs {
		if c.Type == claimType && c.Value == value {
			return true
		}
	}
	return false
}

// Policy is the requirement materialized from one permission string: the
// claim set must contain a permission claim with exactly this value.
type Policy struct {
	Permission string
}

// Materialize builds a policy for any well-formed permission string. No
// registration step exists; feature/action pairs outside the static catalog
// materialize the same way catalog entries do.
func Materialize(permissionString string) (Policy, error) {
	if _, _, err := permission.Parse(permissionString); err != nil {
		return Policy{}, err
	}
	return Policy{Permission: permissionString}, nil
}

// Allows reports whether the claim set satisfies the policy. Pure function
// of the claim set; no I/O.
func (p Policy) Allows(claims ClaimSet) bool {
	return claims.Has(ClaimPermission, p.Permission)
}

// Evaluate materializes a policy for the required permission and evaluates
// it against the claim set. Malformed permission strings deny.
func Evaluate(claims ClaimSet, requiredPermission string) bool {
	p, err := Materialize(requiredPermission)
	if err != nil {
		return false
	}
	return p.Allows(claims)
}
