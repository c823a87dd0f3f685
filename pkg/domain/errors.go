package domain

// Kind classifies a domain error for mapping at the transport boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindUnauthorized
	KindConflict
	KindIdentity
	KindValidation
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string
	Code    string
	Message string
}

// Error is a typed domain error carrying a machine-readable code and a
// human message. The outermost boundary maps it to the response envelope;
// raw internal errors never reach the caller.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  []FieldError
}

func (e *Error) Error() string { return e.Message }

// Is matches two domain errors by kind and code, so errors.Is works against
// the sentinels below even for wrapped or field-annotated copies.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// E constructs a domain error.
func E(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Invalid constructs a ValidationFailed error with per-field details.
func Invalid(fields ...FieldError) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    "validation_failed",
		Message: "one or more fields are invalid",
		Fields:  fields,
	}
}

// Tenant errors
var (
	ErrTenantNotFound    = E(KindNotFound, "tenant_not_found", "tenant not found")
	ErrTenantInactive    = E(KindForbidden, "tenant_inactive", "tenant is not active")
	ErrTenantExpired     = E(KindForbidden, "tenant_expired", "tenant subscription has expired")
	ErrTenantNotResolved = E(KindValidation, "tenant_not_resolved", "no tenant could be resolved for this request")
	ErrTenantExists      = E(KindConflict, "tenant_exists", "tenant already exists")
	ErrEmailMapped       = E(KindConflict, "email_already_mapped", "email is already mapped to a tenant")
)

// Authentication errors
var (
	ErrLoginTenantInactive = E(KindUnauthorized, "tenant_inactive", "tenant inactive")
	ErrInvalidCredentials  = E(KindUnauthorized, "invalid_credentials", "invalid credentials")
	ErrUserInactive        = E(KindUnauthorized, "user_inactive", "user inactive")
	ErrSubscriptionExpired = E(KindUnauthorized, "subscription_expired", "subscription expired")
	ErrInvalidToken        = E(KindUnauthorized, "invalid_token", "invalid token")
	ErrRefreshTokenExpired = E(KindUnauthorized, "refresh_token_expired", "refresh token expired or revoked")
)

// Authorization errors
var (
	ErrForbidden = E(KindForbidden, "forbidden", "access denied")
)

// User/role errors
var (
	ErrUserNotFound      = E(KindNotFound, "user_not_found", "user not found")
	ErrUserExists        = E(KindConflict, "user_exists", "user already exists")
	ErrRoleNotFound      = E(KindNotFound, "role_not_found", "role not found")
	ErrRoleAssigned      = E(KindConflict, "role_assigned", "role is still assigned to users")
	ErrLastAdmin         = E(KindConflict, "last_admin", "cannot remove the last admin of a tenant")
	ErrIdentityOperation = E(KindIdentity, "identity_operation_failed", "identity store rejected the operation")
)
