package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesKindAndCode(t *testing.T) {
	if !errors.Is(ErrTenantNotFound, ErrTenantNotFound) {
		t.Error("sentinel must match itself")
	}

	wrapped := fmt.Errorf("resolving tenant: %w", ErrTenantNotFound)
	if !errors.Is(wrapped, ErrTenantNotFound) {
		t.Error("wrapped sentinel must match")
	}

	if errors.Is(ErrTenantNotFound, ErrUserNotFound) {
		t.Error("different sentinels must not match")
	}

	// A copy with the same kind and code matches even with extra fields.
	copied := E(KindNotFound, "tenant_not_found", "different message")
	if !errors.Is(copied, ErrTenantNotFound) {
		t.Error("same kind and code must match regardless of message")
	}
}

func TestInvalidCarriesFields(t *testing.T) {
	err := Invalid(
		FieldError{Field: "email", Code: "required", Message: "is required"},
	)
	if err.Kind != KindValidation {
		t.Errorf("kind = %v, want KindValidation", err.Kind)
	}
	if len(err.Fields) != 1 || err.Fields[0].Field != "email" {
		t.Errorf("fields = %+v", err.Fields)
	}

	var derr *Error
	if !errors.As(error(err), &derr) {
		t.Error("errors.As must unwrap to *Error")
	}
}
