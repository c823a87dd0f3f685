package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/stratumhq/stratum/pkg/domain"
)

// Decode parses a JSON request body into dst and validates it. Failures come
// back as ValidationFailed domain errors with per-field details.
func Decode(r *http.Request, validate *validator.Validate, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.Invalid(domain.FieldError{Field: "body", Code: "invalid_json", Message: "invalid request body"})
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]domain.FieldError, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, domain.FieldError{
					Field:   fe.Field(),
					Code:    fe.Tag(),
					Message: "failed validation rule " + fe.Tag(),
				})
			}
			return domain.Invalid(fields...)
		}
		return domain.Invalid(domain.FieldError{Field: "body", Code: "invalid", Message: err.Error()})
	}

	return nil
}
