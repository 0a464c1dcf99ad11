package entities

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is a package-level singleton; validator caches struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationResult represents the outcome of validating a value.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ValidationError represents a specific validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Err returns the result as an error, or nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Field+": "+e.Message)
	}
	return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
}

// Validate checks the struct tags of any value using the shared validator.
func Validate(v any) ValidationResult {
	err := validate.Struct(v)
	if err == nil {
		return ValidationResult{Valid: true}
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ValidationResult{Errors: []ValidationError{{Message: err.Error()}}}
	}

	result := ValidationResult{Errors: make([]ValidationError, 0, len(verrs))}
	for _, fe := range verrs {
		msg := fmt.Sprintf("failed %q", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed %q (%s)", fe.Tag(), fe.Param())
		}
		result.Errors = append(result.Errors, ValidationError{Field: fe.Namespace(), Message: msg})
	}
	return result
}

// Validate checks r before it is handed to a fetcher.
func (r Resource) Validate() ValidationResult {
	return Validate(r)
}
