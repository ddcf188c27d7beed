package core

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"mailmerge/internal/types"
)

// Validator wraps go-playground/validator with a translation layer that
// turns tag failures into API error details.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a request validator with struct-tag support.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// ValidateStruct validates a request payload against its struct tags.
// On failure it returns an AppError carrying a per-field detail map so
// clients can highlight offending inputs.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var invalidErr *validator.InvalidValidationError
	if errors.As(err, &invalidErr) {
		v.logger.Error("validator received a non-struct value", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "Invalid request payload", err)
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "Invalid request payload", err)
	}

	details := make(map[string]any, len(validationErrs))
	for _, fe := range validationErrs {
		details[fieldName(fe)] = tagMessage(fe)
	}

	return types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField, "Request validation failed", nil, details)
}

// fieldName lowercases the first segment of the struct namespace so error
// details reference JSON-style field names.
func fieldName(fe validator.FieldError) string {
	return strings.ToLower(fe.Field())
}

// tagMessage maps common validation tags to human-readable messages.
func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation on %q", fe.Tag())
	}
}
