package core

import (
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"rainpoint/internal/types"
)

// Validator wraps go-playground/validator for request DTO validation.
// Validation failures are translated into AppErrors with field-level
// details so handlers can return them directly.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{
		validate: validator.New(),
		logger:   logger,
	}
}

// ValidateStruct validates the given struct against its validate tags.
// On failure it returns a *types.AppError with code
// validation_missing_required_field (or validation_batch_size_exceeded for
// max violations) carrying the offending fields in Details.
func (v *Validator) ValidateStruct(dst interface{}) error {
	err := v.validate.Struct(dst)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"request validation failed unexpectedly",
			err,
		)
	}

	fields := make([]string, 0, len(verrs))
	code := types.ErrCodeValidationMissingField
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		if fe.Tag() == "max" {
			code = types.ErrCodeValidationBatchSize
		}
	}

	return types.NewAppErrorWithDetails(
		code,
		"request body failed validation",
		err,
		map[string]any{"fields": fields},
	)
}
