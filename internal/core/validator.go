package core

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"crixen/internal/types"
)

// Validator wraps go-playground/validator with JSON-tag-aware field names so
// validation errors reference the names clients actually sent.
type Validator struct {
	validate *validator.Validate
}

// NewValidator builds the validator used by all handlers.
func NewValidator() *Validator {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	return &Validator{validate: v}
}

// ValidateStruct validates dst against its `validate` tags and returns a
// *types.AppError (validation_failed, 400) describing every failed field.
func (v *Validator) ValidateStruct(dst any) error {
	err := v.validate.Struct(dst)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return types.WrapAppError(types.ErrCodeInternalServer, "validation target is not a struct", err)
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make(map[string]any, len(verrs))
		for _, fe := range verrs {
			details[fe.Field()] = fe.Tag()
		}
		return types.WrapAppError(types.ErrCodeValidationFailed, "request validation failed", err).
			WithDetails(details)
	}

	return types.WrapAppError(types.ErrCodeValidationFailed, "request validation failed", err)
}
