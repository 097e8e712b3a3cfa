package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crixen/internal/types"
)

func TestValidateStructUsesJSONFieldNames(t *testing.T) {
	type req struct {
		PlanID string `json:"plan_id" validate:"required"`
		Amount string `json:"amount"  validate:"omitempty,max=16"`
	}

	v := NewValidator()

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, v.ValidateStruct(req{PlanID: "pro-monthly"}))
	})

	t.Run("missing required field reports json name", func(t *testing.T) {
		err := v.ValidateStruct(req{})

		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeValidationFailed, appErr.Code)
		assert.Equal(t, "required", appErr.Details["plan_id"])
	})

	t.Run("multiple failures all reported", func(t *testing.T) {
		err := v.ValidateStruct(req{Amount: "99999999999999999.00"})

		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Len(t, appErr.Details, 2)
		assert.Equal(t, "max", appErr.Details["amount"])
	})
}

func TestValidateStructNonStruct(t *testing.T) {
	v := NewValidator()
	err := v.ValidateStruct("not a struct")
	assert.True(t, types.IsCode(err, types.ErrCodeInternalServer))
}
