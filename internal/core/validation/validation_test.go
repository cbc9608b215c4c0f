package validation_test

import (
	"encoding/json"
	"testing"

	apperrors "github.com/lorrc/petcare-backend/internal/core/errors"
	"github.com/lorrc/petcare-backend/internal/core/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type petPayload struct {
	OwnerID int64  `json:"ownerId" validate:"required,gt=0"`
	Name    string `json:"name" validate:"required,max=10"`
	Species string `json:"species" validate:"omitempty,oneof=dog cat"`
	Email   string `json:"email" validate:"omitempty,email"`
}

func TestDecode_Valid(t *testing.T) {
	got, err := validation.Decode[petPayload](json.RawMessage(`{"ownerId":3,"name":"Rex","species":"dog"}`))

	require.NoError(t, err)
	assert.Equal(t, int64(3), got.OwnerID)
	assert.Equal(t, "Rex", got.Name)
}

func TestDecode_FieldErrorsUseJSONNames(t *testing.T) {
	_, err := validation.Decode[petPayload](json.RawMessage(`{"name":"Bartholomew the third","species":"lizard","email":"nope"}`))

	var validationErrs *apperrors.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)
	assert.Contains(t, validationErrs.Errors, "ownerId")
	assert.Contains(t, validationErrs.Errors, "name")
	assert.Contains(t, validationErrs.Errors, "species")
	assert.Contains(t, validationErrs.Errors, "email")
	assert.Equal(t, []string{"Must be one of: dog, cat"}, validationErrs.Errors["species"])
}

func TestDecode_EmptyPayloadStillValidated(t *testing.T) {
	_, err := validation.Decode[petPayload](nil)

	var validationErrs *apperrors.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)
	assert.Contains(t, validationErrs.Errors, "ownerId")
}

func TestDecode_Malformed(t *testing.T) {
	_, err := validation.Decode[petPayload](json.RawMessage(`{"ownerId":`))

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMalformedMessage)
	assert.Equal(t, apperrors.CodeValidation, apperrors.Classify(err).Code)
}
