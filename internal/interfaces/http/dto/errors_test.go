package dto

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gryphon/budget-core/internal/domain/budget"
	"github.com/gryphon/budget-core/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeBadRequest, http.StatusBadRequest},
		{shared.CodeValidation, http.StatusBadRequest},
		{shared.CodeUnauthorized, http.StatusUnauthorized},
		{budget.CodeBudgetNotFound, http.StatusNotFound},
		{budget.CodeComponentNotFound, http.StatusNotFound},
		{shared.CodeAlreadyExists, http.StatusConflict},
		{shared.CodeConcurrencyConflict, http.StatusConflict},
		{budget.CodeNoActiveBudget, http.StatusUnprocessableEntity},
		{budget.CodeIntentAlreadyConsumed, http.StatusUnprocessableEntity},
		{budget.CodeMultipleActiveBudgets, http.StatusInternalServerError},
		// Unknown code should return 500
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestStatusForDomainErrorFallsBackToKind(t *testing.T) {
	err := shared.NewKindedError(shared.CodeNotFound, "VENDOR_NOT_FOUND", "vendor not found")
	assert.Equal(t, http.StatusNotFound, StatusForDomainError(err))

	assert.Equal(t, http.StatusInternalServerError,
		StatusForDomainError(shared.NewDomainError("SOMETHING_ELSE", "boom")))
}

func TestNewErrorResponseWithRequestID(t *testing.T) {
	resp := NewErrorResponseWithRequestID(shared.CodeValidation, "bad input", "req-1")

	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, false, decoded["success"])
	assert.NotContains(t, decoded, "data")
	errInfo := decoded["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", errInfo["code"])
	assert.Equal(t, "bad input", errInfo["message"])
	assert.Equal(t, "req-1", errInfo["request_id"])
}
