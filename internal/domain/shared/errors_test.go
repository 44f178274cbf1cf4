package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Is(t *testing.T) {
	t.Run("matches same code", func(t *testing.T) {
		err := NewValidationError("department is required")
		assert.True(t, errors.Is(err, ErrValidation))
		assert.True(t, IsValidation(err))
		assert.False(t, IsNotFound(err))
	})

	t.Run("matches kind through wrapping", func(t *testing.T) {
		err := fmt.Errorf("issue: %w", NewKindedError(CodeNotFound, "BUDGET_NOT_FOUND", "budget dm_FY-2025-26 not found"))
		assert.True(t, IsNotFound(err))
		assert.Equal(t, "BUDGET_NOT_FOUND", ErrorCode(err))
	})

	t.Run("different codes do not match", func(t *testing.T) {
		err := NewConflictError("retries exhausted")
		assert.True(t, IsConflict(err))
		assert.False(t, IsInvariantViolation(err))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.Empty(t, ErrorCode(errors.New("boom")))
	})
}
