package dto

import (
	"net/http"

	"github.com/gryphon/budget-core/internal/domain/budget"
	"github.com/gryphon/budget-core/internal/domain/shared"
)

// Transport error codes, used before a request reaches a service
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "INVALID_JSON"
	// ErrCodeRequestTooLarge is used when the body exceeds the size limit
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "INTERNAL_ERROR"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:                  http.StatusInternalServerError,
	shared.CodeInvariantViolation:    http.StatusInternalServerError,
	budget.CodeMultipleActiveBudgets: http.StatusInternalServerError,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:     http.StatusBadRequest,
	ErrCodeInvalidJSON:    http.StatusBadRequest,
	shared.CodeValidation: http.StatusBadRequest,

	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	shared.CodeUnauthorized: http.StatusUnauthorized,

	// Resource errors
	shared.CodeNotFound:              http.StatusNotFound,
	budget.CodeBudgetNotFound:        http.StatusNotFound,
	budget.CodeIntentNotFound:        http.StatusNotFound,
	budget.CodeComponentNotFound:     http.StatusNotFound,
	budget.CodePurchaseOrderNotFound: http.StatusNotFound,
	shared.CodeAlreadyExists:         http.StatusConflict,
	shared.CodeConcurrencyConflict:   http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	shared.CodeInvalidStateTransition: http.StatusUnprocessableEntity,
	budget.CodeNoActiveBudget:         http.StatusUnprocessableEntity,
	budget.CodeIntentAlreadyConsumed:  http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// StatusForDomainError resolves the status of a domain error by its code,
// falling back to its kind for codes the table does not list
func StatusForDomainError(err *shared.DomainError) int {
	if status, ok := ErrorCodeHTTPStatus[err.Code]; ok {
		return status
	}
	if status, ok := ErrorCodeHTTPStatus[err.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}
