package shared

import "errors"

// Error codes shared by the budget core. The HTTP layer maps each code to a
// status in one table, so new codes must be registered there as well.
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeNotFound               = "NOT_FOUND"
	CodeAlreadyExists          = "ALREADY_EXISTS"
	CodeConcurrencyConflict    = "CONCURRENCY_CONFLICT"
	CodeInvariantViolation     = "INVARIANT_VIOLATION"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeUnauthorized           = "UNAUTHORIZED"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Kind groups related codes (for example every *_NOT_FOUND code has kind
	// NOT_FOUND). Empty means the code is its own kind.
	Kind string `json:"-"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code or kind.
// It lets callers write errors.Is(err, shared.ErrNotFound).
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code || (e.Kind != "" && e.Kind == t.Code)
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewKindedError creates a domain error whose code belongs to a broader kind.
func NewKindedError(kind, code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Kind:    kind,
	}
}

// NewValidationError creates a VALIDATION_ERROR domain error
func NewValidationError(message string) *DomainError {
	return NewDomainError(CodeValidation, message)
}

// NewConflictError creates a CONCURRENCY_CONFLICT domain error
func NewConflictError(message string) *DomainError {
	return NewDomainError(CodeConcurrencyConflict, message)
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists       = NewDomainError(CodeAlreadyExists, "Resource already exists")
	ErrValidation          = NewDomainError(CodeValidation, "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrInvariantViolation  = NewDomainError(CodeInvariantViolation, "Domain invariant violated")
	ErrInvalidState        = NewDomainError(CodeInvalidStateTransition, "Operation not allowed in current state")
	ErrUnauthorized        = NewDomainError(CodeUnauthorized, "Not authorized to perform this action")
)

// IsValidation reports whether err is a validation failure
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is any kind of not-found failure
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is a concurrency conflict surfaced after retries
func IsConflict(err error) bool { return errors.Is(err, ErrConcurrencyConflict) }

// IsInvariantViolation reports whether err reports a broken domain invariant
func IsInvariantViolation(err error) bool { return errors.Is(err, ErrInvariantViolation) }

// ErrorCode extracts the domain error code from err, or "" when err carries none.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
