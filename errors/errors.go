// Package errors defines the error taxonomy shared by every core
// component. Expected failures cross component boundaries as one of the
// kinds below wrapped in a result.Result; only programmer errors may
// surface as panics.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel kinds. Every typed error below wraps one of these so callers
// can classify failures with errors.Is without naming concrete types.
var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource conflict")
	ErrRepository     = errors.New("repository failure")
	ErrSpecification  = errors.New("specification not translatable")
	ErrCircuitOpen    = errors.New("circuit open")
	ErrTimeout        = errors.New("operation timed out")
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// FieldViolation is a single field-level validation failure.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every field violation found, not just the
// first, in the order they were detected.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("validation failed: %s: %s", e.Violations[0].Field, e.Violations[0].Message)
	}
	return fmt.Sprintf("validation failed: %d violations", len(e.Violations))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError from violations.
func NewValidationError(violations ...FieldViolation) *ValidationError {
	return &ValidationError{Violations: violations}
}

// NotFoundError identifies a missing entity by type and identifier.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(entity string, id any) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError reports a state conflict, e.g. a duplicate key or a
// stale update.
type ConflictError struct {
	Entity  string
	Message string
}

func (e *ConflictError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s conflict: %s", e.Entity, e.Message)
	}
	return fmt.Sprintf("conflict: %s", e.Message)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NewConflictError creates a ConflictError.
func NewConflictError(entity, message string) *ConflictError {
	return &ConflictError{Entity: entity, Message: message}
}

// RepositoryError wraps an underlying storage fault with the failed
// operation name.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrRepository) match regardless of the wrapped
// storage fault.
func (e *RepositoryError) Is(target error) bool { return target == ErrRepository }

// NewRepositoryError wraps a storage fault.
func NewRepositoryError(op string, err error) *RepositoryError {
	return &RepositoryError{Op: op, Err: err}
}

// SpecificationError reports a predicate that cannot be translated to a
// storage-native filter. Translation must fail loudly, never degrade to
// a silent no-op.
type SpecificationError struct {
	Reason string
}

func (e *SpecificationError) Error() string {
	return fmt.Sprintf("specification: %s", e.Reason)
}

func (e *SpecificationError) Unwrap() error { return ErrSpecification }

// NewSpecificationError creates a SpecificationError.
func NewSpecificationError(format string, args ...any) *SpecificationError {
	return &SpecificationError{Reason: fmt.Sprintf(format, args...)}
}

// CircuitOpenError is returned immediately, without invoking the wrapped
// operation, while a breaker is open.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit %q open, retry after %s", e.Name, e.RetryAfter)
}

func (e *CircuitOpenError) Unwrap() error { return ErrCircuitOpen }

// NewCircuitOpenError creates a CircuitOpenError.
func NewCircuitOpenError(name string, retryAfter time.Duration) *CircuitOpenError {
	return &CircuitOpenError{Name: name, RetryAfter: retryAfter}
}

// TimeoutError reports an operation cancelled because its deadline
// elapsed.
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s", e.Limit)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// NewTimeoutError creates a TimeoutError.
func NewTimeoutError(limit time.Duration) *TimeoutError {
	return &TimeoutError{Limit: limit}
}

// RetryExhaustedError wraps the terminal failure after all attempts are
// spent. Unwrap exposes the underlying error so errors.Is/As against the
// last failure still match.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrRetryExhausted) classify the failure while
// Unwrap keeps the terminal error reachable.
func (e *RetryExhaustedError) Is(target error) bool { return target == ErrRetryExhausted }

// NewRetryExhaustedError wraps the last failure of a retry loop.
func NewRetryExhaustedError(attempts int, err error) *RetryExhaustedError {
	return &RetryExhaustedError{Attempts: attempts, Err: err}
}

// Code maps an error to a stable machine-readable code for reporting.
// Wrapper kinds are checked before wrapped ones: a RetryExhaustedError
// whose terminal failure is itself a known kind still classifies as
// retry exhaustion.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrRetryExhausted):
		return "RETRY_EXHAUSTED"
	case errors.Is(err, ErrCircuitOpen):
		return "CIRCUIT_OPEN"
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrSpecification):
		return "SPECIFICATION_ERROR"
	case errors.Is(err, ErrRepository):
		return "REPOSITORY_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// Is re-exports errors.Is so callers importing this package under an
// alias do not also need the stdlib package.
func Is(err, target error) bool { return errors.Is(err, target) }

// As re-exports errors.As.
func As(err error, target any) bool { return errors.As(err, target) }
