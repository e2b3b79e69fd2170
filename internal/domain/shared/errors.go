// Package shared contains the error taxonomy used across the domain and its
// adapters. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation = errors.New("validation error")

	// State errors
	ErrAlreadyProcessed = errors.New("already processed")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Infrastructure errors
	ErrStorage = errors.New("storage error")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "habit", "storage"
	Op      string // Operation that failed, e.g., "Create", "Complete"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Habit domain errors
var (
	ErrNameTooShort          = NewDomainError("habit", "Validate", ErrValidation, "habit name is too short")
	ErrNameTooLong           = NewDomainError("habit", "Validate", ErrValidation, "habit name is too long")
	ErrDuplicateHabit        = NewDomainError("habit", "Create", ErrAlreadyExists, "habit with this name already exists")
	ErrHabitNotFound         = NewDomainError("habit", "Find", ErrNotFound, "habit not found")
	ErrAlreadyCompletedToday = NewDomainError("habit", "Complete", ErrAlreadyProcessed, "habit already completed today")
	ErrCompletionConflict    = NewDomainError("habit", "Complete", ErrConcurrentModification, "habit was modified concurrently")
)

// StorageError wraps a persistence failure for op.
func StorageError(op string, err error) error {
	return WrapError("storage", op, ErrStorage, "storage operation failed", err)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR KINDS
// ══════════════════════════════════════════════════════════════════════════════

// Kind classifies an error for callers that need to branch on outcome.
type Kind int

const (
	// KindUnknown is any error not produced by this module.
	KindUnknown Kind = iota
	// KindValidation is rejected caller input (ErrNameTooShort, ErrNameTooLong).
	KindValidation
	// KindDuplicate is a name collision under the same owner.
	KindDuplicate
	// KindNotFound covers missing habits and habits owned by someone else.
	KindNotFound
	// KindAlreadyCompleted is a second completion on the same calendar day.
	KindAlreadyCompleted
	// KindConflict is a lost optimistic-concurrency race; retryable.
	KindConflict
	// KindStorage is an underlying persistence failure.
	KindStorage
)

// String returns the metric/log label for k.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDuplicate:
		return "duplicate"
	case KindNotFound:
		return "not_found"
	case KindAlreadyCompleted:
		return "already_completed"
	case KindConflict:
		return "conflict"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// KindOf classifies err. A nil error yields KindUnknown.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrAlreadyExists):
		return KindDuplicate
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyProcessed):
		return KindAlreadyCompleted
	case errors.Is(err, ErrConcurrentModification):
		return KindConflict
	case errors.Is(err, ErrStorage):
		return KindStorage
	default:
		return KindUnknown
	}
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
