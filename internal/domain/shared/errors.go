// Package shared contains common domain types and errors used across all
// domain packages. This package has zero external dependencies.
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
	ErrValidation   = errors.New("validation error")
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidDate  = errors.New("invalid date")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Lifecycle errors
	ErrConfigAbsent        = errors.New("configuration document absent")
	ErrPersistence         = errors.New("persistence failure")
	ErrNotificationFailure = errors.New("notification failure")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "student", "attendance", "demotion"
	Op      string // Operation that failed, e.g., "Promote", "Evaluate"
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

// Persistence wraps a store error so callers can classify it as a
// PersistenceFailure with errors.Is(err, ErrPersistence).
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return WrapError("store", op, ErrPersistence, "store operation failed", err)
}

// Student domain errors
var (
	ErrStudentNotReserve    = NewDomainError("student", "Promote", ErrStateTransition, "only reserve students can be promoted")
	ErrInvalidStudentStatus = NewDomainError("student", "Validate", ErrInvalidInput, "invalid student status")
	ErrInvalidRosterType    = NewDomainError("student", "Validate", ErrInvalidInput, "invalid roster type")
)

// Attendance domain errors
var (
	ErrInvalidAttendanceStatus = NewDomainError("attendance", "Validate", ErrInvalidInput, "invalid attendance status")
	ErrInvalidHolidayRange     = NewDomainError("attendance", "ValidateHoliday", ErrInvalidDate, "holiday range is inverted")
)

// Group domain errors
var (
	ErrGroupNotFound = NewDomainError("group", "Find", ErrNotFound, "group not found")
)

// External service errors
var (
	ErrTelegramAPIFailed = NewDomainError("telegram", "Send", ErrExternalService, "Telegram API request failed")
	ErrBrokerUnavailable = NewDomainError("broker", "Publish", ErrServiceUnavailable, "message broker unavailable")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPersistence checks if the error is a store failure.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidDate)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrPersistence)
}
