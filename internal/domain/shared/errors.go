// Package shared contains error kinds used across the domain packages.
// This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound = errors.New("entity not found")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrValueOutOfRange = errors.New("value out of range")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrUnexpectedStatus   = errors.New("unexpected upstream status")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")

	// Local infrastructure errors
	ErrStore      = errors.New("store error")
	ErrEnrichment = errors.New("enrichment failed")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "leaderboard", "skills"
	Op      string // Operation that failed, e.g., "Top", "UserRank"
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

// Is implements errors.Is() matching against both the kind and the cause.
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

// UnexpectedStatusError reports an upstream HTTP status outside the contract.
type UnexpectedStatusError struct {
	Service    string
	StatusCode int
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status code %d", e.Service, e.StatusCode)
}

// Is makes errors.Is(err, ErrUnexpectedStatus) and ErrExternalService match.
func (e *UnexpectedStatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus || target == ErrExternalService
}

// Leaderboard domain errors
var (
	ErrRankNotFound  = NewDomainError("leaderboard", "UserRank", ErrNotFound, "user has no rank in this scope")
	ErrTaskNotFound  = NewDomainError("leaderboard", "Task", ErrNotFound, "task not found")
	ErrLimitTooLarge = NewDomainError("leaderboard", "Validate", ErrValueOutOfRange, "limit must not exceed 100")
	ErrUnknownScope  = NewDomainError("leaderboard", "Resolve", ErrInvalidInput, "unknown leaderboard scope")
)

// External service errors
var (
	ErrSkillsUnavailable = NewDomainError("skills", "Request", ErrServiceUnavailable, "skills service is unavailable")
	ErrSkillsNotFound    = NewDomainError("skills", "Request", ErrNotFound, "skills service has no such entry")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrUnexpectedStatus) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// StatusCode extracts the upstream status code from err, if any.
func StatusCode(err error) (int, bool) {
	var use *UnexpectedStatusError
	if errors.As(err, &use) {
		return use.StatusCode, true
	}
	return 0, false
}
