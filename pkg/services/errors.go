// Package services provides the business logic between the HTTP surface and
// the persistence and scheduling layers.
package services

import (
	"errors"
	"fmt"
)

// Validation errors map to 400 responses at the HTTP surface.
var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrTasksRequired        = errors.New("workflow must have at least one task")
	ErrAgentsRequired       = errors.New("workflow must have at least one agent")
	ErrInvalidReferences    = errors.New("workflow has unresolved references")
	ErrInvalidDocument      = errors.New("workflow document does not match schema")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrTasksRequired) ||
		errors.Is(err, ErrAgentsRequired) ||
		errors.Is(err, ErrInvalidReferences) ||
		errors.Is(err, ErrInvalidDocument)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
