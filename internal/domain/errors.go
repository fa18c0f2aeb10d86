package domain

import (
	"errors"
	"fmt"
)

// Common domain errors.
var (
	// ErrInvalidMode indicates an unknown prompting mode.
	ErrInvalidMode = errors.New("invalid mode")
	// ErrEmptyValue indicates that a required value is empty.
	ErrEmptyValue = errors.New("empty value")
	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string
	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}

// ValidateQuestion checks that a question carries the fields the pipeline
// depends on.
func ValidateQuestion(q Question) error {
	verr := NewValidationError("question " + q.ID)
	if q.ID == "" {
		verr.AddError("id is required")
	}
	if q.Text == "" {
		verr.AddError("question text is required")
	}
	if q.Reference == "" {
		verr.AddError("reference answer is required")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}
