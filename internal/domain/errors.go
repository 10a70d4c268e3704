package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors raised by the summarization and evaluation core.
var (
	// ErrUnsupportedModel indicates that a model key has no registered
	// pre/postprocessing strategy.
	ErrUnsupportedModel = errors.New("unsupported model")

	// ErrLengthMismatch indicates that batch evaluation received prediction and
	// reference lists of different lengths.
	ErrLengthMismatch = errors.New("predictions and references must have the same length")

	// ErrMissingColumn indicates that an uploaded table lacks a required column.
	ErrMissingColumn = errors.New("missing column")

	// ErrUnsupportedFormat indicates that an uploaded file has an extension
	// that cannot be parsed as a table.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrEmptyText indicates that an input text is empty after cleaning.
	ErrEmptyText = errors.New("text is empty")

	// ErrNotFound indicates that a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates that a record with the same identity already exists.
	ErrConflict = errors.New("already exists")

	// ErrInvalidCredentials indicates a failed login or an unusable token.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrForbidden indicates that the caller lacks the role for an operation.
	ErrForbidden = errors.New("forbidden")
)

// UnsupportedModelError reports the model key that could not be dispatched.
type UnsupportedModelError struct {
	// Key is the raw model key supplied by the caller.
	Key string
}

// Error implements the error interface for UnsupportedModelError.
func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("unsupported model: %q", e.Key)
}

// Unwrap returns ErrUnsupportedModel so callers can match with errors.Is.
func (e *UnsupportedModelError) Unwrap() error { return ErrUnsupportedModel }

// LengthMismatchError carries both list lengths of a rejected batch evaluation.
type LengthMismatchError struct {
	Predictions int
	References  int
}

// Error implements the error interface for LengthMismatchError.
func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("%v: predictions=%d, references=%d", ErrLengthMismatch, e.Predictions, e.References)
}

// Unwrap returns ErrLengthMismatch.
func (e *LengthMismatchError) Unwrap() error { return ErrLengthMismatch }

// MissingColumnError names the requested column and the columns that were
// actually present in the uploaded table.
type MissingColumnError struct {
	// Column is the column the caller asked for.
	Column string

	// Available lists the normalized header names found in the table.
	Available []string
}

// Error implements the error interface for MissingColumnError.
func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("column '%s' not found. Available columns: [%s]", e.Column, strings.Join(e.Available, ", "))
}

// Unwrap returns ErrMissingColumn.
func (e *MissingColumnError) Unwrap() error { return ErrMissingColumn }

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
