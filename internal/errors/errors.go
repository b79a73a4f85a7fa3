// Package errors defines the error kinds shared by the engine's components.
package errors

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is.
var (
	ErrInvalidEvent            = errors.New("invalid calendar event")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrConfigMissing           = errors.New("required configuration missing")
	ErrConfigInvalid           = errors.New("invalid configuration")
	ErrNoCallback              = errors.New("no trade callback configured")
	ErrNotImplemented          = errors.New("not implemented")
	ErrDataNotFound            = errors.New("data not found")
)

// ValidationError rejects a single input field. It matches ErrInvalidEvent.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// NewValidationError creates a ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidEvent }

// CollaboratorError is a failed call to market data, order execution, the
// event source or a presentation channel. It matches both
// ErrCollaboratorUnavailable and its cause.
type CollaboratorError struct {
	Collaborator string
	Operation    string
	Err          error
}

// NewCollaboratorError creates a CollaboratorError.
func NewCollaboratorError(collaborator, operation string, err error) *CollaboratorError {
	return &CollaboratorError{Collaborator: collaborator, Operation: operation, Err: err}
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s.%s failed: %v", e.Collaborator, e.Operation, e.Err)
}

func (e *CollaboratorError) Unwrap() []error {
	return []error{ErrCollaboratorUnavailable, e.Err}
}

// DataError reports missing or unusable stored data, for example a pair
// with no candles.
type DataError struct {
	DataType string
	Key      string
	Message  string
	Err      error
}

// NewDataError creates a DataError. err may be nil.
func NewDataError(dataType, key, message string, err error) *DataError {
	return &DataError{DataType: dataType, Key: key, Message: message, Err: err}
}

func (e *DataError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.DataType, e.Key, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataError) Unwrap() error { return e.Err }

// Wrap prefixes err with message. A nil err stays nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted prefix.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Is is errors.Is.
func Is(err, target error) bool { return errors.Is(err, target) }

// As is errors.As.
func As(err error, target interface{}) bool { return errors.As(err, target) }
