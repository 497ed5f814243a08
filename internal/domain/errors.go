package domain

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Error taxonomy. Concrete errors are marked with one of these so callers can
// classify them with errors.Is without depending on message text.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrValidation        = errors.New("validation failed")
	ErrStorage           = errors.New("storage failure")
	ErrPublish           = errors.New("publish failure")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// NotFoundf returns an error marked as ErrNotFound
func NotFoundf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

// Conflictf returns an error marked as ErrConflict
func Conflictf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrConflict)
}

// StorageError wraps a persistence error and marks it as ErrStorage.
// It returns nil when err is nil.
func StorageError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrStorage)
}

// FieldError describes one invalid input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries field-level detail for malformed input
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError builds a validation error marked as ErrValidation
func NewValidationError(fields ...FieldError) error {
	return errors.Mark(&ValidationError{Fields: fields}, ErrValidation)
}

// Invalid is a shorthand for a single-field validation error
func Invalid(field, message string) error {
	return NewValidationError(FieldError{Field: field, Message: message})
}

// ValidationFields extracts field errors from err, if any
func ValidationFields(err error) []FieldError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}

// InvalidTransition reports a status change the order state machine does not
// allow. It is marked both ErrInvalidTransition and ErrConflict.
func InvalidTransition(orderID string, from, to OrderStatus) error {
	err := errors.Newf("order %s cannot move from %s to %s", orderID, from, to)
	return errors.Mark(errors.Mark(err, ErrInvalidTransition), ErrConflict)
}
