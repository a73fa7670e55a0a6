package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrAlreadyGraded     = errors.New("submission already graded")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// FieldError is used to indicate an error with a specific field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError is returned for input that is rejected before anything is written.
type ValidationError struct {
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Error)
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// Validation builds a *ValidationError with a formatted message.
func Validation(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// WithField appends a field error and returns the receiver for chaining.
func (e *ValidationError) WithField(field, msg string) *ValidationError {
	e.Fields = append(e.Fields, FieldError{Field: field, Error: msg})
	return e
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func NotFound(what, id string) error {
	return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
}
