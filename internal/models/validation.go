package models

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError is one rejected field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
	cause  error
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e FieldError) Unwrap() error { return e.cause }

// FieldErrors collects every rejected field of a value so callers see all
// problems at once.
type FieldErrors []FieldError

// Reject records err against field. Nested FieldErrors are flattened with
// dotted field paths.
func (fe *FieldErrors) Reject(field string, err error) {
	if err == nil {
		return
	}
	var nested FieldErrors
	if errors.As(err, &nested) {
		for _, sub := range nested {
			sub.Field = dotted(field, sub.Field)
			*fe = append(*fe, sub)
		}
		return
	}
	*fe = append(*fe, FieldError{Field: field, Reason: err.Error(), cause: err})
}

// Rejectf records a formatted reason against field.
func (fe *FieldErrors) Rejectf(field, format string, args ...any) {
	*fe = append(*fe, FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
}

// Err returns nil when nothing was rejected.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

func (fe FieldErrors) Error() string {
	parts := make([]string, len(fe))
	for i, e := range fe {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// Unwrap exposes each field's cause to errors.Is and errors.As.
func (fe FieldErrors) Unwrap() []error {
	out := make([]error, 0, len(fe))
	for _, e := range fe {
		if e.cause != nil {
			out = append(out, e.cause)
		}
	}
	return out
}

func dotted(prefix, field string) string {
	if prefix == "" {
		return field
	}
	if field == "" {
		return prefix
	}
	return prefix + "." + field
}
