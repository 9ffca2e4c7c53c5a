package api

import (
	"errors"
	"fmt"
)

// ErrorKind records where a request failed. Callers treat every kind the
// same; the kind only feeds logs and metrics.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindStatus    ErrorKind = "status"
	KindEnvelope  ErrorKind = "envelope"
	KindDecode    ErrorKind = "decode"
)

// ErrRequestFailed matches every *Error via errors.Is.
var ErrRequestFailed = errors.New("tony api request failed")

// Error is the single error type returned by Client operations.
type Error struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, msg, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrRequestFailed) true for any API error.
func (e *Error) Is(target error) bool {
	return target == ErrRequestFailed
}

// IsNotFound reports whether the backend answered 404.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
