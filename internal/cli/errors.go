package cli

import (
	"errors"
	"fmt"

	"github.com/tony-assistant/console/internal/session"
)

// Exit codes.
const (
	ExitCodeFailure     = 1
	ExitCodeUsage       = 2
	ExitCodeKeptLocally = 3
)

// ExitError carries a process exit code. Printed reports whether the
// message was already written to stderr.
type ExitError struct {
	Code    int
	Err     error
	Printed bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Exitf builds an ExitError from a format string.
func Exitf(code int, format string, args ...any) error {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

// actionError maps session errors onto exit codes.
func actionError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, session.ErrKeptLocally) {
		return &ExitError{Code: ExitCodeKeptLocally, Err: err}
	}
	return &ExitError{Code: ExitCodeFailure, Err: err}
}
