package cli

import (
	"errors"
	"fmt"
)

// Exit codes. A run that completes counts as success even when
// individual rows were rejected or individual groups failed to send;
// those are logged outcomes, not process failures.
const (
	ExitSuccess     = 0 // run completed
	ExitFailure     = 1 // run aborted mid-flight
	ExitConfigError = 2 // startup-fatal: bad config, lock held, store unreadable
)

// ExitError carries a specific exit code out of a cobra RunE.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure for errors without one.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}
