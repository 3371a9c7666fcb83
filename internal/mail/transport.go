// Package mail abstracts the outbound mail transport.
//
// The runner only sees the Transport interface; which implementation
// is wired in (SMTP, dry-run, test recorder) is decided once at
// startup by the selected run mode.
package mail

import (
	"context"
	"errors"
	"fmt"
)

// Message is one composed outbound email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

// Transport sends composed messages and exposes the sender's signature.
type Transport interface {
	// Signature returns the sender's HTML signature block, or "" when
	// none is available (callers fall back to a configured default).
	Signature() (string, error)

	// Send delivers one message. Errors are classified via IsTransient.
	Send(ctx context.Context, msg Message) error
}

// SendError classifies a delivery failure. Transient failures are
// worth retrying; permanent ones are not.
type SendError struct {
	Transient bool
	Err       error
}

func (e *SendError) Error() string {
	if e.Transient {
		return fmt.Sprintf("transient send failure: %v", e.Err)
	}
	return fmt.Sprintf("permanent send failure: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable send failure.
func Transient(err error) *SendError {
	return &SendError{Transient: true, Err: err}
}

// Permanent wraps err as a non-retryable send failure.
func Permanent(err error) *SendError {
	return &SendError{Transient: false, Err: err}
}

// IsTransient reports whether err is worth retrying. Unclassified
// errors are treated as permanent: retrying an unknown failure mode
// against a rate-limited transport does more harm than good.
func IsTransient(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Transient
	}
	return false
}
