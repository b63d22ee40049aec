package protocol

import (
	"context"
	"errors"
	"net"
)

// ActionError classifies an action failure as recoverable or permanent.
type ActionError struct {
	Err         error
	Recoverable bool
}

func (e *ActionError) Error() string {
	return e.Err.Error()
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// Recoverable marks err as transient; the invoker retries it.
func Recoverable(err error) error {
	if err == nil {
		return nil
	}

	return &ActionError{Err: err, Recoverable: true}
}

// Permanent marks err as final; the invoker does not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &ActionError{Err: err, Recoverable: false}
}

// IsRecoverable reports whether err should be retried. Explicit classification
// wins; otherwise deadline and network errors are recoverable and everything
// else is permanent.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}

	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		return actionErr.Recoverable
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr)
}
