package session

import (
	"errors"
	"fmt"
)

// InvalidOperationError reports caller misuse: an operation invoked on
// the wrong view, in the wrong attempt status, or without a current
// activity. Never retried.
type InvalidOperationError struct {
	Operation string
	Reason    string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Operation, e.Reason)
}

// IsInvalidOperationError reports whether err is (or wraps) an
// InvalidOperationError.
func IsInvalidOperationError(err error) bool {
	var ie *InvalidOperationError
	return errors.As(err, &ie)
}

func invalidOp(op, reason string) *InvalidOperationError {
	return &InvalidOperationError{Operation: op, Reason: reason}
}

// InvalidPackageError reports that no deliverable activity is reachable
// in the attempt's tree. Raised from Start when both the sequenced start
// and the left-to-right choice fallback fail; fatal and non-retryable.
type InvalidPackageError struct {
	AttemptID int64
	Err       error
}

func (e *InvalidPackageError) Error() string {
	return fmt.Sprintf("attempt %d: package has no deliverable activity: %v", e.AttemptID, e.Err)
}

func (e *InvalidPackageError) Unwrap() error { return e.Err }

// IsInvalidPackageError reports whether err is (or wraps) an
// InvalidPackageError.
func IsInvalidPackageError(err error) bool {
	var pe *InvalidPackageError
	return errors.As(err, &pe)
}
