package store

import (
	"errors"
	"fmt"
)

// NotFoundError reports that a requested row does not exist, or is not
// visible to the caller.
type NotFoundError struct {
	// Entity names the missing thing: "attempt", "learner", "package",
	// "activity".
	Entity string
	ID     int64
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// IsNotFoundError reports whether err is (or wraps) a NotFoundError.
func IsNotFoundError(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// NewNotFoundError creates a NotFoundError for the given entity and id.
func NewNotFoundError(entity string, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// SecurityError reports that a demanded right is not granted to the
// learner a job acts for.
type SecurityError struct {
	Right     Right
	LearnerID int64
}

// Error implements the error interface.
func (e *SecurityError) Error() string {
	return fmt.Sprintf("learner %d does not hold right %q", e.LearnerID, e.Right)
}

// IsSecurityError reports whether err is (or wraps) a SecurityError.
func IsSecurityError(err error) bool {
	var se *SecurityError
	return errors.As(err, &se)
}
