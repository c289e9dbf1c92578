package nav

import (
	"errors"
	"fmt"

	"github.com/roach88/sequent/internal/model"
)

// SequencingErrorCode identifies the sequencing rule a navigation
// violated. Codes follow the rule numbering of the sequencing
// pseudo-code they correspond to.
type SequencingErrorCode string

const (
	// Navigation request process.
	CodeCurrentActivityAlreadySet SequencingErrorCode = "NB.2.1-1"
	CodeNoCurrentActivity         SequencingErrorCode = "NB.2.1-2"
	CodeFlowNotEnabled            SequencingErrorCode = "NB.2.1-4"
	CodeForwardOnlyViolated       SequencingErrorCode = "NB.2.1-5"
	CodeChoiceExitForbidden       SequencingErrorCode = "NB.2.1-8"
	CodeChoiceNotPermitted        SequencingErrorCode = "NB.2.1-10"
	CodeTargetNotFound            SequencingErrorCode = "NB.2.1-11"

	// Flow traversal.
	CodeNoNextActivity     SequencingErrorCode = "SB.2.1-1"
	CodeBeyondTreeBounds   SequencingErrorCode = "SB.2.1-2"
	CodeNoPreviousActivity SequencingErrorCode = "SB.2.1-3"

	// Start / resume.
	CodeNothingToDeliver    SequencingErrorCode = "SB.2.5-1"
	CodeNoSuspendedActivity SequencingErrorCode = "SB.2.6-1"

	// Choice.
	CodeChoiceTargetUndeliverable SequencingErrorCode = "SB.2.9-1"
	CodeChoiceIntoClusterNoFlow   SequencingErrorCode = "SB.2.9-7"

	// Termination request process.
	CodeNothingToTerminate      SequencingErrorCode = "TB.2.3-1"
	CodeAlreadyTerminated       SequencingErrorCode = "TB.2.3-2"
	CodeNothingToSuspend        SequencingErrorCode = "TB.2.3-3"
	CodeRootHasNoParent         SequencingErrorCode = "TB.2.3-4"
	CodeCurrentActivityIsActive SequencingErrorCode = "DB.2-1"
)

// SequencingError reports that a navigation command could not be
// satisfied by the sequencing rules. Callers may legitimately retry with
// a different command.
type SequencingError struct {
	Code SequencingErrorCode

	// Command is the navigation command being processed.
	Command model.NavigationCommand

	// ActivityKey is the activity the violation relates to, when one is
	// identifiable.
	ActivityKey string
}

// Error implements the error interface.
func (e *SequencingError) Error() string {
	if e.ActivityKey != "" {
		return fmt.Sprintf("sequencing rule %s violated (command=%s, activity=%s)", e.Code, e.Command, e.ActivityKey)
	}
	return fmt.Sprintf("sequencing rule %s violated (command=%s)", e.Code, e.Command)
}

// IsSequencingError reports whether err is (or wraps) a SequencingError.
func IsSequencingError(err error) bool {
	var se *SequencingError
	return errors.As(err, &se)
}

// SequencingCode extracts the rule code from err, or "" when err is not
// a sequencing error.
func SequencingCode(err error) SequencingErrorCode {
	var se *SequencingError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

func newSequencingError(code SequencingErrorCode, cmd model.NavigationCommand, key string) *SequencingError {
	return &SequencingError{Code: code, Command: cmd, ActivityKey: key}
}

// ModeError reports an operation invoked on a navigator mode that does
// not support it (for example Reactivate outside RandomAccess, or a
// command other than Continue/Previous during auto-grading).
type ModeError struct {
	Mode      Mode
	Operation string
}

func (e *ModeError) Error() string {
	return fmt.Sprintf("%s not allowed in %s mode", e.Operation, e.Mode)
}

// IsModeError reports whether err is (or wraps) a ModeError.
func IsModeError(err error) bool {
	var me *ModeError
	return errors.As(err, &me)
}
