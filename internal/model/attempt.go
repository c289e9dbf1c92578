package model

import "time"

// AttemptStatus is the lifecycle state of an attempt.
type AttemptStatus string

const (
	AttemptActive    AttemptStatus = "active"
	AttemptSuspended AttemptStatus = "suspended"
	AttemptCompleted AttemptStatus = "completed"
	AttemptAbandoned AttemptStatus = "abandoned"
)

// Ended reports whether the attempt reached a terminal status.
func (s AttemptStatus) Ended() bool {
	return s == AttemptCompleted || s == AttemptAbandoned
}

// LoggingFlags select which sequencing events are logged for an attempt.
type LoggingFlags int

const (
	LogNone       LoggingFlags = 0
	LogSequencing LoggingFlags = 1 << iota
	LogDetail
	LogFinal
)

// PackageFormat identifies the content package generation. Auto-grading
// on exit applies only to FormatV1p2-style packages, which cannot grade
// themselves.
type PackageFormat string

const (
	FormatV1p2 PackageFormat = "v1.2"
	FormatV1p3 PackageFormat = "v1.3"
)

// Attempt is one learner's execution of one organization (root activity)
// of one package. Created transactionally together with one persisted
// row per activity in its tree; status transitions are driven exclusively
// by navigator commands.
type Attempt struct {
	ID   int64
	GUID string

	LearnerID      int64
	PackageID      int64
	RootActivityID int64

	PackageFormat PackageFormat

	// ObjectivesGlobalToSystem scopes global objectives to the learner
	// across all packages when true, or to this organization when false.
	ObjectivesGlobalToSystem bool

	Status AttemptStatus

	StartedAt time.Time

	// EndedAt is set on the transition into Completed or Abandoned.
	EndedAt *time.Time

	LoggingFlags LoggingFlags

	// CurrentActivityID / SuspendedActivityID persist the navigator's
	// pointers between sessions; 0 when unset.
	CurrentActivityID   int64
	SuspendedActivityID int64

	CompletionStatus CompletionStatus
	SuccessStatus    SuccessStatus

	// TotalPoints is the rolled-up score as a percentage; nil when unknown.
	TotalPoints *float64
}

// UpdateStatus applies the status transition implied by a navigation
// command that ended or suspended the sequencing session. now supplies
// the end timestamp for terminal transitions.
func (at *Attempt) UpdateStatus(command NavigationCommand, shouldExit bool, now time.Time) {
	switch {
	case command == AbandonAll || command == Abandon:
		at.Status = AttemptAbandoned
	case command == SuspendAll:
		at.Status = AttemptSuspended
	case shouldExit:
		at.Status = AttemptCompleted
	default:
		return
	}
	if at.Status.Ended() && at.EndedAt == nil {
		t := now
		at.EndedAt = &t
	}
}
