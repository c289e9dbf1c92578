package model

import "time"

// CompletionStatus is the learner's progress through an activity.
type CompletionStatus string

const (
	CompletionUnknown      CompletionStatus = "unknown"
	CompletionCompleted    CompletionStatus = "completed"
	CompletionIncomplete   CompletionStatus = "incomplete"
	CompletionNotAttempted CompletionStatus = "notAttempted"
)

// SuccessStatus is the learner's mastery of an activity or objective.
type SuccessStatus string

const (
	SuccessUnknown SuccessStatus = "unknown"
	SuccessPassed  SuccessStatus = "passed"
	SuccessFailed  SuccessStatus = "failed"
)

// ExitMode is the exit intent content may set before handing control
// back to the sequencer.
type ExitMode string

const (
	ExitModeUndetermined ExitMode = ""
	ExitModeNormal       ExitMode = "normal"
	ExitModeSuspended    ExitMode = "suspended"
	ExitModeTimeOut      ExitMode = "timeout"
	ExitModeLogout       ExitMode = "logout"
)

// Objective is one objective of an activity. Every tracked activity has
// exactly one primary objective; additional named objectives may map to
// global objectives shared across the package or the whole store.
type Objective struct {
	// Key is the manifest objective identifier; empty for an anonymous
	// primary objective.
	Key string

	// Primary marks the objective whose status rolls up to the activity.
	Primary bool

	// ProgressStatus reports whether SuccessStatus is known.
	ProgressStatus bool

	SuccessStatus SuccessStatus

	// ScaledScore is the normalized measure in [-1, 1]; nil when unknown.
	ScaledScore *float64

	// GlobalKey names the mapped global objective; empty when unmapped.
	GlobalKey string

	// Read/write gates for the global objective mapping.
	ReadSatisfiedStatus    bool
	ReadNormalizedMeasure  bool
	WriteSatisfiedStatus   bool
	WriteNormalizedMeasure bool
}

// NavigationRequest is the pending navigation intent set by content on
// the current activity, consumed by ProcessDataModelNavigation.
type NavigationRequest struct {
	ExitMode ExitMode

	// Command is the requested command; nil when content requested none.
	Command *NavigationCommand

	// Destination is the Choose target key; meaningful only when Command
	// is Choose.
	Destination string
}

// DataModel is the mutable runtime state of one activity for one attempt.
// It is read and written by content during delivery and by rollup during
// termination processing.
type DataModel struct {
	// ActivityIsActive is set while an attempt on the activity is open.
	ActivityIsActive bool

	// ActivityIsSuspended survives a SuspendAll so the next delivery
	// resumes instead of starting a new attempt on the activity.
	ActivityIsSuspended bool

	// ActivityAttemptCount counts attempts begun on this activity.
	ActivityAttemptCount int

	// ActivityProgressStatus reports whether the activity has ever been
	// attempted.
	ActivityProgressStatus bool

	// AttemptProgressStatus reports whether CompletionStatus is known for
	// the current attempt on the activity.
	AttemptProgressStatus bool

	CompletionStatus CompletionStatus
	SuccessStatus    SuccessStatus

	// ScaledScore is the raw score reported by content; nil when unknown.
	ScaledScore *float64

	// Objectives holds the primary objective first, then named objectives
	// in manifest order.
	Objectives []Objective

	SessionTime time.Duration
	TotalTime   time.Duration

	// NavigationRequest is the pending intent set by content.
	NavigationRequest NavigationRequest

	// Dirty marks the data model as needing persistence. Cleared by a
	// successful save.
	Dirty bool
}

// PrimaryObjective returns the activity's primary objective, creating an
// anonymous one on first use.
func (dm *DataModel) PrimaryObjective() *Objective {
	for i := range dm.Objectives {
		if dm.Objectives[i].Primary {
			return &dm.Objectives[i]
		}
	}
	dm.Objectives = append(dm.Objectives, Objective{Primary: true, SuccessStatus: SuccessUnknown})
	return &dm.Objectives[len(dm.Objectives)-1]
}

// ClearAttemptProgressInfo resets per-attempt progress state. Applied
// when a new attempt begins on an activity whose sequencing scopes
// progress data to the current attempt.
func (dm *DataModel) ClearAttemptProgressInfo() {
	dm.AttemptProgressStatus = false
	dm.CompletionStatus = CompletionUnknown
	dm.Dirty = true
}

// ClearAttemptObjectiveInfo resets per-attempt objective state.
func (dm *DataModel) ClearAttemptObjectiveInfo() {
	dm.SuccessStatus = SuccessUnknown
	dm.ScaledScore = nil
	for i := range dm.Objectives {
		dm.Objectives[i].ProgressStatus = false
		dm.Objectives[i].SuccessStatus = SuccessUnknown
		dm.Objectives[i].ScaledScore = nil
	}
	dm.Dirty = true
}

// ClearNavigationRequest resets the pending navigation intent after it
// has been processed.
func (dm *DataModel) ClearNavigationRequest() {
	dm.NavigationRequest = NavigationRequest{}
	dm.Dirty = true
}
