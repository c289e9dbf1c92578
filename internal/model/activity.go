package model

// ResourceType identifies what kind of content an activity delivers.
type ResourceType string

const (
	// ResourceNone marks a pure aggregation node with no deliverable content.
	ResourceNone ResourceType = "none"

	// ResourceSco marks trackable content that talks to the runtime data model.
	ResourceSco ResourceType = "sco"

	// ResourceWeb marks static web content delivered without tracking.
	ResourceWeb ResourceType = "web"
)

// Timing controls when selection or randomization is applied to a
// cluster's children.
type Timing string

const (
	TimingNever            Timing = "never"
	TimingOnce             Timing = "once"
	TimingOnEachNewAttempt Timing = "onEachNewAttempt"
)

// RollupChildSet selects which children contribute to a rollup rule.
type RollupChildSet string

const (
	ChildSetAll            RollupChildSet = "all"
	ChildSetAny            RollupChildSet = "any"
	ChildSetNone           RollupChildSet = "none"
	ChildSetAtLeastCount   RollupChildSet = "atLeastCount"
	ChildSetAtLeastPercent RollupChildSet = "atLeastPercent"
)

// RollupAction is the status a rollup rule sets on the parent when its
// conditions hold across the selected child set.
type RollupAction string

const (
	RollupSatisfied    RollupAction = "satisfied"
	RollupNotSatisfied RollupAction = "notSatisfied"
	RollupCompleted    RollupAction = "completed"
	RollupIncomplete   RollupAction = "incomplete"
)

// RollupCondition is a single per-child predicate inside a rollup rule.
type RollupCondition struct {
	// Condition names the child state tested: "satisfied", "completed",
	// "attempted", "objectiveStatusKnown", "objectiveMeasureKnown".
	Condition string `yaml:"condition"`

	// Not inverts the condition result.
	Not bool `yaml:"not,omitempty"`
}

// ConditionCombination says how multiple conditions combine.
type ConditionCombination string

const (
	CombinationAll ConditionCombination = "all"
	CombinationAny ConditionCombination = "any"
)

// RollupRule aggregates child status into a parent status.
type RollupRule struct {
	ChildActivitySet RollupChildSet       `yaml:"childActivitySet"`
	MinimumCount     int                  `yaml:"minimumCount,omitempty"`
	MinimumPercent   float64              `yaml:"minimumPercent,omitempty"`
	Combination      ConditionCombination `yaml:"conditionCombination,omitempty"`
	Conditions       []RollupCondition    `yaml:"conditions"`
	Action           RollupAction         `yaml:"action"`
}

// RuleAction is the action taken when a sequencing condition rule fires.
type RuleAction string

const (
	ActionExit       RuleAction = "exit"
	ActionExitAll    RuleAction = "exitAll"
	ActionExitParent RuleAction = "exitParent"
	ActionRetry      RuleAction = "retry"
	ActionRetryAll   RuleAction = "retryAll"
	ActionContinue   RuleAction = "continue"
	ActionPrevious   RuleAction = "previous"
)

// ConditionRule is a condition rule attached to an activity's sequencing
// block (exit or post-condition set).
type ConditionRule struct {
	// Condition names the activity state tested: "satisfied", "completed",
	// "attempted", "always", "attemptLimitExceeded".
	Condition   string               `yaml:"condition"`
	Not         bool                 `yaml:"not,omitempty"`
	Combination ConditionCombination `yaml:"conditionCombination,omitempty"`
	Action      RuleAction           `yaml:"action"`
}

// SequencingInfo is the static sequencing definition for one activity.
// It is read-only once the tree is materialized for an attempt, except
// that selection/randomization may reorder or prune children exactly once.
type SequencingInfo struct {
	// Choice permits Choose navigation targeting this activity's children.
	Choice bool

	// ChoiceExit permits Choose navigation to leave this activity's subtree.
	ChoiceExit bool

	// Flow enables automatic Continue/Previous traversal into children.
	Flow bool

	// ForwardOnly forbids Previous traversal among this activity's children.
	ForwardOnly bool

	// Tracked enables status tracking, rollup, and global objective access.
	Tracked bool

	// CompletionSetByContent and ObjectiveSetByContent suppress the
	// sequencer's default completion/objective assignment at attempt end.
	CompletionSetByContent bool
	ObjectiveSetByContent  bool

	// AttemptLimit caps attempts on this activity (0 = unlimited).
	AttemptLimit int

	// SelectionTiming and SelectionCount prune children at tree
	// construction time (SelectionCount ignored unless timing is Once and
	// the count is below the current child count).
	SelectionTiming Timing
	SelectionCount  int

	// RandomizationTiming and ReorderChildren shuffle children at tree
	// construction, or again on each new attempt on the cluster.
	RandomizationTiming Timing
	ReorderChildren     bool

	// RollupObjectiveSatisfied and RollupProgressCompletion include this
	// activity in its parent's objective/progress rollup.
	RollupObjectiveSatisfied bool
	RollupProgressCompletion bool

	// ObjectiveMeasureWeight weights this activity in measure rollup.
	ObjectiveMeasureWeight float64

	// SatisfiedByMeasure derives the satisfied status from the rolled-up
	// measure against MinNormalizedMeasure instead of rollup rules.
	SatisfiedByMeasure   bool
	MinNormalizedMeasure float64

	// RollupRules configure child-status aggregation.
	RollupRules []RollupRule

	// ExitConditionRules and PostConditionRules are evaluated during
	// termination processing.
	ExitConditionRules []ConditionRule
	PostConditionRules []ConditionRule

	// UseCurrentAttemptObjectiveInfo / UseCurrentAttemptProgressInfo reset
	// the respective data on each new attempt on the activity.
	UseCurrentAttemptObjectiveInfo bool
	UseCurrentAttemptProgressInfo  bool
}

// DefaultSequencing returns the sequencing block applied when a manifest
// omits one: tracked, current-attempt-scoped data, no flow or choice
// restrictions beyond the defaults.
func DefaultSequencing() SequencingInfo {
	return SequencingInfo{
		Choice:                         true,
		ChoiceExit:                     true,
		Tracked:                        true,
		RollupObjectiveSatisfied:       true,
		RollupProgressCompletion:       true,
		ObjectiveMeasureWeight:         1.0,
		SelectionTiming:                TimingNever,
		RandomizationTiming:            TimingNever,
		UseCurrentAttemptObjectiveInfo: true,
		UseCurrentAttemptProgressInfo:  true,
	}
}

// Activity is one node of the learning content hierarchy. Identity is a
// stable manifest-derived Key plus a store-assigned ID (zero until the
// attempt's rows are committed). Tree structure is held externally by
// internal/tree, so Activity carries no parent/child pointers.
type Activity struct {
	// ID is the store-assigned attempt-activity row id; 0 until persisted.
	ID int64

	// PackageActivityID is the manifest row this attempt node was built from.
	PackageActivityID int64

	// ParentID is the store id of the parent attempt-activity row; 0 for
	// the root. Backfilled together with ID after commit.
	ParentID int64

	// Key is the manifest identifier, NFC-normalized at import.
	Key string

	Title string

	// Placement is the 0-based manifest order among siblings.
	Placement int

	// RandomPlacement is the post-randomization 0-based order; -1 when
	// randomization has not assigned one. Sorts ahead of Placement.
	RandomPlacement int

	ResourceType ResourceType
	ResourceKey  string

	// Visible reflects the manifest isvisible attribute; drives
	// IsVisibleForNavigation in the table of contents.
	Visible bool

	Sequencing SequencingInfo
	DataModel  DataModel
}

// HasDeliverableContent reports whether this activity has an actual piece
// of content to present, as opposed to a pure structural grouping node.
// Review navigation and auto-grading traverse only deliverable activities.
func (a *Activity) HasDeliverableContent() bool {
	return a.ResourceKey != ""
}
