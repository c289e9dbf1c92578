package nav

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/sequent/internal/model"
	"github.com/roach88/sequent/internal/tree"
)

// GlobalObjective is the shared satisfied-status/measure slot a local
// objective may map to. Scoped to the learner, or to the organization
// when the package does not mark objectives global to the system.
type GlobalObjective struct {
	Key string

	// SatisfiedStatus / NormalizedMeasure are nil while unknown.
	SatisfiedStatus   *bool
	NormalizedMeasure *float64

	// Changed marks the objective for the next save delta.
	Changed bool
}

// Clock supplies the attempt end timestamps. Injectable so tests can fix
// time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// LoadResult is what a Persister materializes for a navigator.
type LoadResult struct {
	Tree    *tree.Tree
	Attempt *model.Attempt
	Globals map[string]*GlobalObjective
}

// Delta is the minimal change set handed to the persister. Empty deltas
// must be a no-op on the caller side; the persister applies a non-empty
// delta all-or-nothing.
type Delta struct {
	// Attempt is included when navigation pointers, status, or points
	// changed; which of those apply is flagged below.
	Attempt            *model.Attempt
	NavigationChanged  bool
	StatusChanged      bool
	TotalPointsChanged bool

	// Activities are the dirty activity data models, keyed by their
	// store-assigned ids.
	Activities []*model.Activity

	// Globals are the changed global objectives.
	Globals []*GlobalObjective
}

// Empty reports whether the delta carries nothing to persist.
func (d *Delta) Empty() bool {
	return d.Attempt == nil && len(d.Activities) == 0 && len(d.Globals) == 0
}

// Persister is the storage boundary of a navigator: one load of the
// attempt's tree, and atomic application of save deltas.
type Persister interface {
	LoadTree(ctx context.Context) (*LoadResult, error)
	SaveDelta(ctx context.Context, d *Delta) error
}

// Data is the in-memory navigator state: the activity tree, the attempt
// snapshot, and the current/suspended pointers. Exclusively owned by one
// Navigator; never shared across goroutines.
type Data struct {
	Tree    *tree.Tree
	Attempt *model.Attempt

	// Current / Suspended are tree node handles; tree.None when unset.
	Current   int
	Suspended int

	Globals map[string]*GlobalObjective

	// changed marks navigation pointers as modified since the last save;
	// statusChanged and totalPointsChanged track the attempt row fields.
	changed            bool
	statusChanged      bool
	totalPointsChanged bool

	logger *slog.Logger

	// command is the navigation command currently being processed, kept
	// for sequencing log records.
	command model.NavigationCommand
}

// NewData wraps a loaded tree and attempt. Pointers are restored from
// the attempt row when set.
func NewData(res *LoadResult, logger *slog.Logger) *Data {
	d := &Data{
		Tree:      res.Tree,
		Attempt:   res.Attempt,
		Current:   tree.None,
		Suspended: tree.None,
		Globals:   res.Globals,
		logger:    logger,
	}
	if d.Globals == nil {
		d.Globals = make(map[string]*GlobalObjective)
	}
	if i, ok := res.Tree.ByActivityID(res.Attempt.CurrentActivityID); ok {
		d.Current = i
	}
	if i, ok := res.Tree.ByActivityID(res.Attempt.SuspendedActivityID); ok {
		d.Suspended = i
	}
	return d
}

// CurrentActivity returns the current activity, or nil when navigation
// has not delivered one.
func (d *Data) CurrentActivity() *model.Activity {
	if d.Current == tree.None {
		return nil
	}
	return d.Tree.Activity(d.Current)
}

// RootActivity returns the root of the attempt's tree.
func (d *Data) RootActivity() *model.Activity {
	return d.Tree.Activity(d.Tree.Root())
}

// activity is shorthand used throughout the sequencing process.
func (d *Data) activity(i int) *model.Activity {
	return d.Tree.Activity(i)
}

// markDirty flags an activity's data model for the next save delta.
func (d *Data) markDirty(i int) {
	d.Tree.Activity(i).DataModel.Dirty = true
}

// clone deep-copies the navigator data for mutation-free validity
// checks. Global objectives are copied so speculative writes cannot
// leak.
func (d *Data) clone() *Data {
	globals := make(map[string]*GlobalObjective, len(d.Globals))
	for k, g := range d.Globals {
		dup := *g
		if g.SatisfiedStatus != nil {
			v := *g.SatisfiedStatus
			dup.SatisfiedStatus = &v
		}
		if g.NormalizedMeasure != nil {
			v := *g.NormalizedMeasure
			dup.NormalizedMeasure = &v
		}
		globals[k] = &dup
	}
	attempt := *d.Attempt
	return &Data{
		Tree:      d.Tree.Clone(),
		Attempt:   &attempt,
		Current:   d.Current,
		Suspended: d.Suspended,
		Globals:   globals,
		logger:    d.logger,
	}
}

// logSequencing records a sequencing event when the attempt's logging
// flags request it.
func (d *Data) logSequencing(event string, args ...any) {
	if d.Attempt.LoggingFlags&model.LogSequencing == 0 {
		return
	}
	all := append([]any{"command", d.command.String()}, args...)
	d.logger.Info(event, all...)
}
