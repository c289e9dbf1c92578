package nav

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/roach88/sequent/internal/model"
	"github.com/roach88/sequent/internal/tree"
)

// Mode selects the navigation policy.
type Mode int

const (
	// ModeExecute enforces the full sequencing process and persists
	// navigation state.
	ModeExecute Mode = iota

	// ModeReview traverses deliverable content only and never persists.
	ModeReview

	// ModeRandomAccess steps the plain preorder with no rule enforcement
	// and persists data-model changes only.
	ModeRandomAccess
)

func (m Mode) String() string {
	switch m {
	case ModeExecute:
		return "execute"
	case ModeReview:
		return "review"
	case ModeRandomAccess:
		return "randomAccess"
	default:
		return "unknown"
	}
}

// ErrAttemptNotEnded is returned by operations that require a completed
// or abandoned attempt.
var ErrAttemptNotEnded = errors.New("attempt is not completed or abandoned")

// Navigator is the state machine over one attempt's activity tree. A
// navigator instance is exclusively owned by one session and is not safe
// for concurrent use; concurrency across different attempts is fine
// because instances share no mutable state.
type Navigator struct {
	mode      Mode
	persister Persister
	rnd       tree.Source
	clock     Clock
	logger    *slog.Logger

	// data is nil until LoadActivityTree materializes the tree.
	data *Data

	autoGrade autoGradeState
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithRandomSource injects the randomness used for on-each-new-attempt
// cluster reordering.
func WithRandomSource(src tree.Source) Option {
	return func(n *Navigator) { n.rnd = src }
}

// WithClock injects the clock used for attempt end timestamps.
func WithClock(c Clock) Option {
	return func(n *Navigator) { n.clock = c }
}

// WithLogger sets the navigator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Navigator) { n.logger = l }
}

// New creates a navigator over the given persistence boundary.
func New(mode Mode, p Persister, opts ...Option) *Navigator {
	n := &Navigator{
		mode:      mode,
		persister: p,
		rnd:       tree.NewSystemSource(),
		clock:     SystemClock{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Mode returns the navigator's policy mode.
func (n *Navigator) Mode() Mode { return n.mode }

// Data exposes the loaded navigator data; nil before the first load.
func (n *Navigator) Data() *Data { return n.data }

// Attempt returns the loaded attempt snapshot; nil before the first load.
func (n *Navigator) Attempt() *model.Attempt {
	if n.data == nil {
		return nil
	}
	return n.data.Attempt
}

// CurrentActivity returns the current activity, or nil.
func (n *Navigator) CurrentActivity() *model.Activity {
	if n.data == nil {
		return nil
	}
	return n.data.CurrentActivity()
}

// SuspendedActivity returns the suspended activity, or nil.
func (n *Navigator) SuspendedActivity() *model.Activity {
	if n.data == nil || n.data.Suspended == tree.None {
		return nil
	}
	return n.data.activity(n.data.Suspended)
}

// Changed reports whether navigation state has mutated since the last
// successful save.
func (n *Navigator) Changed() bool {
	return n.data != nil && (n.data.changed || n.data.statusChanged || n.data.totalPointsChanged)
}

// LoadActivityTree lazily materializes the tree from storage. Idempotent:
// a no-op on every call after the first.
func (n *Navigator) LoadActivityTree(ctx context.Context) error {
	if n.data != nil {
		return nil
	}
	res, err := n.persister.LoadTree(ctx)
	if err != nil {
		return err
	}
	n.data = NewData(res, n.logger)
	switch n.mode {
	case ModeReview:
		// Review has no persisted current pointer; start at the first
		// deliverable activity.
		for _, i := range n.data.Tree.PreOrder() {
			if n.data.activity(i).HasDeliverableContent() {
				n.data.Current = i
				break
			}
		}
		if n.data.Current != tree.None {
			readGlobalObjectives(n.data, n.data.Current)
		}
	case ModeRandomAccess:
		n.data.Current = n.data.Tree.Root()
		readGlobalObjectives(n.data, n.data.Current)
	}
	return nil
}

// Navigate executes a navigation command. On failure the returned error
// is a SequencingError carrying the violated rule code, or a ModeError
// when the command is outside the mode's policy.
func (n *Navigator) Navigate(ctx context.Context, cmd model.NavigationCommand) error {
	if err := n.LoadActivityTree(ctx); err != nil {
		return err
	}
	if n.autoGrade.active {
		return n.autoGradeNavigate(cmd)
	}
	switch n.mode {
	case ModeExecute:
		if cmd == model.ChoiceStart {
			return n.choiceStart()
		}
		return n.executeNavigate(cmd, tree.None)
	case ModeReview:
		return n.reviewNavigate(cmd)
	default:
		return n.randomNavigate(cmd)
	}
}

// NavigateTo executes a choice navigation to the activity with the given
// manifest key.
func (n *Navigator) NavigateTo(ctx context.Context, key string) error {
	if err := n.LoadActivityTree(ctx); err != nil {
		return err
	}
	if n.autoGrade.active {
		return &ModeError{Mode: n.mode, Operation: "choice navigation during auto-grading"}
	}
	d := n.data
	dest, ok := d.Tree.ByKey(key)
	if !ok {
		return newSequencingError(CodeTargetNotFound, model.Choose, key)
	}
	switch n.mode {
	case ModeExecute:
		return n.executeNavigate(model.Choose, dest)
	case ModeReview:
		return n.reviewNavigateTo(dest)
	default:
		d.Current = dest
		d.changed = true
		readGlobalObjectives(d, dest)
		return nil
	}
}

// IsNavigationValid reports whether Navigate(cmd) would succeed. Never
// mutates state: Execute evaluates the sequencing process against a deep
// clone.
func (n *Navigator) IsNavigationValid(ctx context.Context, cmd model.NavigationCommand) (bool, error) {
	if err := n.LoadActivityTree(ctx); err != nil {
		return false, err
	}
	d := n.data
	if n.autoGrade.active {
		if cmd != model.Continue && cmd != model.Previous {
			return false, nil
		}
		_, err := n.deliverableStep(d.Current, cmd == model.Continue)
		return err == nil, nil
	}
	switch n.mode {
	case ModeExecute:
		clone := d.clone()
		p := &seqProc{d: clone, rnd: dryRunSource{}}
		_, err := p.overallSequencingProcess(cmd, tree.None)
		if err != nil {
			if IsSequencingError(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	case ModeReview:
		if d.Current == tree.None || (cmd != model.Continue && cmd != model.Previous) {
			return false, nil
		}
		_, err := n.deliverableStep(d.Current, cmd == model.Continue)
		return err == nil, nil
	default:
		if d.Current == tree.None || (cmd != model.Continue && cmd != model.Previous) {
			return false, nil
		}
		if cmd == model.Continue {
			return d.Tree.Next(d.Current) != tree.None, nil
		}
		return d.Tree.Prev(d.Current) != tree.None, nil
	}
}

// IsNavigationToValid reports whether NavigateTo(key) would succeed.
func (n *Navigator) IsNavigationToValid(ctx context.Context, key string) (bool, error) {
	if err := n.LoadActivityTree(ctx); err != nil {
		return false, err
	}
	if n.autoGrade.active {
		return false, nil
	}
	dest, ok := n.data.Tree.ByKey(key)
	if !ok {
		return false, nil
	}
	switch n.mode {
	case ModeExecute:
		clone := n.data.clone()
		cloneDest, _ := clone.Tree.ByKey(key)
		p := &seqProc{d: clone, rnd: dryRunSource{}}
		_, err := p.overallSequencingProcess(model.Choose, cloneDest)
		if err != nil {
			if IsSequencingError(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	case ModeReview:
		if n.data.activity(dest).HasDeliverableContent() {
			return true, nil
		}
		_, err := n.deliverableStep(dest, true)
		return err == nil, nil
	default:
		return true, nil
	}
}

// dryRunSource feeds the sequencing process when it runs against a
// clone for a validity check. The simulated delivery may re-randomize
// an on-each-new-attempt cluster; drawing from the live stream there
// would shift the values the real navigation later consumes.
type dryRunSource struct{}

func (dryRunSource) Intn(int) int { return 0 }

// executeNavigate runs the full sequencing process and applies the
// resulting attempt status transition.
func (n *Navigator) executeNavigate(cmd model.NavigationCommand, dest int) error {
	d := n.data
	prevCurrent, prevSuspended := d.Current, d.Suspended
	p := &seqProc{d: d, rnd: n.rnd}
	exitSession, err := p.overallSequencingProcess(cmd, dest)
	if err != nil {
		return err
	}
	prevStatus := d.Attempt.Status
	d.Attempt.UpdateStatus(cmd, exitSession, n.clock.Now())
	if !exitSession && d.Attempt.Status == model.AttemptSuspended {
		// A delivery against a suspended attempt resumes it.
		d.Attempt.Status = model.AttemptActive
	}
	if d.Attempt.Status != prevStatus {
		d.statusChanged = true
	}
	if d.Current != prevCurrent || d.Suspended != prevSuspended {
		d.changed = true
	}
	return nil
}

// choiceStart delivers the first deliverable leaf that accepts a choice
// navigation, trying leaves left to right. Used when Start cannot
// identify an initial activity.
func (n *Navigator) choiceStart() error {
	d := n.data
	var lastErr error
	for _, i := range d.Tree.PreOrder() {
		a := d.activity(i)
		if !d.Tree.IsLeaf(i) || !a.HasDeliverableContent() {
			continue
		}
		if err := n.executeNavigate(model.Choose, i); err != nil {
			if IsSequencingError(err) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return newSequencingError(CodeNothingToDeliver, model.ChoiceStart, "")
}

// deliverableStep finds the nearest deliverable activity from i in the
// given preorder direction, skipping pure aggregation nodes.
func (n *Navigator) deliverableStep(i int, forward bool) (int, error) {
	d := n.data
	step := d.Tree.Prev
	code := CodeNoPreviousActivity
	cmd := model.Previous
	if forward {
		step = d.Tree.Next
		code = CodeNoNextActivity
		cmd = model.Continue
	}
	for j := step(i); j != tree.None; j = step(j) {
		if d.activity(j).HasDeliverableContent() {
			return j, nil
		}
	}
	return tree.None, newSequencingError(code, cmd, d.activity(i).Key)
}

// reviewNavigate restricts Continue/Previous to deliverable content.
func (n *Navigator) reviewNavigate(cmd model.NavigationCommand) error {
	d := n.data
	if cmd != model.Continue && cmd != model.Previous {
		return &ModeError{Mode: n.mode, Operation: cmd.String()}
	}
	if d.Current == tree.None {
		return newSequencingError(CodeNoCurrentActivity, cmd, "")
	}
	target, err := n.deliverableStep(d.Current, cmd == model.Continue)
	if err != nil {
		return err
	}
	d.Current = target
	readGlobalObjectives(d, target)
	return nil
}

// reviewNavigateTo lands on the target when it carries content, else
// auto-advances forward to the nearest deliverable activity.
func (n *Navigator) reviewNavigateTo(dest int) error {
	d := n.data
	if !d.activity(dest).HasDeliverableContent() {
		target, err := n.deliverableStep(dest, true)
		if err != nil {
			return newSequencingError(CodeChoiceTargetUndeliverable, model.Choose, d.activity(dest).Key)
		}
		dest = target
	}
	d.Current = dest
	readGlobalObjectives(d, dest)
	return nil
}

// randomNavigate steps the plain preorder with no skip predicate.
func (n *Navigator) randomNavigate(cmd model.NavigationCommand) error {
	d := n.data
	if cmd != model.Continue && cmd != model.Previous {
		return &ModeError{Mode: n.mode, Operation: cmd.String()}
	}
	if d.Current == tree.None {
		return newSequencingError(CodeNoCurrentActivity, cmd, "")
	}
	var target int
	if cmd == model.Continue {
		target = d.Tree.Next(d.Current)
		if target == tree.None {
			return newSequencingError(CodeNoNextActivity, cmd, d.activity(d.Current).Key)
		}
	} else {
		target = d.Tree.Prev(d.Current)
		if target == tree.None {
			return newSequencingError(CodeNoPreviousActivity, cmd, d.activity(d.Current).Key)
		}
	}
	d.Current = target
	d.changed = true
	readGlobalObjectives(d, target)
	return nil
}

// Reactivate flips a completed or abandoned attempt back to active so
// navigation may proceed. Only the RandomAccess mode supports it.
func (n *Navigator) Reactivate(ctx context.Context) error {
	if n.mode != ModeRandomAccess {
		return &ModeError{Mode: n.mode, Operation: "reactivate"}
	}
	if err := n.LoadActivityTree(ctx); err != nil {
		return err
	}
	d := n.data
	if !d.Attempt.Status.Ended() {
		return ErrAttemptNotEnded
	}
	d.Attempt.Status = model.AttemptActive
	d.Attempt.EndedAt = nil
	d.statusChanged = true
	return nil
}

// ProcessDataModelNavigation inspects the current activity's pending
// navigation intent set by content and triggers the corresponding
// navigation. Returns whether anything was triggered. Review and
// RandomAccess never act on data-model intent.
func (n *Navigator) ProcessDataModelNavigation(ctx context.Context) (bool, error) {
	if n.mode != ModeExecute {
		return false, nil
	}
	if err := n.LoadActivityTree(ctx); err != nil {
		return false, err
	}
	d := n.data
	if d.Current == tree.None {
		return false, nil
	}
	cur := d.activity(d.Current)
	req := cur.DataModel.NavigationRequest
	if req == (model.NavigationRequest{}) {
		return false, nil
	}
	// Clearing dirties the activity, so it only happens for a request
	// that actually carried intent.
	cur.DataModel.ClearNavigationRequest()

	switch req.ExitMode {
	case model.ExitModeTimeOut:
		return true, n.Navigate(ctx, model.ExitAll)
	case model.ExitModeLogout:
		return true, n.Navigate(ctx, model.SuspendAll)
	case model.ExitModeSuspended:
		cur.DataModel.ActivityIsSuspended = true
		cur.DataModel.ActivityIsActive = false
		d.markDirty(d.Current)
		rollupFromActivity(d, d.Current)
		return false, nil
	}

	if req.Command == nil {
		return false, nil
	}
	if *req.Command == model.Choose {
		return true, n.NavigateTo(ctx, req.Destination)
	}
	return true, n.Navigate(ctx, *req.Command)
}

// Save persists the mutated parts of the tree and attempt. A no-op when
// nothing changed; Review never persists, and RandomAccess persists
// data-model changes but not navigation or rollup state.
func (n *Navigator) Save(ctx context.Context) error {
	if n.data == nil || n.mode == ModeReview {
		return nil
	}
	d := n.data
	delta := &Delta{}

	for _, i := range d.Tree.PreOrder() {
		if d.activity(i).DataModel.Dirty {
			delta.Activities = append(delta.Activities, d.activity(i))
		}
	}
	for _, g := range d.Globals {
		if g.Changed {
			delta.Globals = append(delta.Globals, g)
		}
	}
	if n.mode == ModeExecute && (d.changed || d.statusChanged || d.totalPointsChanged) {
		if cur := d.CurrentActivity(); cur != nil {
			d.Attempt.CurrentActivityID = cur.ID
		} else {
			d.Attempt.CurrentActivityID = 0
		}
		if d.Suspended != tree.None {
			d.Attempt.SuspendedActivityID = d.activity(d.Suspended).ID
		} else {
			d.Attempt.SuspendedActivityID = 0
		}
		delta.Attempt = d.Attempt
		delta.NavigationChanged = d.changed
		delta.StatusChanged = d.statusChanged
		delta.TotalPointsChanged = d.totalPointsChanged
	}
	if delta.Empty() {
		return nil
	}
	if err := n.persister.SaveDelta(ctx, delta); err != nil {
		return err
	}
	// Dirty indicators clear only after a successful commit; a failed
	// save leaves them set so the caller may retry.
	for _, a := range delta.Activities {
		a.DataModel.Dirty = false
	}
	for _, g := range delta.Globals {
		g.Changed = false
	}
	d.changed = false
	d.statusChanged = false
	d.totalPointsChanged = false
	return nil
}
