package nav

import (
	"context"
	"errors"

	"github.com/roach88/sequent/internal/model"
	"github.com/roach88/sequent/internal/tree"
)

// Auto-grading lets an instructor walk the deliverable activities of an
// ended attempt and adjust scores without re-running sequencing. Only
// the Execute mode supports it; movement inside the sub-mode bypasses
// the sequencing rules entirely and touches nothing but the active flag
// on the activity being graded.

var (
	// ErrAutoGradingActive is returned when auto-grading is entered twice.
	ErrAutoGradingActive = errors.New("auto-grading mode is already active")

	// ErrNotAutoGrading is returned when leaving auto-grading without
	// having entered it.
	ErrNotAutoGrading = errors.New("auto-grading mode is not active")
)

type autoGradeState struct {
	active bool

	// savedCurrent restores the real current activity on exit.
	savedCurrent int
}

// BeginAutoGradingMode enters the grading sub-mode. The attempt must be
// completed or abandoned. The current pointer moves to the first
// deliverable activity; the pre-grading pointer is restored by
// EndAutoGradingMode.
func (n *Navigator) BeginAutoGradingMode(ctx context.Context) error {
	if n.mode != ModeExecute {
		return &ModeError{Mode: n.mode, Operation: "auto-grading"}
	}
	if err := n.LoadActivityTree(ctx); err != nil {
		return err
	}
	if n.autoGrade.active {
		return ErrAutoGradingActive
	}
	d := n.data
	if !d.Attempt.Status.Ended() {
		return ErrAttemptNotEnded
	}
	n.autoGrade.savedCurrent = d.Current
	first := tree.None
	for _, i := range d.Tree.PreOrder() {
		if d.activity(i).HasDeliverableContent() {
			first = i
			break
		}
	}
	if first == tree.None {
		return newSequencingError(CodeNothingToDeliver, model.Start, "")
	}
	n.autoGrade.active = true
	d.Current = first
	d.activity(first).DataModel.ActivityIsActive = true
	d.markDirty(first)
	return nil
}

// EndAutoGradingMode leaves the grading sub-mode and restores the
// pre-grading current activity.
func (n *Navigator) EndAutoGradingMode() error {
	if !n.autoGrade.active {
		return ErrNotAutoGrading
	}
	d := n.data
	if d.Current != tree.None {
		d.activity(d.Current).DataModel.ActivityIsActive = false
		d.markDirty(d.Current)
	}
	d.Current = n.autoGrade.savedCurrent
	n.autoGrade.active = false
	return nil
}

// AutoGrading reports whether the grading sub-mode is active.
func (n *Navigator) AutoGrading() bool { return n.autoGrade.active }

// autoGradeNavigate moves between deliverable activities without running
// the sequencing rules. Only Continue and Previous are permitted.
func (n *Navigator) autoGradeNavigate(cmd model.NavigationCommand) error {
	if cmd != model.Continue && cmd != model.Previous {
		return &ModeError{Mode: n.mode, Operation: cmd.String() + " during auto-grading"}
	}
	d := n.data
	target, err := n.deliverableStep(d.Current, cmd == model.Continue)
	if err != nil {
		return err
	}
	d.activity(d.Current).DataModel.ActivityIsActive = false
	d.markDirty(d.Current)
	d.Current = target
	d.activity(target).DataModel.ActivityIsActive = true
	d.markDirty(target)
	return nil
}
