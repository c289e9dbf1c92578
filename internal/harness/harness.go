// Package harness runs YAML-defined navigation scenarios against an
// in-memory store and compares their traces against golden files. A
// scenario exercises the whole stack: CUE package compilation, import,
// attempt creation, session navigation, and persistence.
package harness

import (
	"context"
	"fmt"

	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/sequent/internal/manifest"
	"github.com/roach88/sequent/internal/model"
	"github.com/roach88/sequent/internal/nav"
	"github.com/roach88/sequent/internal/session"
	"github.com/roach88/sequent/internal/store"
	"github.com/roach88/sequent/internal/testutil"
	"github.com/roach88/sequent/internal/tree"
)

// TraceEvent records one executed step and the session state after it.
type TraceEvent struct {
	Seq     int    `json:"seq"`
	Op      string `json:"op"`
	Target  string `json:"target,omitempty"`
	Error   string `json:"error,omitempty"`
	Current string `json:"current,omitempty"`
	Status  string `json:"status"`
}

// Result is the outcome of one scenario run.
type Result struct {
	ScenarioName string
	Passed       bool
	Failures     []string
	Trace        []TraceEvent
}

// Run executes a scenario in a fresh in-memory store with a fixed clock
// and seeded randomness. Expectation mismatches land in
// Result.Failures; infrastructure errors (bad CUE, store failures)
// return an error instead.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:",
		store.WithClock(testutil.NewFixedClock()),
		store.WithRandomSource(tree.NewSeededSource(scenario.seed())),
	)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	pkgValue := cuecontext.New().CompileString(scenario.Package)
	if err := pkgValue.Err(); err != nil {
		return nil, fmt.Errorf("compile package: %w", err)
	}
	pkg, err := manifest.Compile(pkgValue)
	if err != nil {
		return nil, fmt.Errorf("compile package: %w", err)
	}
	_, rootID, err := manifest.Import(ctx, st, pkg)
	if err != nil {
		return nil, fmt.Errorf("import package: %w", err)
	}

	learnerID, err := st.CreateLearner(ctx, scenario.learner(), scenario.learner())
	if err != nil {
		return nil, fmt.Errorf("create learner: %w", err)
	}
	if err := st.GrantRight(ctx, learnerID, store.CreateAttemptRight); err != nil {
		return nil, fmt.Errorf("grant right: %w", err)
	}
	for _, right := range scenario.Grants {
		if err := st.GrantRight(ctx, learnerID, store.Right(right)); err != nil {
			return nil, fmt.Errorf("grant right %q: %w", right, err)
		}
	}

	attempt, err := st.CreateAttempt(ctx, learnerID, rootID, model.LogSequencing)
	if err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	view, err := scenario.view()
	if err != nil {
		return nil, err
	}
	sess := session.New(view, st.Persister(attempt.ID),
		session.WithClock(testutil.NewFixedClock()),
		session.WithRandomSource(tree.NewSeededSource(scenario.seed())),
	)
	if err := sess.Begin(ctx); err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}

	result := &Result{ScenarioName: scenario.Name, Passed: true}
	for i, step := range scenario.Steps {
		stepErr := runStep(ctx, sess, step)
		event := TraceEvent{
			Seq:     i + 1,
			Op:      step.Do,
			Target:  step.Target,
			Error:   errorLabel(stepErr),
			Current: sess.CurrentActivityKey(),
			Status:  sess.Status().String(),
		}
		result.Trace = append(result.Trace, event)
		checkStep(result, i+1, step, event)
	}
	return result, nil
}

func runStep(ctx context.Context, sess *session.Session, step Step) error {
	switch step.Do {
	case "start":
		return sess.Start(ctx, true)
	case "continue":
		return sess.MoveToNext(ctx)
	case "previous":
		return sess.MoveToPrevious(ctx)
	case "choose":
		return sess.MoveToActivity(ctx, step.Target)
	case "suspend":
		return sess.Suspend(ctx)
	case "resume":
		return sess.Resume(ctx)
	case "exit":
		return sess.Exit(ctx)
	case "abandon":
		return sess.Abandon(ctx)
	case "reactivate":
		return sess.Navigator().Reactivate(ctx)
	case "commit":
		return sess.CommitChanges(ctx)
	default:
		return fmt.Errorf("unknown operation %q", step.Do)
	}
}

// errorLabel folds a step error into the stable label the trace and
// expectations use.
func errorLabel(err error) string {
	switch {
	case err == nil:
		return ""
	case nav.IsSequencingError(err):
		return string(nav.SequencingCode(err))
	case session.IsInvalidPackageError(err):
		return "invalidPackage"
	case session.IsInvalidOperationError(err):
		return "invalidOperation"
	case nav.IsModeError(err):
		return "modeError"
	default:
		return err.Error()
	}
}

func checkStep(result *Result, seq int, step Step, event TraceEvent) {
	if step.Expect == nil {
		return
	}
	fail := func(format string, args ...any) {
		result.Passed = false
		result.Failures = append(result.Failures,
			fmt.Sprintf("step %d (%s): ", seq, step.Do)+fmt.Sprintf(format, args...))
	}

	if step.Expect.Error != event.Error {
		switch {
		case step.Expect.Error == "":
			fail("unexpected error %q", event.Error)
		case event.Error == "":
			fail("expected error %q, step succeeded", step.Expect.Error)
		default:
			fail("expected error %q, got %q", step.Expect.Error, event.Error)
		}
	}
	if step.Expect.Current != "" && step.Expect.Current != event.Current {
		fail("current activity = %q, expected %q", event.Current, step.Expect.Current)
	}
	if step.Expect.Status != "" && step.Expect.Status != event.Status {
		fail("status = %q, expected %q", event.Status, step.Expect.Status)
	}
}
