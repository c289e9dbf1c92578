package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/sequent/internal/nav"
	"github.com/roach88/sequent/internal/session"
	"github.com/roach88/sequent/internal/store"
)

// NavOptions holds flags for the nav command.
type NavOptions struct {
	*RootOptions
	View string
}

var navCommands = []string{
	"start", "continue", "previous", "choose",
	"suspend", "resume", "exit", "abandon",
}

// NewNavCommand creates the nav command.
func NewNavCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NavOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "nav <attempt-id> <command> [target]",
		Short: "Navigate an attempt",
		Long: `Execute one navigation command against an attempt and persist the
result. Commands: start, continue, previous, choose <key>, suspend,
resume, exit, abandon.

A refused navigation prints the violated sequencing rule and exits
with status 1.

Example:
  sequent nav --db course.db 1 start
  sequent nav --db course.db 1 choose module-2`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNav(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.View, "view", "execute", "session view (execute|review|randomAccess)")

	return cmd
}

type navResult struct {
	AttemptID int64  `json:"attempt_id"`
	Command   string `json:"command"`
	Current   string `json:"current,omitempty"`
	Status    string `json:"status"`
}

func runNav(opts *NavOptions, args []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	attemptID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid attempt id", err)
	}
	op := args[1]
	if !validNavCommand(op) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown command %q", op))
	}
	if op == "choose" && len(args) < 3 {
		return NewExitError(ExitCommandError, "choose requires a target activity key")
	}

	view, err := parseView(opts.View)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid view", err)
	}

	st, err := store.Open(opts.Database, store.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	sess := session.New(view, st.Persister(attemptID), session.WithLogger(logger))
	if err := sess.Begin(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to load attempt", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	if err := navigate(ctx, sess, op, args); err != nil {
		if nav.IsSequencingError(err) || session.IsInvalidOperationError(err) || nav.IsModeError(err) {
			_ = f.Failure(err)
			return NewExitError(ExitFailure, "navigation refused")
		}
		return WrapExitError(ExitCommandError, "navigation failed", err)
	}

	if err := sess.CommitChanges(ctx); err != nil && !session.IsInvalidOperationError(err) {
		return WrapExitError(ExitCommandError, "failed to save attempt", err)
	}

	text := fmt.Sprintf("%s: status=%s", op, sess.Status())
	if key := sess.CurrentActivityKey(); key != "" {
		text = fmt.Sprintf("%s: current=%s status=%s", op, key, sess.Status())
	}
	return f.Success(text, navResult{
		AttemptID: attemptID,
		Command:   op,
		Current:   sess.CurrentActivityKey(),
		Status:    sess.Status().String(),
	})
}

func navigate(ctx context.Context, sess *session.Session, op string, args []string) error {
	switch op {
	case "start":
		return sess.Start(ctx, true)
	case "continue":
		return sess.MoveToNext(ctx)
	case "previous":
		return sess.MoveToPrevious(ctx)
	case "choose":
		return sess.MoveToActivity(ctx, args[2])
	case "suspend":
		return sess.Suspend(ctx)
	case "resume":
		return sess.Resume(ctx)
	case "exit":
		return sess.Exit(ctx)
	default:
		return sess.Abandon(ctx)
	}
}

func validNavCommand(op string) bool {
	for _, c := range navCommands {
		if c == op {
			return true
		}
	}
	return false
}

func parseView(s string) (session.View, error) {
	switch s {
	case "execute":
		return session.Execute, nil
	case "review":
		return session.Review, nil
	case "randomAccess":
		return session.RandomAccess, nil
	default:
		return session.Execute, fmt.Errorf("unknown view %q", s)
	}
}
