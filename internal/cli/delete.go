package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/sequent/internal/store"
)

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	*RootOptions
	Learner string
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <attempt-id>",
		Short: "Delete an attempt",
		Long: `Delete an attempt and all of its activity rows. The learner must
hold the delete-attempt right.

Example:
  sequent delete --db course.db --learner alice 1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Learner, "learner", "", "learner key (required)")
	_ = cmd.MarkFlagRequired("learner")

	return cmd
}

func runDelete(opts *DeleteOptions, arg string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	attemptID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid attempt id", err)
	}

	st, err := store.Open(opts.Database, store.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	learner, err := st.GetLearnerByKey(ctx, opts.Learner)
	if err != nil {
		return WrapExitError(ExitCommandError, "unknown learner", err)
	}
	if err := st.DeleteAttempt(ctx, learner.ID, attemptID); err != nil {
		return WrapExitError(ExitCommandError, "failed to delete attempt", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(
		fmt.Sprintf("deleted attempt %d", attemptID),
		map[string]int64{"attempt_id": attemptID},
	)
}
