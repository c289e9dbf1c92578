package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sequent/internal/store"
)

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	Learner string
	Root    int64
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an attempt on an imported package",
		Long: `Create a new attempt for a learner on the organization root of an
imported package. The learner is created on first use and granted the
create-attempt right.

Example:
  sequent create --db course.db --learner alice --root 1`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Learner, "learner", "", "learner key (required)")
	cmd.Flags().Int64Var(&opts.Root, "root", 0, "root activity id (required)")
	_ = cmd.MarkFlagRequired("learner")
	_ = cmd.MarkFlagRequired("root")

	return cmd
}

type createResult struct {
	AttemptID int64  `json:"attempt_id"`
	GUID      string `json:"guid"`
	LearnerID int64  `json:"learner_id"`
	Status    string `json:"status"`
}

func runCreate(opts *CreateOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	st, err := store.Open(opts.Database, store.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	learnerID, err := ensureLearner(ctx, st, opts.Learner)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve learner", err)
	}

	attempt, err := st.CreateAttempt(ctx, learnerID, opts.Root, 0)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create attempt", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(
		fmt.Sprintf("created attempt %d (%s) for learner %s", attempt.ID, attempt.GUID, opts.Learner),
		createResult{
			AttemptID: attempt.ID,
			GUID:      attempt.GUID,
			LearnerID: learnerID,
			Status:    string(attempt.Status),
		},
	)
}

// ensureLearner resolves a learner key, creating the learner with the
// create-attempt right on first use.
func ensureLearner(ctx context.Context, st *store.Store, key string) (int64, error) {
	if l, err := st.GetLearnerByKey(ctx, key); err == nil {
		return l.ID, nil
	}
	id, err := st.CreateLearner(ctx, key, key)
	if err != nil {
		return 0, err
	}
	if err := st.GrantRight(ctx, id, store.CreateAttemptRight); err != nil {
		return 0, err
	}
	return id, nil
}
