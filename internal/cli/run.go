package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sequent/internal/harness"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a navigation scenario",
		Long: `Run a YAML navigation scenario against a fresh in-memory store and
report its trace. Exits with status 1 when an expectation fails.

Example:
  sequent run scenarios/linear-walk.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

type runResult struct {
	Scenario string               `json:"scenario"`
	Passed   bool                 `json:"passed"`
	Failures []string             `json:"failures,omitempty"`
	Trace    []harness.TraceEvent `json:"trace"`
}

func runScenario(opts *RootOptions, path string, cmd *cobra.Command) error {
	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	result, err := harness.Run(scenario)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		f := &OutputFormatter{Format: opts.Format, Writer: out}
		if err := f.Success("", runResult{
			Scenario: result.ScenarioName,
			Passed:   result.Passed,
			Failures: result.Failures,
			Trace:    result.Trace,
		}); err != nil {
			return err
		}
	} else {
		for _, ev := range result.Trace {
			line := fmt.Sprintf("%3d  %-10s", ev.Seq, ev.Op)
			if ev.Target != "" {
				line += " " + ev.Target
			}
			if ev.Error != "" {
				line += " !" + ev.Error
			}
			if ev.Current != "" {
				line += " current=" + ev.Current
			}
			line += " status=" + ev.Status
			fmt.Fprintln(out, line)
		}
		for _, failure := range result.Failures {
			fmt.Fprintln(out, "FAIL:", failure)
		}
	}

	if !result.Passed {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", result.ScenarioName))
	}
	if opts.Format != "json" {
		fmt.Fprintf(out, "scenario %s passed (%d steps)\n", result.ScenarioName, len(result.Trace))
	}
	return nil
}
