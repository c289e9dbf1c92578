package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sequent/internal/nav"
	"github.com/roach88/sequent/internal/session"
	"github.com/roach88/sequent/internal/store"
)

// NewTocCommand creates the toc command.
func NewTocCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toc <attempt-id>",
		Short: "Print an attempt's table of contents",
		Long: `Print the attempt's activity tree with per-activity navigability:
whether the activity has content, is visible, and whether choice
navigation to it would currently be accepted.

Example:
  sequent toc --db course.db 1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToc(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runToc(opts *RootOptions, arg string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	logger := newLogger(opts, cmd.ErrOrStderr())

	attemptID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid attempt id", err)
	}

	st, err := store.Open(opts.Database, store.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	sess := session.New(session.Execute, st.Persister(attemptID), session.WithLogger(logger))
	toc, err := sess.TableOfContents(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load table of contents", err)
	}

	if opts.Format == "json" {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return f.Success("", toc)
	}
	printToc(cmd.OutOrStdout(), toc, 0, sess.CurrentActivityKey())
	return nil
}

func printToc(w io.Writer, el *nav.TableOfContentsElement, depth int, currentKey string) {
	marks := make([]string, 0, 3)
	if el.HasContent {
		marks = append(marks, "content")
	}
	if !el.IsVisible {
		marks = append(marks, "hidden")
	}
	if !el.ValidToNavigateTo {
		marks = append(marks, "unreachable")
	}
	marker := ""
	if len(marks) > 0 {
		marker = " [" + strings.Join(marks, ",") + "]"
	}
	cursor := "  "
	if el.Key == currentKey && currentKey != "" {
		cursor = "* "
	}
	fmt.Fprintf(w, "%s%s%s - %s%s\n", cursor, strings.Repeat("  ", depth), el.Key, el.Title, marker)
	for _, child := range el.Children {
		printToc(w, child, depth+1, currentKey)
	}
}
