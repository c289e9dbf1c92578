package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/sequent/internal/manifest"
	"github.com/roach88/sequent/internal/store"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <package-dir>",
		Short: "Import a CUE content package",
		Long: `Compile the CUE package definition in the given directory and write
its activity rows into the database.

Example:
  sequent import --db course.db ./packages/intro-course`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

type importResult struct {
	PackageID      int64  `json:"package_id"`
	RootActivityID int64  `json:"root_activity_id"`
	GUID           string `json:"guid"`
	Activities     int    `json:"activities"`
}

func runImport(opts *RootOptions, dir string, cmd *cobra.Command) error {
	logger := newLogger(opts, cmd.ErrOrStderr())

	pkg, err := manifest.LoadPackage(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile package", err)
	}
	logger.Info("package compiled", "guid", pkg.Meta.GUID, "activities", len(pkg.Rows))

	st, err := store.Open(opts.Database, store.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	pkgID, rootID, err := manifest.Import(cmd.Context(), st, pkg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to import package", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(
		pkg.Meta.Title+": imported package "+pkg.Meta.GUID,
		importResult{
			PackageID:      pkgID,
			RootActivityID: rootID,
			GUID:           pkg.Meta.GUID,
			Activities:     len(pkg.Rows),
		},
	)
}
