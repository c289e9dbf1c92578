// Package manifest loads CUE-authored content package definitions and
// compiles them into the flat activity row set the store imports. A
// package definition is a directory of CUE files declaring `package`
// metadata and an `organization` activity tree with optional sequencing
// blocks.
package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/sequent/internal/store"
)

// Package is a compiled package definition: metadata plus the activity
// rows in document order (parents before children), rows[0] being the
// organization root.
type Package struct {
	Meta store.Package
	Rows []store.PackageActivityRow
}

// CompileError reports an invalid package definition with its CUE
// source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}

// LoadPackage loads and compiles the package definition in dir.
func LoadPackage(dir string) (*Package, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &CompileError{Field: "package", Message: fmt.Sprintf("package directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &CompileError{Field: "package", Message: fmt.Sprintf("error accessing package directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &CompileError{Field: "package", Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := findCUEFiles(dir)
	if err != nil {
		return nil, &CompileError{Field: "package", Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &CompileError{Field: "package", Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, &CompileError{Field: "package", Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &CompileError{Field: "package", Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(value)
}

// Compile compiles a built CUE value into a Package. Exposed separately
// from LoadPackage so tests and tooling can compile inline definitions.
func Compile(value cue.Value) (*Package, error) {
	pkg := &Package{}
	if err := compileMeta(value, &pkg.Meta); err != nil {
		return nil, err
	}

	orgVal := value.LookupPath(cue.ParsePath("organization"))
	if !orgVal.Exists() {
		return nil, &CompileError{
			Field:   "organization",
			Message: "organization is required",
			Pos:     value.Pos(),
		}
	}
	rows, err := compileActivity(orgVal, "", 0)
	if err != nil {
		return nil, err
	}
	pkg.Rows = rows

	// Keys are the navigation identity; duplicates would alias activities.
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if seen[row.Key] {
			return nil, &CompileError{
				Field:   "organization",
				Message: fmt.Sprintf("duplicate activity key %q", row.Key),
				Pos:     orgVal.Pos(),
			}
		}
		seen[row.Key] = true
	}
	return pkg, nil
}

// Import writes a compiled package into the store and returns the
// package id and the root activity id.
func Import(ctx context.Context, st *store.Store, pkg *Package) (packageID, rootActivityID int64, err error) {
	meta := pkg.Meta
	return st.ImportPackage(ctx, &meta, pkg.Rows)
}

// findCUEFiles walks the directory and returns all .cue file paths.
func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
