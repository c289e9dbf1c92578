package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sequent/internal/store"
)

const testCourse = `
package: {guid: "pkg-cli", title: "CLI Course"}
organization: {
	key: "org"
	title: "CLI Course"
	sequencing: {flow: true}
	children: [
		{key: "l1", resource: {type: "sco", entry: "l1.html"}},
		{key: "l2", resource: {type: "sco", entry: "l2.html"}},
	]
}
`

// execute runs the CLI with the given args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func setupCourse(t *testing.T) (dbPath, pkgDir string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "test.db")
	pkgDir = filepath.Join(dir, "course")
	require.NoError(t, os.Mkdir(pkgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "course.cue"), []byte(testCourse), 0o644))
	return dbPath, pkgDir
}

func TestImportCommand(t *testing.T) {
	dbPath, pkgDir := setupCourse(t)

	out, err := execute(t, "--db", dbPath, "import", pkgDir)
	require.NoError(t, err)
	assert.Contains(t, out, "pkg-cli")
}

func TestImportCommandJSON(t *testing.T) {
	dbPath, pkgDir := setupCourse(t)

	out, err := execute(t, "--db", dbPath, "--format", "json", "import", pkgDir)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "pkg-cli", data["guid"])
	assert.Equal(t, float64(3), data["activities"])
}

func TestImportCommandBadDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	_, err := execute(t, "--db", dbPath, "import", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCreateAndNavigate(t *testing.T) {
	dbPath, pkgDir := setupCourse(t)

	_, err := execute(t, "--db", dbPath, "import", pkgDir)
	require.NoError(t, err)

	out, err := execute(t, "--db", dbPath, "create", "--learner", "alice", "--root", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "created attempt 1")

	out, err = execute(t, "--db", dbPath, "nav", "1", "start")
	require.NoError(t, err)
	assert.Contains(t, out, "current=l1")

	out, err = execute(t, "--db", dbPath, "nav", "1", "continue")
	require.NoError(t, err)
	assert.Contains(t, out, "current=l2")

	// Past the last leaf: refused with the rule code, exit code 1.
	out, err = execute(t, "--db", dbPath, "nav", "1", "continue")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "SB.2.1-1")
}

func TestNavChoose(t *testing.T) {
	dbPath, pkgDir := setupCourse(t)
	_, err := execute(t, "--db", dbPath, "import", pkgDir)
	require.NoError(t, err)
	_, err = execute(t, "--db", dbPath, "create", "--learner", "alice", "--root", "1")
	require.NoError(t, err)
	_, err = execute(t, "--db", dbPath, "nav", "1", "start")
	require.NoError(t, err)

	out, err := execute(t, "--db", dbPath, "nav", "1", "choose", "l2")
	require.NoError(t, err)
	assert.Contains(t, out, "current=l2")

	_, err = execute(t, "--db", dbPath, "nav", "1", "choose")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestNavUnknownCommand(t *testing.T) {
	dbPath, _ := setupCourse(t)

	_, err := execute(t, "--db", dbPath, "nav", "1", "teleport")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTocCommand(t *testing.T) {
	dbPath, pkgDir := setupCourse(t)
	_, err := execute(t, "--db", dbPath, "import", pkgDir)
	require.NoError(t, err)
	_, err = execute(t, "--db", dbPath, "create", "--learner", "alice", "--root", "1")
	require.NoError(t, err)
	_, err = execute(t, "--db", dbPath, "nav", "1", "start")
	require.NoError(t, err)

	out, err := execute(t, "--db", dbPath, "toc", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "org")
	assert.Contains(t, out, "l1")
	assert.Contains(t, out, "[content]")
	assert.Contains(t, out, "* ", "current activity is marked")
}

func TestTocGolden(t *testing.T) {
	dbPath, pkgDir := setupCourse(t)
	_, err := execute(t, "--db", dbPath, "import", pkgDir)
	require.NoError(t, err)
	_, err = execute(t, "--db", dbPath, "create", "--learner", "alice", "--root", "1")
	require.NoError(t, err)
	_, err = execute(t, "--db", dbPath, "nav", "1", "start")
	require.NoError(t, err)

	out, err := execute(t, "--db", dbPath, "toc", "1")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "toc", []byte(out))
}

func TestDeleteCommand(t *testing.T) {
	dbPath, pkgDir := setupCourse(t)
	_, err := execute(t, "--db", dbPath, "import", pkgDir)
	require.NoError(t, err)
	_, err = execute(t, "--db", dbPath, "create", "--learner", "alice", "--root", "1")
	require.NoError(t, err)

	// Deleting needs the delete-attempt right.
	_, err = execute(t, "--db", dbPath, "delete", "--learner", "alice", "1")
	require.Error(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	learner, err := st.GetLearnerByKey(context.Background(), "alice")
	require.NoError(t, err)
	require.NoError(t, st.GrantRight(context.Background(), learner.ID, store.DeleteAttemptRight))
	st.Close()

	out, err := execute(t, "--db", dbPath, "delete", "--learner", "alice", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted attempt 1")
}

func TestRunCommand(t *testing.T) {
	scenario := `
name: cli-run
package: |
  package: {guid: "p", title: "t"}
  organization: {
    key: "org"
    sequencing: {flow: true}
    children: [
      {key: "l1", resource: {type: "sco", entry: "l1.html"}},
    ]
  }
steps:
  - do: start
    expect: {current: "l1"}
`
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenario), 0o644))

	out, err := execute(t, "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "passed")
}

func TestRunCommandFailure(t *testing.T) {
	scenario := `
name: cli-run-fail
package: |
  package: {guid: "p", title: "t"}
  organization: {
    key: "org"
    sequencing: {flow: true}
    children: [
      {key: "l1", resource: {type: "sco", entry: "l1.html"}},
    ]
  }
steps:
  - do: start
    expect: {current: "other"}
`
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenario), 0o644))

	out, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "FAIL")
}
