package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	path := writeScenario(t, `
name: basic
package: |
  package: {guid: "p", title: "t"}
  organization: {key: "org"}
steps:
  - do: start
  - do: choose
    target: "l1"
    expect: {current: "l1"}
`)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "basic", scenario.Name)
	require.Len(t, scenario.Steps, 2)
	assert.Equal(t, "l1", scenario.Steps[1].Target)
	require.NotNil(t, scenario.Steps[1].Expect)
	assert.Equal(t, "l1", scenario.Steps[1].Expect.Current)
}

func TestLoadScenarioRejectsUnknownFields(t *testing.T) {
	path := writeScenario(t, `
name: typo
package: "package: {}"
step:
  - do: start
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse scenario")
}

func TestLoadScenarioRejectsUnknownOperation(t *testing.T) {
	path := writeScenario(t, `
name: bad-op
package: "package: {}"
steps:
  - do: teleport
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operation")
}

func TestLoadScenarioRequiresChooseTarget(t *testing.T) {
	path := writeScenario(t, `
name: no-target
package: "package: {}"
steps:
  - do: choose
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "choose requires a target")
}

func TestLoadScenarioRejectsUnknownView(t *testing.T) {
	path := writeScenario(t, `
name: bad-view
view: spectator
package: "package: {}"
steps:
  - do: start
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown view")
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
