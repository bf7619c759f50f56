package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-dev/tessera/internal/harness"
)

// wrongScenario expects a failure from a config whose steps all pass.
const wrongScenario = `name: wrong
description: deliberately expects the wrong outcome
config: |
  language: rust
  script:
    - cargo test
expect:
  outcome: failed
  cells:
    - cell: linux/stable
      status: failed
`

func writeScenarioDir(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(content), 0o644))
	return dir
}

func TestScenariosShippedSuite(t *testing.T) {
	out, _, err := executeCommand(t, "scenarios", filepath.Join("..", "harness", "testdata", "scenarios"))
	require.NoError(t, err)

	assert.Contains(t, out, "Scenarios: 7 passed, 0 failed, 7 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestScenariosReportsFailure(t *testing.T) {
	dir := writeScenarioDir(t, wrongScenario)

	out, _, err := executeCommand(t, "scenarios", dir)
	require.Error(t, err)

	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong")
	assert.Contains(t, out, "outcome: expected failed, got success")
	assert.Contains(t, out, "Scenarios: 0 passed, 1 failed, 1 total")
}

func TestScenariosJSON(t *testing.T) {
	dir := writeScenarioDir(t, wrongScenario)

	out, _, err := executeCommand(t, "--format", "json", "scenarios", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string              `json:"status"`
		Data   harness.SuiteResult `json:"data"`
		Error  *CLIError           `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_SCENARIOS_FAILED", resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Failures, 1)
	assert.Equal(t, "wrong", resp.Data.Failures[0].Scenario)
}

func TestScenariosMissingDirectory(t *testing.T) {
	_, _, err := executeCommand(t, "scenarios", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenario directory not found")
}

func TestScenariosEmptyDirectory(t *testing.T) {
	_, _, err := executeCommand(t, "scenarios", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no scenario files")
}
