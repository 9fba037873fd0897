package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vicbeneder/micruler/internal/harness"
)

var (
	harnessScenarios = filepath.Join("..", "harness", "testdata", "scenarios")
	harnessGolden    = filepath.Join("..", "harness", "testdata", "golden")
)

// copyScenario copies a harness scenario that uses the embedded rules
// into a fresh directory.
func copyScenario(t *testing.T, name string) (dir, path string) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(harnessScenarios, name))
	require.NoError(t, err)
	dir = t.TempDir()
	path = filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return dir, path
}

func TestTestCommand_MissingArgs(t *testing.T) {
	_, _, err := execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommand_AllScenariosPass(t *testing.T) {
	out, _, err := execute(t, "test", harnessScenarios, "--golden-dir", harnessGolden)
	require.NoError(t, err, out)

	assert.Contains(t, out, "✓ macrolides")
	assert.Contains(t, out, "✓ mrsa")
	assert.Contains(t, out, "✓ non-termination")
	assert.Contains(t, out, "Test Summary: 5 passed, 0 failed, 5 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommand_JSON(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "test", harnessScenarios, "--golden-dir", harnessGolden, "--filter", "macro")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, ScenarioResult{Name: "macrolides", Pass: true}, resp.Data.Scenarios[0])
}

func TestTestCommand_NonExistentPath(t *testing.T) {
	out, _, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "does not exist")
}

func TestTestCommand_EmptyDirectory(t *testing.T) {
	out, _, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")

	out, _, err = execute(t, "--format", "json", "test", t.TempDir())
	require.NoError(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	dir, _ := copyScenario(t, "mrsa.yaml")
	golden := filepath.Join(dir, "golden", "mrsa.golden")

	out, _, err := execute(t, "test", dir, "--update")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ mrsa (golden updated)")

	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario":"mrsa"`)

	out, _, err = execute(t, "test", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ mrsa\n")
}

func TestTestCommand_GoldenMismatch(t *testing.T) {
	dir, _ := copyScenario(t, "mrsa.yaml")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "mrsa.golden"), []byte(`{"scenario":"stale"}`), 0644))

	out, _, err := execute(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "do not match golden file")
}

func TestTestCommand_FailingAssertion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wrong.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`name: wrong
description: Expects the wrong label
breakpoints:
  - organism: Staphylococcus
    compound: Cefoxitin
    s_threshold: 4
    r_threshold: 4
samples:
  - id: s1
    organism: Staphylococcus aureus
    tests:
      - compound: Cefoxitin
        mic: 8
assertions:
  - type: result
    sample: s1
    compound: Cefoxitin
    label: S
`), 0644))

	out, _, err := execute(t, "test", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong")
	assert.Contains(t, out, "label R, want S")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommand_LoadErrorIsFailure(t *testing.T) {
	path := writeFile(t, "broken.yaml", "name: broken\n")

	out, _, err := execute(t, "test", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "description is required")
}

func TestGoldenFilePath(t *testing.T) {
	entry := harness.SuiteEntry{Path: filepath.Join("scenarios", "mrsa.yaml"), Name: "mrsa"}
	assert.Equal(t, filepath.Join("scenarios", "golden", "mrsa.golden"), goldenFilePath("", entry))
	assert.Equal(t, filepath.Join("elsewhere", "mrsa.golden"), goldenFilePath("elsewhere", entry))
}
