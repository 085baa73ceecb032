package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/poolproxy/internal/harness"
)

// copyScenarios copies the sample scenarios into a temporary directory.
func copyScenarios(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	entries, err := os.ReadDir(scenariosDir)
	require.NoError(t, err)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(scenariosDir, e.Name()))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, e.Name()), data, 0o644))
	}
	return dir
}

func TestTestCommand(t *testing.T) {
	out, err := execute(t, "test", scenariosDir)
	require.NoError(t, err, "output: %s", out)
	assert.Contains(t, out, "✓ pair_happy_path")
	assert.Contains(t, out, "Test Summary: 4 passed, 0 failed, 4 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommand_Filter(t *testing.T) {
	out, err := execute(t, "test", scenariosDir, "--filter", "pair_*")
	require.NoError(t, err)
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")

	out, err = execute(t, "test", scenariosDir, "--filter", "nothing_*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommand_JSON(t *testing.T) {
	out, err := execute(t, "test", scenariosDir, "--format", "json")
	require.NoError(t, err)

	var suite harness.SuiteResult
	resp := decodeResponse(t, out, &suite)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 4, suite.Total)
	assert.Equal(t, 4, suite.Passed)
	assert.Zero(t, suite.Failed)
}

func TestTestCommand_UpdateGolden(t *testing.T) {
	dir := copyScenarios(t)

	out, err := execute(t, "test", dir, "--filter", "pair_happy_path", "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ pair_happy_path (golden updated)")

	got, err := os.ReadFile(filepath.Join(dir, "golden", "pair_happy_path.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join("..", "harness", "testdata", "golden", "pair_happy_path.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	out, err = execute(t, "test", dir, "--filter", "pair_happy_path")
	require.NoError(t, err)
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommand_GoldenMismatch(t *testing.T) {
	dir := copyScenarios(t)
	golden := filepath.Join(dir, "golden")
	require.NoError(t, os.MkdirAll(golden, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(golden, "pair_happy_path.golden"), []byte(`{"scenario_name":"pair_happy_path","trace":[]}`), 0o644))

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ pair_happy_path")
	assert.Contains(t, out, "trace does not match golden file")
	assert.Contains(t, out, "Test Summary: 3 passed, 1 failed, 4 total")
}

func TestTestCommand_FailingJSON(t *testing.T) {
	dir := copyScenarios(t)
	golden := filepath.Join(dir, "golden")
	require.NoError(t, os.MkdirAll(golden, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(golden, "fail_fast.golden"), []byte("{}"), 0o644))

	out, err := execute(t, "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var suite harness.SuiteResult
	resp := decodeResponse(t, out, &suite)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	assert.Equal(t, 1, suite.Failed)
}

func TestTestCommand_Errors(t *testing.T) {
	_, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")

	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}
