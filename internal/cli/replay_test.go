package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplay(t *testing.T) {
	out, err := execute(t, "replay", scenariosDir)
	require.NoError(t, err, "output: %s", out)
	assert.Contains(t, out, "✓ pair_happy_path (2 runs,")
	assert.Contains(t, out, "✓ All 4 scenario(s) deterministic")
}

func TestReplay_SingleFileJSON(t *testing.T) {
	path := filepath.Join(scenariosDir, "native_and_swaps.yaml")

	out, err := execute(t, "replay", path, "--runs", "3", "--format", "json")
	require.NoError(t, err)

	var result ReplayResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.AllDeterministic)
	require.Len(t, result.Scenarios, 1)
	s := result.Scenarios[0]
	assert.Equal(t, "native_and_swaps", s.Name)
	assert.Equal(t, 3, s.Runs)
	assert.Positive(t, s.Events)
	assert.True(t, s.Deterministic)
	assert.Empty(t, s.Error)
}

func TestReplay_Errors(t *testing.T) {
	_, err := execute(t, "replay", scenariosDir, "--runs", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--runs must be at least 2")

	_, err = execute(t, "replay", "/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
