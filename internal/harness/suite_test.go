package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b_swap.yaml", "a_pair.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("name: x\n"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755))

	paths, err := FindScenarios(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a_pair.yml"), filepath.Join(dir, "b_swap.yaml")}, paths)

	paths, err = FindScenarios(dir, "b_*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b_swap.yaml")}, paths)

	_, err = FindScenarios(dir, "[")
	assert.ErrorContains(t, err, "invalid filter")

	_, err = FindScenarios(filepath.Join(dir, "missing"), "")
	assert.Error(t, err)
}

func TestRunSuite(t *testing.T) {
	dir := t.TempDir()
	good, err := os.ReadFile(filepath.Join(scenariosDir, "pair_happy_path.yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.yaml"), good, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [unclosed"), 0o644))

	paths, err := FindScenarios(dir, "")
	require.NoError(t, err)

	suite := RunSuite(context.Background(), paths)
	assert.Equal(t, 2, suite.Total)
	assert.Equal(t, 1, suite.Passed)
	assert.Equal(t, 1, suite.Failed)

	require.Len(t, suite.Results, 2)
	assert.Equal(t, "broken", suite.Results[0].Name)
	assert.False(t, suite.Results[0].Pass)
	assert.Nil(t, suite.Results[0].Result)
	assert.Equal(t, "pair_happy_path", suite.Results[1].Name)
	assert.True(t, suite.Results[1].Pass)
	assert.NotNil(t, suite.Results[1].Result)

	require.Len(t, suite.Failures, 1)
	assert.Contains(t, suite.Failures[0].Error, "failed to load scenario")
}

func TestRunSuite_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	suite := RunSuite(ctx, []string{filepath.Join(scenariosDir, "pair_happy_path.yaml")})
	assert.Zero(t, suite.Total)
}
