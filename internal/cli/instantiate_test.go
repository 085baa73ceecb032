package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instantiate(t *testing.T, db string) {
	t.Helper()
	_, err := execute(t, "instantiate", "--config", sampleConfig, "--db", db)
	require.NoError(t, err)
}

func TestInstantiate(t *testing.T) {
	db := tempDB(t)

	out, err := execute(t, "instantiate", "--config", sampleConfig, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Instantiated poolproxy in "+db+" (admin admin)")
}

func TestInstantiate_JSON(t *testing.T) {
	db := tempDB(t)

	out, err := execute(t, "instantiate", "--config", sampleConfig, "--db", db, "--format", "json")
	require.NoError(t, err)

	var result InstantiateResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "poolproxy", string(result.Contract))
	assert.Equal(t, db, result.Store)
	assert.Equal(t, "admin", string(result.Admin))
	require.NotEmpty(t, result.Attributes)
	assert.Equal(t, "action", result.Attributes[0].Key)
	assert.Equal(t, "instantiate", result.Attributes[0].Value)
}

func TestInstantiate_Twice(t *testing.T) {
	db := tempDB(t)
	instantiate(t, db)

	out, err := execute(t, "instantiate", "--config", sampleConfig, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [INVALID_CONFIG]")
	assert.Contains(t, out, "already instantiated")
}

func TestInstantiate_SenderBecomesAdmin(t *testing.T) {
	path := writeConfig(t, "  admin: admin\n", "")
	db := tempDB(t)

	_, err := execute(t, "instantiate", "--config", path, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--sender is required")

	out, err := execute(t, "instantiate", "--config", path, "--db", db, "--sender", "owner")
	require.NoError(t, err)
	assert.Contains(t, out, "(admin owner)")

	out, err = execute(t, "query", `{"configuration":{}}`, "--config", path, "--db", db, "--format", "json")
	require.NoError(t, err)
	var cfg map[string]any
	decodeResponse(t, out, &cfg)
	assert.Equal(t, "owner", cfg["admin"])
}

func TestQuery(t *testing.T) {
	db := tempDB(t)
	instantiate(t, db)

	out, err := execute(t, "query", `{"configuration":{}}`, "--config", sampleConfig, "--db", db, "--format", "json")
	require.NoError(t, err)
	var cfg map[string]any
	resp := decodeResponse(t, out, &cfg)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "admin", cfg["admin"])
	assert.Equal(t, "pool", cfg["pool_pair_address"])

	out, err = execute(t, "query", `{"pool":{}}`, "--config", sampleConfig, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, `"total_share": "1000"`)

	out, err = execute(t, "query", `{"get_reward_equivalent_to_native":{"amount":"100"}}`, "--config", sampleConfig, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, `"amount": "200"`)
}

func TestQuery_Errors(t *testing.T) {
	db := tempDB(t)

	out, err := execute(t, "query", `{"configuration":{}}`, "--config", sampleConfig, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [NOT_FOUND]")

	instantiate(t, db)

	out, err = execute(t, "query", `{"configuration":{},"pool":{}}`, "--config", sampleConfig, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [UNSUPPORTED]")

	out, err = execute(t, "query", `{"configuration":`, "--config", sampleConfig, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E030]")

	out, err = execute(t, "query", `{"balances":{}}`, "--config", sampleConfig, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "unknown field")
}
