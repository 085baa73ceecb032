package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes the sample config with one replacement applied.
func writeConfig(t *testing.T, old, replacement string) string {
	t.Helper()
	data, err := os.ReadFile(sampleConfig)
	require.NoError(t, err)
	edited := strings.Replace(string(data), old, replacement, 1)
	require.NotEqual(t, string(data), edited, "replacement %q not applied", old)

	path := filepath.Join(t.TempDir(), "poolproxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o644))
	return path
}

func TestValidate_ValidConfig(t *testing.T) {
	out, err := execute(t, "validate", sampleConfig)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Config valid")
}

func TestValidate_DefaultsToConfigFlag(t *testing.T) {
	out, err := execute(t, "validate", "--config", sampleConfig)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Config valid")
}

func TestValidate_ValidConfigJSON(t *testing.T) {
	out, err := execute(t, "validate", sampleConfig, "--format", "json")
	require.NoError(t, err)

	var result ValidationResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidate_SchemaViolations(t *testing.T) {
	tests := []struct {
		name        string
		old, repl   string
		wantMessage string
	}{
		{name: "discount above 100%", old: "pair_discount_rate: 500", repl: "pair_discount_rate: 20000", wantMessage: "pair_discount_rate"},
		{name: "unknown field", old: "log_level: info", repl: "log_level: info\nstor: other.db", wantMessage: "stor"},
		{name: "bad address", old: "custom_token_address: token", repl: "custom_token_address: \"Bad Token\"", wantMessage: "custom_token_address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.old, tt.repl)

			out, err := execute(t, "validate", path)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, out, "✗ Validation failed")
			assert.Contains(t, out, tt.wantMessage)
		})
	}
}

func TestValidate_SchemaViolationsJSON(t *testing.T) {
	path := writeConfig(t, "pair_discount_rate: 500", "pair_discount_rate: 20000")

	out, err := execute(t, "validate", path, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result ValidationResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeConfig, resp.Error.Code)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Path, "pair_discount_rate")
}

func TestValidate_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("instantiate: [unclosed"), 0o644))

	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "parse yaml")
}

func TestValidate_MissingFile(t *testing.T) {
	out, err := execute(t, "validate", "/nonexistent/poolproxy.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "config file not found")
}
