package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/poolproxy/internal/amount"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int", -100, "-100"},
		{"max uint64", uint64(18446744073709551615), "18446744073709551615"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"array of ints", []int{1, 2, 3}, "[1,2,3]"},
		{"simple object", map[string]int{"a": 1}, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	result, err := MarshalCanonical(map[string]any{
		"zebra": 1,
		"alpha": 2,
		"beta":  map[string]any{"b": 1, "a": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":{"a":2,"b":1},"zebra":1}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as the surrogate pair 0xD800 0xDC00, which sorts
	// before 0xE000 in UTF-16 but after it in UTF-8.
	result, err := MarshalCanonical(map[string]int{
		"\uE000":     1,
		"\U00010000": 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalStringEscaping(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"newline", "a\nb", `"a\nb"`},
		{"tab", "a\tb", `"a\tb"`},
		{"quote", `a"b`, `"a\"b"`},
		{"backslash", `a\b`, `"a\\b"`},
		{"control", "a\x01b", `"a\u0001b"`},
		{"html", "<a>&", `"<a>&"`},
		{"line separator", "a\u2028b", "\"a\u2028b\""},
		{"literal escape text", `\u2028`, `"\\u2028"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	// "e" + combining acute accent normalizes to U+00E9.
	result, err := MarshalCanonical(map[string]string{"cafe\u0301": "cafe\u0301"})
	require.NoError(t, err)
	assert.Equal(t, "{\"caf\u00e9\":\"caf\u00e9\"}", string(result))
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"rate": 0.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestMarshalCanonicalRejectsNull(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"x": nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null is forbidden")
}

func TestMarshalCanonicalDepositPayload(t *testing.T) {
	receiver := Addr("holder")
	msg := PoolMsg{ProvideLiquidity: &PoolProvideLiquidity{
		Assets: [2]Asset{
			{Info: NativeInfo("uusd"), Amount: amount.New(100)},
			{Info: TokenInfo("token"), Amount: amount.New(250)},
		},
		Receiver: &receiver,
	}}

	first, err := MarshalCanonical(msg)
	require.NoError(t, err)
	assert.Equal(t,
		`{"provide_liquidity":{"assets":[{"amount":"100","info":{"native_token":{"denom":"uusd"}}},{"amount":"250","info":{"token":{"contract_addr":"token"}}}],"receiver":"holder"}}`,
		string(first))

	again, err := CanonicalizeJSON(first)
	require.NoError(t, err)
	assert.Equal(t, first, again, "canonical form must be a fixed point")
}

func TestCanonicalizeJSONRejectsTrailingData(t *testing.T) {
	_, err := CanonicalizeJSON([]byte(`{"a":1} {"b":2}`))
	require.Error(t, err)
}
