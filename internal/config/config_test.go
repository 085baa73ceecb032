package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/poolproxy/internal/amount"
	"github.com/roach88/poolproxy/internal/ir"
)

const validYAML = `
contract: proxy
store: /tmp/proxy.db
log_level: debug
instantiate:
  custom_token_address: token
  pair_discount_rate: 500
  pair_bonding_period_sec: 86400
  pair_funds_provider: pair-treasury
  native_discount_rate: 1000
  native_bonding_period_sec: 172800
  native_funds_provider: native-treasury
  authorized_liquidity_provider: investor
  default_share_receiver: holder
  swap_opening_date: 1000
  pool_pair_address: pool
host:
  reserves: {native: 1000, reward: "2000"}
  token_balances:
    alice: 500
  native_balances:
    alice: 1000
  tax: {rate_bps: 100, cap: 5}
  fail:
    provide_liquidity: pool paused
`

func TestParse_Valid(t *testing.T) {
	f, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, ir.Addr("proxy"), f.Contract)
	assert.Equal(t, "/tmp/proxy.db", f.Store)
	assert.Equal(t, slog.LevelDebug, f.Level())
	assert.Equal(t, uint16(500), f.Instantiate.PairDiscountRate)
	assert.Equal(t, ir.Timestamp(1000), f.Instantiate.SwapOpeningDate)
	assert.Equal(t, ir.DefaultNativeDenom, f.Instantiate.NativeDenom)
	assert.Equal(t, amount.New(1000), f.Host.Reserves.Native)
	assert.Equal(t, amount.New(2000), f.Host.Reserves.Reward)
	assert.Equal(t, amount.New(500), f.Host.TokenBalances["alice"])
	assert.Equal(t, uint16(100), f.Host.Tax.RateBps)
	assert.Equal(t, "pool paused", f.Host.Fail["provide_liquidity"])
}

func TestParse_Defaults(t *testing.T) {
	minimal := `
instantiate:
  custom_token_address: token
  pair_discount_rate: 0
  pair_bonding_period_sec: 0
  pair_funds_provider: t1
  native_discount_rate: 0
  native_bonding_period_sec: 0
  native_funds_provider: t2
  authorized_liquidity_provider: lp
  default_share_receiver: holder
  swap_opening_date: 0
`
	f, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, DefaultContract, f.Contract)
	assert.Equal(t, DefaultStore, f.Store)
	assert.Equal(t, DefaultLogLevel, f.LogLevel)
	assert.Equal(t, slog.LevelInfo, f.Level())
	assert.Empty(t, f.Host.TokenBalances)
}

func TestValidate_SchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown top-level field",
			yaml:    validYAML + "\nlisten: \":8080\"\n",
			wantErr: "listen",
		},
		{
			name:    "discount rate over 100%",
			yaml:    strings.Replace(validYAML, "pair_discount_rate: 500", "pair_discount_rate: 20000", 1),
			wantErr: "pair_discount_rate",
		},
		{
			name:    "upper-case address",
			yaml:    strings.Replace(validYAML, "pool_pair_address: pool", "pool_pair_address: Pool", 1),
			wantErr: "pool_pair_address",
		},
		{
			name:    "missing required field",
			yaml:    strings.Replace(validYAML, "  default_share_receiver: holder\n", "", 1),
			wantErr: "default_share_receiver",
		},
		{
			name:    "bad log level",
			yaml:    strings.Replace(validYAML, "log_level: debug", "log_level: trace", 1),
			wantErr: "log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate([]byte(tt.yaml))
			require.NotEmpty(t, errs)

			var joined string
			for _, err := range errs {
				joined += err.Error() + "\n"
			}
			assert.Contains(t, joined, tt.wantErr)
		})
	}
}

func TestValidate_EmptyAndMalformed(t *testing.T) {
	errs := Validate([]byte(""))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "empty")

	errs = Validate([]byte("instantiate: [unclosed"))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "parse yaml")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poolproxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ir.Addr("proxy"), f.Contract)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFieldError(t *testing.T) {
	assert.Equal(t, "a.b: bad", (&FieldError{Path: "a.b", Message: "bad"}).Error())
	assert.Equal(t, "bad", (&FieldError{Message: "bad"}).Error())
}
