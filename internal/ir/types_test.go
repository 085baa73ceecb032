package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/poolproxy/internal/amount"
)

func validConfig() Config {
	return Config{
		Admin:                       "admin",
		CustomTokenAddress:          "token",
		NativeDenom:                 DefaultNativeDenom,
		PairDiscountRate:            500,
		PairBondingPeriodSec:        86400,
		PairFundsProvider:           "pair-treasury",
		NativeDiscountRate:          1000,
		NativeBondingPeriodSec:      172800,
		NativeFundsProvider:         "native-treasury",
		AuthorizedLiquidityProvider: "investor",
		DefaultShareReceiver:        "holder",
		SwapOpeningDate:             1_000,
		PoolPairAddress:             "pool",
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"pool may be unset", func(c *Config) { c.PoolPairAddress = "" }, ""},
		{"max discount", func(c *Config) { c.PairDiscountRate = MaxBps }, ""},
		{"pair discount over max", func(c *Config) { c.PairDiscountRate = MaxBps + 1 }, "pair_discount_rate"},
		{"native discount over max", func(c *Config) { c.NativeDiscountRate = 20000 }, "native_discount_rate"},
		{"empty admin", func(c *Config) { c.Admin = "" }, "admin"},
		{"upper-case token", func(c *Config) { c.CustomTokenAddress = "Token" }, "custom_token_address"},
		{"bad pool", func(c *Config) { c.PoolPairAddress = "Pool" }, "pool_pair_address"},
		{"empty denom", func(c *Config) { c.NativeDenom = "" }, "native_denom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigNormalized(t *testing.T) {
	cfg := validConfig()
	cfg.Admin = " Admin "
	cfg.PoolPairAddress = "POOL"
	cfg.NativeDenom = ""

	got := cfg.Normalized()
	assert.Equal(t, Addr("admin"), got.Admin)
	assert.Equal(t, Addr("pool"), got.PoolPairAddress)
	assert.Equal(t, DefaultNativeDenom, got.NativeDenom)
	assert.NoError(t, got.Validate())
	assert.Equal(t, Addr(" Admin "), cfg.Admin, "receiver must not be modified")
}

func TestNormalizeAddr(t *testing.T) {
	assert.Equal(t, Addr("terra1abc"), NormalizeAddr("  Terra1ABC\n"))
	assert.Equal(t, Addr("caf\u00e9"), NormalizeAddr("Cafe\u0301"), "decomposed accents are composed")
	assert.Error(t, Addr("has space").Validate())
}

func TestTimestampConversion(t *testing.T) {
	ts := FromTime(time.Unix(10, 5))
	assert.Equal(t, Timestamp(10_000_000_005), ts)
	assert.Equal(t, int64(10), ts.Time().Unix())
	assert.Equal(t, Timestamp(0), FromTime(time.Unix(-1, 0)))
	assert.True(t, Timestamp(1).Before(2))
	assert.False(t, Timestamp(2).Before(2))
}

func TestContinuationHoldingsAfter(t *testing.T) {
	c := Continuation{
		Holdings: []Holding{{Owner: "user", Amount: amount.New(10)}},
		Transfer: &Holding{Owner: "treasury", Amount: amount.New(42)},
	}
	after := c.HoldingsAfter()
	require.Len(t, after, 2)
	assert.Equal(t, Addr("treasury"), after[1].Owner)
	assert.Len(t, c.Holdings, 1, "receiver slice must not be modified")

	c.Transfer = &Holding{Owner: "treasury"}
	assert.Len(t, c.HoldingsAfter(), 1, "zero transfers add no holding")
}

func TestJSONFieldNaming(t *testing.T) {
	data, err := json.Marshal(validConfig())
	require.NoError(t, err)

	assert.Contains(t, string(data), `"custom_token_address"`)
	assert.Contains(t, string(data), `"swap_opening_date"`)
	assert.Contains(t, string(data), `"compensate_on_failure"`)
	assert.NotContains(t, string(data), `"customTokenAddress"`)
}

func TestAssetInfoUnion(t *testing.T) {
	var info AssetInfo
	require.NoError(t, json.Unmarshal([]byte(`{"native_token":{"denom":"uusd"}}`), &info))
	assert.True(t, info.IsNative())
	assert.NoError(t, info.Check())
	assert.True(t, info.Equal(NativeInfo("uusd")))
	assert.False(t, info.Equal(TokenInfo("uusd")))

	assert.Error(t, AssetInfo{}.Check())
	both := AssetInfo{Token: &TokenAsset{ContractAddr: "t"}, NativeToken: &NativeAsset{Denom: "d"}}
	assert.Error(t, both.Check())
	assert.Error(t, NativeInfo("").Check())
}

func TestExecuteMsgVariant(t *testing.T) {
	var msg ExecuteMsg
	require.NoError(t, json.Unmarshal([]byte(`{"set_swap_opening_date":{"swap_opening_date":5}}`), &msg))
	name, err := msg.Variant()
	require.NoError(t, err)
	assert.Equal(t, "set_swap_opening_date", name)
	assert.Equal(t, Timestamp(5), msg.SetSwapOpeningDate.SwapOpeningDate)

	_, err = ExecuteMsg{}.Variant()
	assert.Error(t, err)

	_, err = ExecuteMsg{Swap: &SwapMsg{}, Configure: &ConfigureMsg{}}.Variant()
	assert.Error(t, err)
}

func TestQueryMsgVariant(t *testing.T) {
	var q QueryMsg
	require.NoError(t, json.Unmarshal([]byte(`{"get_bonding_details":{"user_address":"alice"}}`), &q))
	name, err := q.Variant()
	require.NoError(t, err)
	assert.Equal(t, "get_bonding_details", name)

	require.NoError(t, json.Unmarshal([]byte(`{"configuration":{}}`), &q))
	_, err = q.Variant()
	assert.Error(t, err, "decoding into a used value keeps both variants")
}

func TestReplyHelpers(t *testing.T) {
	ok := OkReply(3, nil, []byte("d"))
	assert.True(t, ok.Result.IsOk())
	fail := ErrReply(4, "boom")
	assert.False(t, fail.Result.IsOk())
	assert.Equal(t, "boom", fail.Result.Err)

	var resp Response
	resp.AddAttribute("action", "swap")
	v, found := resp.Attribute("action")
	assert.True(t, found)
	assert.Equal(t, "swap", v)
}
