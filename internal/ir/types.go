package ir

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/poolproxy/internal/amount"
)

// Addr is a lower-case account or contract address.
type Addr string

// NormalizeAddr trims, lower-cases and NFC-normalizes an address.
func NormalizeAddr(s string) Addr {
	return Addr(norm.NFC.String(strings.ToLower(strings.TrimSpace(s))))
}

// Validate rejects empty addresses and addresses that are not lower-case.
func (a Addr) Validate() error {
	if a == "" {
		return fmt.Errorf("address is empty")
	}
	if string(a) != strings.ToLower(string(a)) {
		return fmt.Errorf("address %q must be lower-case", string(a))
	}
	if strings.ContainsAny(string(a), " \t\n") {
		return fmt.Errorf("address %q contains whitespace", string(a))
	}
	return nil
}

// String returns the address text.
func (a Addr) String() string {
	return string(a)
}

// Timestamp is nanoseconds since the Unix epoch.
type Timestamp uint64

// FromTime converts a wall-clock time to a Timestamp.
// Times before the epoch map to 0.
func FromTime(t time.Time) Timestamp {
	n := t.UnixNano()
	if n < 0 {
		return 0
	}
	return Timestamp(n)
}

// Time converts the timestamp to a time.Time in UTC.
func (t Timestamp) Time() time.Time {
	return time.Unix(0, int64(t)).UTC()
}

// Before reports whether t is strictly earlier than u.
func (t Timestamp) Before(u Timestamp) bool {
	return t < u
}

// MaxBps is the basis point denominator: 10000 bps is 100%.
const MaxBps = 10000

// DefaultNativeDenom is the native asset denomination used when the
// configuration does not name one.
const DefaultNativeDenom = "uusd"

// Config is the contract configuration singleton.
type Config struct {
	Admin                       Addr      `json:"admin" yaml:"admin"`
	CustomTokenAddress          Addr      `json:"custom_token_address" yaml:"custom_token_address"`
	NativeDenom                 string    `json:"native_denom" yaml:"native_denom"`
	PairDiscountRate            uint16    `json:"pair_discount_rate" yaml:"pair_discount_rate"`
	PairBondingPeriodSec        uint64    `json:"pair_bonding_period_sec" yaml:"pair_bonding_period_sec"`
	PairFundsProvider           Addr      `json:"pair_funds_provider" yaml:"pair_funds_provider"`
	NativeDiscountRate          uint16    `json:"native_discount_rate" yaml:"native_discount_rate"`
	NativeBondingPeriodSec      uint64    `json:"native_bonding_period_sec" yaml:"native_bonding_period_sec"`
	NativeFundsProvider         Addr      `json:"native_funds_provider" yaml:"native_funds_provider"`
	AuthorizedLiquidityProvider Addr      `json:"authorized_liquidity_provider" yaml:"authorized_liquidity_provider"`
	DefaultShareReceiver        Addr      `json:"default_share_receiver" yaml:"default_share_receiver"`
	SwapOpeningDate             Timestamp `json:"swap_opening_date" yaml:"swap_opening_date"`
	PoolPairAddress             Addr      `json:"pool_pair_address" yaml:"pool_pair_address"`
	CompensateOnFailure         bool      `json:"compensate_on_failure" yaml:"compensate_on_failure"`
}

// Validate checks the configuration invariants. The pool address may be
// empty before the pool is configured.
func (c Config) Validate() error {
	addrs := []struct {
		name string
		addr Addr
	}{
		{"admin", c.Admin},
		{"custom_token_address", c.CustomTokenAddress},
		{"pair_funds_provider", c.PairFundsProvider},
		{"native_funds_provider", c.NativeFundsProvider},
		{"authorized_liquidity_provider", c.AuthorizedLiquidityProvider},
		{"default_share_receiver", c.DefaultShareReceiver},
	}
	for _, a := range addrs {
		if err := a.addr.Validate(); err != nil {
			return fmt.Errorf("%s: %w", a.name, err)
		}
	}
	if c.PoolPairAddress != "" {
		if err := c.PoolPairAddress.Validate(); err != nil {
			return fmt.Errorf("pool_pair_address: %w", err)
		}
	}
	if c.PairDiscountRate > MaxBps {
		return fmt.Errorf("pair_discount_rate %d exceeds %d bps", c.PairDiscountRate, MaxBps)
	}
	if c.NativeDiscountRate > MaxBps {
		return fmt.Errorf("native_discount_rate %d exceeds %d bps", c.NativeDiscountRate, MaxBps)
	}
	if c.NativeDenom == "" {
		return fmt.Errorf("native_denom is empty")
	}
	return nil
}

// Normalized returns the configuration with every address trimmed and
// lower-cased and an empty native denom replaced by DefaultNativeDenom.
func (c Config) Normalized() Config {
	c.Admin = NormalizeAddr(string(c.Admin))
	c.CustomTokenAddress = NormalizeAddr(string(c.CustomTokenAddress))
	c.PairFundsProvider = NormalizeAddr(string(c.PairFundsProvider))
	c.NativeFundsProvider = NormalizeAddr(string(c.NativeFundsProvider))
	c.AuthorizedLiquidityProvider = NormalizeAddr(string(c.AuthorizedLiquidityProvider))
	c.DefaultShareReceiver = NormalizeAddr(string(c.DefaultShareReceiver))
	c.PoolPairAddress = NormalizeAddr(string(c.PoolPairAddress))
	if c.NativeDenom == "" {
		c.NativeDenom = DefaultNativeDenom
	}
	return c
}

// ContractVersion identifies the code that instantiated the contract state.
type ContractVersion struct {
	Contract string `json:"contract"`
	Version  string `json:"version"`
}

// OperationKind names the kind of outbound call a continuation waits on.
type OperationKind string

const (
	KindTransferFrom      OperationKind = "transfer_from"
	KindIncreaseAllowance OperationKind = "increase_allowance"
	KindProvideLiquidity  OperationKind = "provide_liquidity"
)

// NextAction names the step to run when a continuation's reply succeeds.
type NextAction string

const (
	NextIncreaseAllowance                  NextAction = "increase_allowance"
	NextProvideLiquidity                   NextAction = "provide_liquidity"
	NextTransferCustomAssetsFromFundsOwner NextAction = "transfer_custom_assets_from_funds_owner"

	// NextFinalize is only stored for pool deposits when compensation is
	// enabled; its success reply is a pass-through.
	NextFinalize NextAction = "finalize"
)

// Continuation is the durable record of what to do when the reply for a
// correlation id arrives.
type Continuation struct {
	ID           uint64          `json:"id"`
	FlowToken    string          `json:"flow_token"`
	Kind         OperationKind   `json:"kind"`
	NextAction   NextAction      `json:"next_action"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Funds        []Coin          `json:"funds,omitempty"`
	User         Addr            `json:"user"`
	RewardPaired bool            `json:"reward_paired"`

	// Holdings are the reward tokens the chain has already pulled into the
	// proxy. Transfer is the pull this continuation waits on, if any.
	Holdings []Holding `json:"holdings,omitempty"`
	Transfer *Holding  `json:"transfer,omitempty"`
}

// Holding is an amount of reward tokens held by the proxy for an owner.
type Holding struct {
	Owner  Addr           `json:"owner"`
	Amount amount.Uint128 `json:"amount"`
}

// HoldingsAfter returns the holdings in effect once the continuation's
// pending transfer has succeeded.
func (c Continuation) HoldingsAfter() []Holding {
	out := make([]Holding, 0, len(c.Holdings)+1)
	out = append(out, c.Holdings...)
	if c.Transfer != nil && !c.Transfer.Amount.IsZero() {
		out = append(out, *c.Transfer)
	}
	return out
}

// RewardBond is one discounted reward entitlement of a depositor.
type RewardBond struct {
	Depositor             Addr           `json:"user"`
	Amount                amount.Uint128 `json:"amount"`
	BondingPeriodSec      uint64         `json:"bonding_period_sec"`
	BondingStartTimestamp Timestamp      `json:"bonding_start"`
}
