package ir

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/poolproxy/internal/amount"
)

// TokenAsset identifies a fungible token by its contract address.
type TokenAsset struct {
	ContractAddr Addr `json:"contract_addr"`
}

// NativeAsset identifies a native coin by denomination.
type NativeAsset struct {
	Denom string `json:"denom"`
}

// AssetInfo is a tagged union: exactly one of Token or NativeToken is set.
type AssetInfo struct {
	Token       *TokenAsset  `json:"token,omitempty" yaml:"token,omitempty"`
	NativeToken *NativeAsset `json:"native_token,omitempty" yaml:"native_token,omitempty"`
}

// TokenInfo returns the AssetInfo for a token contract.
func TokenInfo(addr Addr) AssetInfo {
	return AssetInfo{Token: &TokenAsset{ContractAddr: addr}}
}

// NativeInfo returns the AssetInfo for a native denomination.
func NativeInfo(denom string) AssetInfo {
	return AssetInfo{NativeToken: &NativeAsset{Denom: denom}}
}

// IsNative reports whether the asset is a native coin.
func (a AssetInfo) IsNative() bool {
	return a.NativeToken != nil
}

// Check validates that exactly one variant is set and that it is well formed.
func (a AssetInfo) Check() error {
	switch {
	case a.Token != nil && a.NativeToken != nil:
		return fmt.Errorf("asset info sets both token and native_token")
	case a.Token != nil:
		if err := a.Token.ContractAddr.Validate(); err != nil {
			return fmt.Errorf("token contract_addr: %w", err)
		}
		return nil
	case a.NativeToken != nil:
		if a.NativeToken.Denom == "" {
			return fmt.Errorf("native_token denom is empty")
		}
		return nil
	default:
		return fmt.Errorf("asset info is empty")
	}
}

// Equal reports whether two asset infos name the same asset.
func (a AssetInfo) Equal(b AssetInfo) bool {
	switch {
	case a.Token != nil && b.Token != nil:
		return a.Token.ContractAddr == b.Token.ContractAddr
	case a.NativeToken != nil && b.NativeToken != nil:
		return a.NativeToken.Denom == b.NativeToken.Denom
	default:
		return false
	}
}

func (a AssetInfo) String() string {
	switch {
	case a.Token != nil:
		return string(a.Token.ContractAddr)
	case a.NativeToken != nil:
		return a.NativeToken.Denom
	default:
		return "<none>"
	}
}

// Asset is an amount of one asset.
type Asset struct {
	Info   AssetInfo      `json:"info" yaml:"info"`
	Amount amount.Uint128 `json:"amount" yaml:"amount"`
}

// Coin is a native coin attached to a call.
type Coin struct {
	Denom  string         `json:"denom" yaml:"denom"`
	Amount amount.Uint128 `json:"amount" yaml:"amount"`
}

// Decimal is a decimal fraction passed through to the pool untouched.
type Decimal string

// ReplyOn says when the host must deliver a sub-message outcome.
type ReplyOn string

const (
	ReplyAlways ReplyOn = "always"
	ReplyNever  ReplyOn = "never"
)

// InstantiateMsg creates the contract state.
type InstantiateMsg struct {
	Config Config `json:"config" yaml:"config"`
}

// ExecuteMsg is the inbound request surface. Exactly one field is set.
type ExecuteMsg struct {
	Configure              *ConfigureMsg              `json:"configure,omitempty" yaml:"configure,omitempty"`
	Receive                *ReceiveMsg                `json:"receive,omitempty" yaml:"receive,omitempty"`
	ProvideLiquidity       *ProvideLiquidityMsg       `json:"provide_liquidity,omitempty" yaml:"provide_liquidity,omitempty"`
	ProvidePairForReward   *ProvideLiquidityMsg       `json:"provide_pair_for_reward,omitempty" yaml:"provide_pair_for_reward,omitempty"`
	ProvideNativeForReward *ProvideNativeForRewardMsg `json:"provide_native_for_reward,omitempty" yaml:"provide_native_for_reward,omitempty"`
	Swap                   *SwapMsg                   `json:"swap,omitempty" yaml:"swap,omitempty"`
	SetSwapOpeningDate     *SetSwapOpeningDateMsg     `json:"set_swap_opening_date,omitempty" yaml:"set_swap_opening_date,omitempty"`
}

// Variant returns the name of the single set variant.
func (m ExecuteMsg) Variant() (string, error) {
	var names []string
	if m.Configure != nil {
		names = append(names, "configure")
	}
	if m.Receive != nil {
		names = append(names, "receive")
	}
	if m.ProvideLiquidity != nil {
		names = append(names, "provide_liquidity")
	}
	if m.ProvidePairForReward != nil {
		names = append(names, "provide_pair_for_reward")
	}
	if m.ProvideNativeForReward != nil {
		names = append(names, "provide_native_for_reward")
	}
	if m.Swap != nil {
		names = append(names, "swap")
	}
	if m.SetSwapOpeningDate != nil {
		names = append(names, "set_swap_opening_date")
	}
	return singleVariant("execute", names)
}

func singleVariant(kind string, names []string) (string, error) {
	switch len(names) {
	case 0:
		return "", fmt.Errorf("%s message has no variant", kind)
	case 1:
		return names[0], nil
	default:
		return "", fmt.Errorf("%s message has %d variants %v, want exactly one", kind, len(names), names)
	}
}

// ConfigureMsg updates the pool address and swap opening date. A nil
// PoolPairAddress keeps the current pool.
type ConfigureMsg struct {
	PoolPairAddress *Addr     `json:"pool_pair_address,omitempty" yaml:"pool_pair_address,omitempty"`
	SwapOpeningDate Timestamp `json:"swap_opening_date" yaml:"swap_opening_date"`
}

// ReceiveMsg is the token contract's transfer notification.
type ReceiveMsg struct {
	Sender Addr            `json:"sender" yaml:"sender"`
	Amount amount.Uint128  `json:"amount" yaml:"amount"`
	Msg    json.RawMessage `json:"msg" yaml:"-"`
}

// HookMsg is the inner message of a ReceiveMsg.
type HookMsg struct {
	Swap              *HookSwap `json:"swap,omitempty"`
	WithdrawLiquidity *struct{} `json:"withdraw_liquidity,omitempty"`
}

// HookSwap sells the received tokens on the pool.
type HookSwap struct {
	BeliefPrice *Decimal `json:"belief_price,omitempty"`
	MaxSpread   *Decimal `json:"max_spread,omitempty"`
	To          *Addr    `json:"to,omitempty"`
}

// ProvideLiquidityMsg deposits both legs of the pair.
type ProvideLiquidityMsg struct {
	Assets            [2]Asset `json:"assets" yaml:"assets"`
	SlippageTolerance *Decimal `json:"slippage_tolerance,omitempty" yaml:"slippage_tolerance,omitempty"`
	AutoStake         *bool    `json:"auto_stake,omitempty" yaml:"auto_stake,omitempty"`
}

// ProvideNativeForRewardMsg deposits the native leg only.
type ProvideNativeForRewardMsg struct {
	Asset             Asset    `json:"asset" yaml:"asset"`
	SlippageTolerance *Decimal `json:"slippage_tolerance,omitempty" yaml:"slippage_tolerance,omitempty"`
	AutoStake         *bool    `json:"auto_stake,omitempty" yaml:"auto_stake,omitempty"`
}

// SwapMsg offers a native asset to the pool.
type SwapMsg struct {
	OfferAsset  Asset    `json:"offer_asset" yaml:"offer_asset"`
	BeliefPrice *Decimal `json:"belief_price,omitempty" yaml:"belief_price,omitempty"`
	MaxSpread   *Decimal `json:"max_spread,omitempty" yaml:"max_spread,omitempty"`
	To          *Addr    `json:"to,omitempty" yaml:"to,omitempty"`
}

// SetSwapOpeningDateMsg replaces the swap opening date.
type SetSwapOpeningDateMsg struct {
	SwapOpeningDate Timestamp `json:"swap_opening_date" yaml:"swap_opening_date"`
}

// QueryMsg is the read-only surface. Exactly one field is set.
type QueryMsg struct {
	Configuration               *struct{}          `json:"configuration,omitempty" yaml:"configuration,omitempty"`
	Pool                        *struct{}          `json:"pool,omitempty" yaml:"pool,omitempty"`
	Pair                        *struct{}          `json:"pair,omitempty" yaml:"pair,omitempty"`
	Simulation                  *SimulationQuery   `json:"simulation,omitempty" yaml:"simulation,omitempty"`
	ReverseSimulation           *ReverseSimulation `json:"reverse_simulation,omitempty" yaml:"reverse_simulation,omitempty"`
	CumulativePrices            *struct{}          `json:"cumulative_prices,omitempty" yaml:"cumulative_prices,omitempty"`
	GetSwapOpeningDate          *struct{}          `json:"get_swap_opening_date,omitempty" yaml:"get_swap_opening_date,omitempty"`
	GetBondingDetails           *BondingQuery      `json:"get_bonding_details,omitempty" yaml:"get_bonding_details,omitempty"`
	GetRewardEquivalentToNative *AmountQuery       `json:"get_reward_equivalent_to_native,omitempty" yaml:"get_reward_equivalent_to_native,omitempty"`
	GetNativeEquivalentToReward *AmountQuery       `json:"get_native_equivalent_to_reward,omitempty" yaml:"get_native_equivalent_to_reward,omitempty"`
}

// Variant returns the name of the single set variant.
func (q QueryMsg) Variant() (string, error) {
	var names []string
	add := func(set bool, name string) {
		if set {
			names = append(names, name)
		}
	}
	add(q.Configuration != nil, "configuration")
	add(q.Pool != nil, "pool")
	add(q.Pair != nil, "pair")
	add(q.Simulation != nil, "simulation")
	add(q.ReverseSimulation != nil, "reverse_simulation")
	add(q.CumulativePrices != nil, "cumulative_prices")
	add(q.GetSwapOpeningDate != nil, "get_swap_opening_date")
	add(q.GetBondingDetails != nil, "get_bonding_details")
	add(q.GetRewardEquivalentToNative != nil, "get_reward_equivalent_to_native")
	add(q.GetNativeEquivalentToReward != nil, "get_native_equivalent_to_reward")
	return singleVariant("query", names)
}

// SimulationQuery asks the pool how much it would return for an offer.
type SimulationQuery struct {
	OfferAsset Asset `json:"offer_asset" yaml:"offer_asset"`
}

// ReverseSimulation asks the pool what offer yields the requested asset.
type ReverseSimulation struct {
	AskAsset Asset `json:"ask_asset" yaml:"ask_asset"`
}

// BondingQuery lists the reward bonds of one depositor.
type BondingQuery struct {
	UserAddress Addr `json:"user_address" yaml:"user_address"`
}

// AmountQuery carries a single amount.
type AmountQuery struct {
	Amount amount.Uint128 `json:"amount" yaml:"amount"`
}

// PoolResponse reports the pool reserves and total share supply.
type PoolResponse struct {
	Assets     [2]Asset       `json:"assets"`
	TotalShare amount.Uint128 `json:"total_share"`
}

// PairInfo describes the pool pair.
type PairInfo struct {
	AssetInfos     [2]AssetInfo `json:"asset_infos"`
	ContractAddr   Addr         `json:"contract_addr"`
	LiquidityToken Addr         `json:"liquidity_token"`
}

// SimulationResponse is the pool's answer to a simulation query.
type SimulationResponse struct {
	ReturnAmount     amount.Uint128 `json:"return_amount"`
	SpreadAmount     amount.Uint128 `json:"spread_amount"`
	CommissionAmount amount.Uint128 `json:"commission_amount"`
}

// ReverseSimulationResponse is the pool's answer to a reverse simulation query.
type ReverseSimulationResponse struct {
	OfferAmount      amount.Uint128 `json:"offer_amount"`
	SpreadAmount     amount.Uint128 `json:"spread_amount"`
	CommissionAmount amount.Uint128 `json:"commission_amount"`
}

// CumulativePricesResponse reports the pool's cumulative prices.
type CumulativePricesResponse struct {
	Assets               [2]Asset       `json:"assets"`
	TotalShare           amount.Uint128 `json:"total_share"`
	Price0CumulativeLast amount.Uint128 `json:"price0_cumulative_last"`
	Price1CumulativeLast amount.Uint128 `json:"price1_cumulative_last"`
}

// BondingDetailsResponse lists a depositor's reward bonds in append order.
type BondingDetailsResponse struct {
	User  Addr         `json:"user"`
	Bonds []RewardBond `json:"bonds"`
}

// TokenMsg is a call on the token contract. Exactly one field is set.
type TokenMsg struct {
	TransferFrom      *TransferFrom    `json:"transfer_from,omitempty"`
	Transfer          *Transfer        `json:"transfer,omitempty"`
	IncreaseAllowance *AllowanceChange `json:"increase_allowance,omitempty"`
	DecreaseAllowance *AllowanceChange `json:"decrease_allowance,omitempty"`
	Send              *Send            `json:"send,omitempty"`
}

// TransferFrom moves tokens from owner to recipient using an allowance.
type TransferFrom struct {
	Owner     Addr           `json:"owner"`
	Recipient Addr           `json:"recipient"`
	Amount    amount.Uint128 `json:"amount"`
}

// Transfer moves tokens from the caller to recipient.
type Transfer struct {
	Recipient Addr           `json:"recipient"`
	Amount    amount.Uint128 `json:"amount"`
}

// AllowanceChange raises or lowers the spender's allowance. Expires is
// always omitted: allowances granted here never expire.
type AllowanceChange struct {
	Spender Addr           `json:"spender"`
	Amount  amount.Uint128 `json:"amount"`
}

// Send transfers tokens to a contract and invokes its receive hook.
type Send struct {
	Contract Addr            `json:"contract"`
	Amount   amount.Uint128  `json:"amount"`
	Msg      json.RawMessage `json:"msg"`
}

// PoolMsg is a call on the pool contract. Exactly one field is set.
type PoolMsg struct {
	ProvideLiquidity *PoolProvideLiquidity `json:"provide_liquidity,omitempty"`
	Swap             *PoolSwap             `json:"swap,omitempty"`
}

// PoolProvideLiquidity is the deferred deposit carried in continuation
// payloads.
type PoolProvideLiquidity struct {
	Assets            [2]Asset `json:"assets"`
	SlippageTolerance *Decimal `json:"slippage_tolerance,omitempty"`
	AutoStake         *bool    `json:"auto_stake,omitempty"`
	Receiver          *Addr    `json:"receiver,omitempty"`
}

// PoolSwap swaps the offered asset on the pool.
type PoolSwap struct {
	OfferAsset  Asset    `json:"offer_asset"`
	BeliefPrice *Decimal `json:"belief_price,omitempty"`
	MaxSpread   *Decimal `json:"max_spread,omitempty"`
	To          *Addr    `json:"to,omitempty"`
}

// SubMsg is an outbound call returned to the host for dispatch.
type SubMsg struct {
	ID       uint64          `json:"id"`
	Contract Addr            `json:"contract"`
	Msg      json.RawMessage `json:"msg"`
	Funds    []Coin          `json:"funds,omitempty"`
	ReplyOn  ReplyOn         `json:"reply_on"`
}

// Attribute is a key/value pair on a response or event.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Event is an event emitted by an inner call.
type Event struct {
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes"`
}

// Response is the result of a successful invocation.
type Response struct {
	Messages   []SubMsg    `json:"messages,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
	Data       []byte      `json:"data,omitempty"`
}

// AddAttribute appends an attribute and returns the response.
func (r *Response) AddAttribute(key, value string) *Response {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
	return r
}

// Attribute returns the first attribute value stored under key.
func (r Response) Attribute(key string) (string, bool) {
	for _, a := range r.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// SubMsgResponse is the success payload of an inner call.
type SubMsgResponse struct {
	Events []Event `json:"events"`
	Data   []byte  `json:"data,omitempty"`
}

// SubMsgResult holds either Ok or Err.
type SubMsgResult struct {
	Ok  *SubMsgResponse `json:"ok,omitempty"`
	Err string          `json:"error,omitempty"`
}

// IsOk reports whether the inner call succeeded.
func (r SubMsgResult) IsOk() bool {
	return r.Ok != nil
}

// Reply is the outcome of an outbound call, delivered by the host.
type Reply struct {
	ID     uint64       `json:"id"`
	Result SubMsgResult `json:"result"`
}

// OkReply builds a success reply.
func OkReply(id uint64, events []Event, data []byte) Reply {
	return Reply{ID: id, Result: SubMsgResult{Ok: &SubMsgResponse{Events: events, Data: data}}}
}

// ErrReply builds a failure reply.
func ErrReply(id uint64, msg string) Reply {
	return Reply{ID: id, Result: SubMsgResult{Err: msg}}
}

// Env is the host environment of one invocation.
type Env struct {
	BlockTime       Timestamp `json:"block_time"`
	ContractAddress Addr      `json:"contract_address"`
}

// MessageInfo identifies the caller and the native funds it attached.
type MessageInfo struct {
	Sender Addr   `json:"sender"`
	Funds  []Coin `json:"funds,omitempty"`
}

// AmountResponse answers the equivalence queries.
type AmountResponse struct {
	Amount amount.Uint128 `json:"amount"`
}
