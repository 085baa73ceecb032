package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/poolproxy/internal/amount"
	"github.com/roach88/poolproxy/internal/config"
	"github.com/roach88/poolproxy/internal/engine"
	"github.com/roach88/poolproxy/internal/ir"
	"github.com/roach88/poolproxy/internal/reward"
)

// Host is an in-process stand-in for the chain the proxy runs on. It keeps
// a reward-token ledger, native balances and a reserve-only pool, and it
// answers every outbound call with a reply event on the engine's queue.
//
// Host implements engine.Dispatcher, engine.PoolQuerier and
// engine.TaxQuerier. Every call is applied all-or-nothing: a failed call
// leaves the ledgers untouched.
type Host struct {
	mu     sync.Mutex
	engine *engine.Engine

	proxy ir.Addr
	token ir.Addr
	pool  ir.Addr
	denom string

	tokens     map[ir.Addr]amount.Uint128
	allowances map[allowanceKey]amount.Uint128
	native     map[ir.Addr]amount.Uint128
	shares     map[ir.Addr]amount.Uint128
	reserves   reward.Reserves
	totalShare amount.Uint128
	tax        config.Tax
	fail       map[string]string

	seq   int64
	trace []TraceEvent
}

type allowanceKey struct {
	owner   ir.Addr
	spender ir.Addr
}

// HostState is a snapshot of the host's ledgers.
type HostState struct {
	TokenBalances  map[ir.Addr]amount.Uint128 `json:"token_balances"`
	NativeBalances map[ir.Addr]amount.Uint128 `json:"native_balances"`
	Shares         map[ir.Addr]amount.Uint128 `json:"shares"`
	ReserveNative  amount.Uint128             `json:"reserve_native"`
	ReserveReward  amount.Uint128             `json:"reserve_reward"`
	TotalShare     amount.Uint128             `json:"total_share"`
}

// NewHost creates a host for the proxy at address proxy, using the token,
// pool and native denom of inst. Token allowances in cfg are granted to the
// proxy. The pool starts with a total share equal to its native reserve.
func NewHost(cfg config.Host, inst ir.Config, proxy ir.Addr) *Host {
	inst = inst.Normalized()
	h := &Host{
		proxy:      ir.NormalizeAddr(string(proxy)),
		token:      inst.CustomTokenAddress,
		pool:       inst.PoolPairAddress,
		denom:      inst.NativeDenom,
		tokens:     make(map[ir.Addr]amount.Uint128),
		allowances: make(map[allowanceKey]amount.Uint128),
		native:     make(map[ir.Addr]amount.Uint128),
		shares:     make(map[ir.Addr]amount.Uint128),
		reserves:   reward.Reserves{Native: cfg.Reserves.Native, Reward: cfg.Reserves.Reward},
		totalShare: cfg.Reserves.Native,
		tax:        cfg.Tax,
		fail:       make(map[string]string),
	}
	for owner, amt := range cfg.TokenBalances {
		h.tokens[ir.NormalizeAddr(string(owner))] = amt
	}
	for owner, amt := range cfg.TokenAllowances {
		h.allowances[allowanceKey{owner: ir.NormalizeAddr(string(owner)), spender: h.proxy}] = amt
	}
	for owner, amt := range cfg.NativeBalances {
		h.native[ir.NormalizeAddr(string(owner))] = amt
	}
	for call, reason := range cfg.Fail {
		h.fail[call] = reason
	}
	return h
}

// Attach sets the engine that receives the host's reply events.
func (h *Host) Attach(e *engine.Engine) {
	h.engine = e
}

// SetPool points the host at a new pool address, as after Configure.
func (h *Host) SetPool(pool ir.Addr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pool = ir.NormalizeAddr(string(pool))
}

// Submit enqueues an inbound request from sender and returns the sequence
// number of its trace event. The attached native funds move to the proxy
// first and are returned if the request is rejected.
func (h *Host) Submit(sender ir.Addr, msg ir.ExecuteMsg, funds []ir.Coin) (int64, error) {
	sender = ir.NormalizeAddr(string(sender))
	variant, _ := msg.Variant()

	h.mu.Lock()
	total, err := h.nativeTotal(funds, false)
	if err == nil {
		err = h.moveNative(sender, h.proxy, total)
	}
	if err != nil {
		h.mu.Unlock()
		return 0, fmt.Errorf("attach funds: %w", err)
	}
	idx := h.record(TraceEvent{Type: EventExecute, Sender: string(sender), Variant: variant})
	seq := h.seq
	h.mu.Unlock()

	ev := engine.ExecuteEvent(ir.MessageInfo{Sender: sender, Funds: funds}, msg)
	ev.Done = func(_ ir.Response, err error) {
		if err == nil {
			return
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		h.trace[idx].Code = string(engine.CodeOf(err))
		if rerr := h.moveNative(h.proxy, sender, total); rerr != nil {
			slog.Error("refund of rejected request failed", "sender", sender, "error", rerr)
		}
	}
	return seq, h.enqueue(ev)
}

// SendTokens moves reward tokens from sender to the proxy and delivers the
// token's receive notification carrying hook. The tokens are returned if
// the proxy rejects the notification.
func (h *Host) SendTokens(sender ir.Addr, amt amount.Uint128, hook json.RawMessage) (int64, error) {
	sender = ir.NormalizeAddr(string(sender))

	h.mu.Lock()
	if err := h.moveTokens(sender, h.proxy, amt); err != nil {
		h.mu.Unlock()
		return 0, fmt.Errorf("send tokens: %w", err)
	}
	idx := h.record(TraceEvent{Type: EventExecute, Sender: string(h.token), Variant: "receive"})
	seq := h.seq
	h.mu.Unlock()

	msg := ir.ExecuteMsg{Receive: &ir.ReceiveMsg{Sender: sender, Amount: amt, Msg: hook}}
	ev := engine.ExecuteEvent(ir.MessageInfo{Sender: h.token}, msg)
	ev.Done = func(_ ir.Response, err error) {
		if err == nil {
			return
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		h.trace[idx].Code = string(engine.CodeOf(err))
		if rerr := h.moveTokens(h.proxy, sender, amt); rerr != nil {
			slog.Error("refund of rejected send failed", "sender", sender, "error", rerr)
		}
	}
	return seq, h.enqueue(ev)
}

// Dispatch applies an outbound call and enqueues its reply.
func (h *Host) Dispatch(_ context.Context, flowToken string, msg ir.SubMsg) error {
	h.mu.Lock()
	call, err := h.apply(msg)
	ev := TraceEvent{
		Type:     EventDispatch,
		ID:       msg.ID,
		Call:     call,
		Contract: string(msg.Contract),
		Flow:     flowToken,
		Outcome:  "ok",
	}
	reply := ir.OkReply(msg.ID, []ir.Event{{
		Type:       "wasm",
		Attributes: []ir.Attribute{{Key: "call", Value: call}},
	}}, nil)
	if err != nil {
		ev.Outcome = "error"
		ev.Error = err.Error()
		reply = ir.ErrReply(msg.ID, err.Error())
	}
	idx := h.record(ev)
	h.mu.Unlock()

	slog.Debug("host applied call",
		"id", msg.ID,
		"call", call,
		"contract", msg.Contract,
		"flow_token", flowToken,
		"error", err,
	)

	rev := engine.ReplyEvent(reply)
	rev.Done = func(_ ir.Response, err error) {
		if err == nil {
			return
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		h.trace[idx].Code = string(engine.CodeOf(err))
	}
	return h.enqueue(rev)
}

func (h *Host) enqueue(ev engine.Event) error {
	if h.engine == nil {
		return fmt.Errorf("host is not attached to an engine")
	}
	if !h.engine.Enqueue(ev) {
		return fmt.Errorf("engine is stopped")
	}
	return nil
}

// record appends a trace event and returns its index. Caller holds mu.
func (h *Host) record(ev TraceEvent) int {
	h.seq++
	ev.Seq = h.seq
	h.trace = append(h.trace, ev)
	return len(h.trace) - 1
}

// Event returns the trace event with sequence number seq.
func (h *Host) Event(seq int64) (TraceEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if seq < 1 || seq > int64(len(h.trace)) {
		return TraceEvent{}, false
	}
	return h.trace[seq-1], true
}

// Trace returns a copy of the events recorded so far.
func (h *Host) Trace() []TraceEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]TraceEvent, len(h.trace))
	copy(out, h.trace)
	return out
}

// State returns a snapshot of the ledgers.
func (h *Host) State() *HostState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return &HostState{
		TokenBalances:  copyBalances(h.tokens),
		NativeBalances: copyBalances(h.native),
		Shares:         copyBalances(h.shares),
		ReserveNative:  h.reserves.Native,
		ReserveReward:  h.reserves.Reward,
		TotalShare:     h.totalShare,
	}
}

// Allowance returns what spender may still pull from owner.
func (h *Host) Allowance(owner, spender ir.Addr) amount.Uint128 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allowances[allowanceKey{owner: owner, spender: spender}]
}

func copyBalances(m map[ir.Addr]amount.Uint128) map[ir.Addr]amount.Uint128 {
	out := make(map[ir.Addr]amount.Uint128, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// apply runs one outbound call. Caller holds mu.
func (h *Host) apply(msg ir.SubMsg) (string, error) {
	if msg.Contract == h.token {
		var tm ir.TokenMsg
		if err := json.Unmarshal(msg.Msg, &tm); err != nil {
			return "unknown", fmt.Errorf("decode token message: %w", err)
		}
		call := tokenCall(tm)
		if reason, ok := h.fail[call]; ok {
			return call, errors.New(reason)
		}
		return call, h.applyToken(tm)
	}
	if msg.Contract != h.pool {
		return "unknown", fmt.Errorf("no contract at %s", msg.Contract)
	}

	var pm ir.PoolMsg
	if err := json.Unmarshal(msg.Msg, &pm); err != nil {
		return "unknown", fmt.Errorf("decode pool message: %w", err)
	}
	call := poolCall(pm)
	if reason, ok := h.fail[call]; ok {
		return call, errors.New(reason)
	}
	return call, h.applyPool(msg.Funds, pm)
}

func tokenCall(m ir.TokenMsg) string {
	switch {
	case m.TransferFrom != nil:
		return "transfer_from"
	case m.Transfer != nil:
		return "transfer"
	case m.IncreaseAllowance != nil:
		return "increase_allowance"
	case m.DecreaseAllowance != nil:
		return "decrease_allowance"
	case m.Send != nil:
		return "send"
	default:
		return "unknown"
	}
}

func poolCall(m ir.PoolMsg) string {
	switch {
	case m.ProvideLiquidity != nil:
		return "provide_liquidity"
	case m.Swap != nil:
		return "swap"
	default:
		return "unknown"
	}
}

// applyToken executes a token call sent by the proxy.
func (h *Host) applyToken(m ir.TokenMsg) error {
	switch {
	case m.TransferFrom != nil:
		t := m.TransferFrom
		key := allowanceKey{owner: t.Owner, spender: h.proxy}
		left, err := h.allowances[key].CheckedSub(t.Amount)
		if err != nil {
			return fmt.Errorf("insufficient allowance: %s allows %s, need %s", t.Owner, h.allowances[key], t.Amount)
		}
		if err := h.moveTokens(t.Owner, t.Recipient, t.Amount); err != nil {
			return err
		}
		h.allowances[key] = left
		return nil

	case m.Transfer != nil:
		return h.moveTokens(h.proxy, m.Transfer.Recipient, m.Transfer.Amount)

	case m.IncreaseAllowance != nil:
		key := allowanceKey{owner: h.proxy, spender: m.IncreaseAllowance.Spender}
		sum, err := h.allowances[key].CheckedAdd(m.IncreaseAllowance.Amount)
		if err != nil {
			return fmt.Errorf("allowance overflow")
		}
		h.allowances[key] = sum
		return nil

	case m.DecreaseAllowance != nil:
		key := allowanceKey{owner: h.proxy, spender: m.DecreaseAllowance.Spender}
		left, err := h.allowances[key].CheckedSub(m.DecreaseAllowance.Amount)
		if err != nil {
			left = amount.Zero()
		}
		h.allowances[key] = left
		return nil

	case m.Send != nil:
		return h.send(m.Send)

	default:
		return fmt.Errorf("unsupported token call")
	}
}

// send moves tokens from the proxy to a contract. Tokens sent to the pool
// with a swap hook are swapped for native coins.
func (h *Host) send(s *ir.Send) error {
	if s.Contract != h.pool {
		return h.moveTokens(h.proxy, s.Contract, s.Amount)
	}

	var hook ir.HookMsg
	if err := json.Unmarshal(s.Msg, &hook); err != nil || hook.Swap == nil {
		return fmt.Errorf("pool accepts only swap hooks")
	}
	tokens, err := h.tokens[h.proxy].CheckedSub(s.Amount)
	if err != nil {
		return fmt.Errorf("insufficient funds: %s holds %s, need %s", h.proxy, h.tokens[h.proxy], s.Amount)
	}
	out := swapOut(s.Amount, h.reserves.Reward, h.reserves.Native)
	reserveReward, err := h.reserves.Reward.CheckedAdd(s.Amount)
	if err != nil {
		return fmt.Errorf("reward reserve overflow")
	}
	reserveNative, err := h.reserves.Native.CheckedSub(out)
	if err != nil {
		return fmt.Errorf("native reserve underflow")
	}
	recipient := h.proxy
	if hook.Swap.To != nil {
		recipient = ir.NormalizeAddr(string(*hook.Swap.To))
	}
	credited, err := h.native[recipient].CheckedAdd(out)
	if err != nil {
		return fmt.Errorf("balance overflow")
	}

	h.tokens[h.proxy] = tokens
	h.reserves.Reward = reserveReward
	h.reserves.Native = reserveNative
	h.native[recipient] = credited
	return nil
}

// applyPool executes a pool call with the native funds the proxy attached.
// The proxy pays each coin plus its levy.
func (h *Host) applyPool(funds []ir.Coin, m ir.PoolMsg) error {
	in, err := h.nativeTotal(funds, false)
	if err != nil {
		return err
	}
	debit, err := h.nativeTotal(funds, true)
	if err != nil {
		return err
	}
	remaining, err := h.native[h.proxy].CheckedSub(debit)
	if err != nil {
		return fmt.Errorf("insufficient native funds: %s holds %s%s, need %s", h.proxy, h.native[h.proxy], h.denom, debit)
	}

	switch {
	case m.ProvideLiquidity != nil:
		leg := reward.RewardLeg(m.ProvideLiquidity.Assets)
		key := allowanceKey{owner: h.proxy, spender: h.pool}
		allowance, err := h.allowances[key].CheckedSub(leg)
		if err != nil {
			return fmt.Errorf("insufficient allowance: pool may pull %s, need %s", h.allowances[key], leg)
		}
		tokens, err := h.tokens[h.proxy].CheckedSub(leg)
		if err != nil {
			return fmt.Errorf("insufficient funds: %s holds %s, need %s", h.proxy, h.tokens[h.proxy], leg)
		}
		receiver := h.proxy
		if m.ProvideLiquidity.Receiver != nil {
			receiver = *m.ProvideLiquidity.Receiver
		}
		share := h.mintShare(in, leg)
		reserveNative, err := h.reserves.Native.CheckedAdd(in)
		if err != nil {
			return fmt.Errorf("native reserve overflow")
		}
		reserveReward, err := h.reserves.Reward.CheckedAdd(leg)
		if err != nil {
			return fmt.Errorf("reward reserve overflow")
		}
		shares, err := h.shares[receiver].CheckedAdd(share)
		if err != nil {
			return fmt.Errorf("share overflow")
		}
		totalShare, err := h.totalShare.CheckedAdd(share)
		if err != nil {
			return fmt.Errorf("total share overflow")
		}

		h.native[h.proxy] = remaining
		h.allowances[key] = allowance
		h.tokens[h.proxy] = tokens
		h.reserves.Native = reserveNative
		h.reserves.Reward = reserveReward
		if !share.IsZero() {
			h.shares[receiver] = shares
			h.totalShare = totalShare
		}
		return nil

	case m.Swap != nil:
		if !m.Swap.OfferAsset.Info.IsNative() {
			return fmt.Errorf("token offers must arrive through send")
		}
		out := swapOut(in, h.reserves.Native, h.reserves.Reward)
		recipient := h.proxy
		if m.Swap.To != nil {
			recipient = *m.Swap.To
		}

		reserveNative, err := h.reserves.Native.CheckedAdd(in)
		if err != nil {
			return fmt.Errorf("native reserve overflow")
		}
		reserveReward, err := h.reserves.Reward.CheckedSub(out)
		if err != nil {
			return fmt.Errorf("reward reserve underflow")
		}
		credited, err := h.tokens[recipient].CheckedAdd(out)
		if err != nil {
			return fmt.Errorf("balance overflow")
		}

		h.native[h.proxy] = remaining
		h.reserves.Native = reserveNative
		h.reserves.Reward = reserveReward
		h.tokens[recipient] = credited
		return nil

	default:
		return fmt.Errorf("unsupported pool call")
	}
}

// mintShare is the pool share issued for a deposit. The first deposit into
// an empty pool is issued its native amount.
func (h *Host) mintShare(native, tokens amount.Uint128) amount.Uint128 {
	if h.totalShare.IsZero() {
		return native
	}
	byNative := native.MulOrZero(h.totalShare).DivOrZero(h.reserves.Native)
	byReward := tokens.MulOrZero(h.totalShare).DivOrZero(h.reserves.Reward)
	return amount.Min(byNative, byReward)
}

// swapOut is the constant-product return for offering in against the
// offer and ask reserves, without fees.
func swapOut(in, offerReserve, askReserve amount.Uint128) amount.Uint128 {
	pool, err := offerReserve.CheckedAdd(in)
	if err != nil {
		return amount.Zero()
	}
	return in.MulOrZero(askReserve).DivOrZero(pool)
}

// nativeTotal sums coins of the host denom, optionally adding each coin's
// levy. Caller holds mu.
func (h *Host) nativeTotal(coins []ir.Coin, withTax bool) (amount.Uint128, error) {
	total := amount.Zero()
	for _, c := range coins {
		if c.Denom != h.denom {
			return amount.Zero(), fmt.Errorf("unknown denom %q", c.Denom)
		}
		amt := c.Amount
		if withTax {
			var err error
			if amt, err = amt.CheckedAdd(h.levy(c.Amount)); err != nil {
				return amount.Zero(), fmt.Errorf("amount overflow")
			}
		}
		var err error
		if total, err = total.CheckedAdd(amt); err != nil {
			return amount.Zero(), fmt.Errorf("amount overflow")
		}
	}
	return total, nil
}

func (h *Host) moveNative(from, to ir.Addr, amt amount.Uint128) error {
	return move(h.native, from, to, amt, h.denom)
}

func (h *Host) moveTokens(from, to ir.Addr, amt amount.Uint128) error {
	return move(h.tokens, from, to, amt, "")
}

func move(ledger map[ir.Addr]amount.Uint128, from, to ir.Addr, amt amount.Uint128, unit string) error {
	if amt.IsZero() || from == to {
		return nil
	}
	left, err := ledger[from].CheckedSub(amt)
	if err != nil {
		return fmt.Errorf("insufficient funds: %s holds %s%s, need %s", from, ledger[from], unit, amt)
	}
	credited, err := ledger[to].CheckedAdd(amt)
	if err != nil {
		return fmt.Errorf("balance overflow")
	}
	ledger[from] = left
	ledger[to] = credited
	return nil
}

// levy is rate_bps of amt, capped at the tax cap when one is set.
func (h *Host) levy(amt amount.Uint128) amount.Uint128 {
	tax := amt.MulOrZero(amount.New(uint64(h.tax.RateBps))).DivOrZero(amount.New(ir.MaxBps))
	if !h.tax.Cap.IsZero() {
		tax = amount.Min(tax, h.tax.Cap)
	}
	return tax
}

// ComputeTax returns the levy on coin.
func (h *Host) ComputeTax(_ context.Context, coin ir.Coin) (amount.Uint128, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.levy(coin.Amount), nil
}

// Pool returns the pool's reserves, native side first.
func (h *Host) Pool(context.Context, ir.Addr) (ir.PoolResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return ir.PoolResponse{
		Assets:     h.assets(),
		TotalShare: h.totalShare,
	}, nil
}

// Pair describes the pool.
func (h *Host) Pair(_ context.Context, pool ir.Addr) (ir.PairInfo, error) {
	return ir.PairInfo{
		AssetInfos:     [2]ir.AssetInfo{ir.NativeInfo(h.denom), ir.TokenInfo(h.token)},
		ContractAddr:   pool,
		LiquidityToken: pool + "-lp",
	}, nil
}

// Simulation quotes the return of offering offer.
func (h *Host) Simulation(_ context.Context, _ ir.Addr, offer ir.Asset) (ir.SimulationResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	offerReserve, askReserve := h.reserves.Native, h.reserves.Reward
	if !offer.Info.IsNative() {
		offerReserve, askReserve = askReserve, offerReserve
	}
	return ir.SimulationResponse{
		ReturnAmount:     swapOut(offer.Amount, offerReserve, askReserve),
		SpreadAmount:     amount.Zero(),
		CommissionAmount: amount.Zero(),
	}, nil
}

// ReverseSimulation quotes the offer needed to receive ask.
func (h *Host) ReverseSimulation(_ context.Context, _ ir.Addr, ask ir.Asset) (ir.ReverseSimulationResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	askReserve, offerReserve := h.reserves.Native, h.reserves.Reward
	if !ask.Info.IsNative() {
		askReserve, offerReserve = offerReserve, askReserve
	}
	left, err := askReserve.CheckedSub(ask.Amount)
	if err != nil || left.IsZero() {
		return ir.ReverseSimulationResponse{}, fmt.Errorf("ask %s exceeds the pool reserve %s", ask.Amount, askReserve)
	}
	return ir.ReverseSimulationResponse{
		OfferAmount:      offerReserve.MulOrZero(ask.Amount).DivOrZero(left),
		SpreadAmount:     amount.Zero(),
		CommissionAmount: amount.Zero(),
	}, nil
}

// CumulativePrices returns the reserves. The simulated pool keeps no price
// accumulators.
func (h *Host) CumulativePrices(context.Context, ir.Addr) (ir.CumulativePricesResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return ir.CumulativePricesResponse{
		Assets:               h.assets(),
		TotalShare:           h.totalShare,
		Price0CumulativeLast: amount.Zero(),
		Price1CumulativeLast: amount.Zero(),
	}, nil
}

func (h *Host) assets() [2]ir.Asset {
	return [2]ir.Asset{
		{Info: ir.NativeInfo(h.denom), Amount: h.reserves.Native},
		{Info: ir.TokenInfo(h.token), Amount: h.reserves.Reward},
	}
}

// Accounts lists every address holding tokens, native coins or shares, in
// order.
func (s *HostState) Accounts() []ir.Addr {
	seen := make(map[ir.Addr]bool)
	for _, m := range []map[ir.Addr]amount.Uint128{s.TokenBalances, s.NativeBalances, s.Shares} {
		for a := range m {
			seen[a] = true
		}
	}
	out := make([]ir.Addr, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
