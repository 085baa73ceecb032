package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/poolproxy/internal/amount"
	"github.com/roach88/poolproxy/internal/ir"
	"github.com/roach88/poolproxy/internal/metrics"
	"github.com/roach88/poolproxy/internal/store"
)

// PoolQuerier answers read-only queries against the pool contract.
type PoolQuerier interface {
	Pool(ctx context.Context, pool ir.Addr) (ir.PoolResponse, error)
	Pair(ctx context.Context, pool ir.Addr) (ir.PairInfo, error)
	Simulation(ctx context.Context, pool ir.Addr, offer ir.Asset) (ir.SimulationResponse, error)
	ReverseSimulation(ctx context.Context, pool ir.Addr, ask ir.Asset) (ir.ReverseSimulationResponse, error)
	CumulativePrices(ctx context.Context, pool ir.Addr) (ir.CumulativePricesResponse, error)
}

// TaxQuerier returns the transfer levy the host charges on a native coin.
type TaxQuerier interface {
	ComputeTax(ctx context.Context, coin ir.Coin) (amount.Uint128, error)
}

// NoTax is a TaxQuerier that never charges a levy.
type NoTax struct{}

// ComputeTax returns zero.
func (NoTax) ComputeTax(context.Context, ir.Coin) (amount.Uint128, error) {
	return amount.Zero(), nil
}

// Dispatcher delivers outbound calls to their contracts. Outcomes come back
// later as reply events on the engine's queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, flowToken string, msg ir.SubMsg) error
}

// Engine is the continuation orchestrator.
//
// Each entry point (Instantiate, Execute, Reply, Query) runs in one store
// transaction: an invocation commits every ledger change it made or none.
// Between invocations the engine holds no chain state; everything needed to
// resume a chain is in the continuation stored under its correlation id.
//
// Thread-safety model:
//   - Enqueue(): safe from any goroutine
//   - Run() / Drain(): must be called from exactly one goroutine
//   - Execute() / Reply(): serialized by the store's single connection
type Engine struct {
	store      *store.Store
	self       ir.Addr
	pool       PoolQuerier
	tax        TaxQuerier
	dispatcher Dispatcher
	ids        IDAllocator
	flowGen    FlowTokenGenerator
	clock      Clock
	metrics    *metrics.ProxyMetrics
	queue      *eventQueue
}

// EngineOption allows configuration of engine collaborators.
type EngineOption func(*Engine)

// WithPoolQuerier sets the pool query client.
func WithPoolQuerier(p PoolQuerier) EngineOption {
	return func(e *Engine) { e.pool = p }
}

// WithTaxQuerier sets the levy oracle. Default: NoTax.
func WithTaxQuerier(t TaxQuerier) EngineOption {
	return func(e *Engine) { e.tax = t }
}

// WithDispatcher sets the delivery target for outbound calls produced by
// the event loop.
func WithDispatcher(d Dispatcher) EngineOption {
	return func(e *Engine) { e.dispatcher = d }
}

// WithIDAllocator replaces the persisted correlation counter.
func WithIDAllocator(a IDAllocator) EngineOption {
	return func(e *Engine) { e.ids = a }
}

// WithFlowGenerator sets the flow token generator. Default: UUIDv7Generator.
func WithFlowGenerator(g FlowTokenGenerator) EngineOption {
	return func(e *Engine) { e.flowGen = g }
}

// WithClock sets the block clock used by the event loop. Default: SystemClock.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.ProxyMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine over s acting as the contract at address self.
func New(s *store.Store, self ir.Addr, opts ...EngineOption) *Engine {
	e := &Engine{
		store:   s,
		self:    self,
		tax:     NoTax{},
		ids:     StoreAllocator{},
		flowGen: UUIDv7Generator{},
		clock:   SystemClock{},
		queue:   newEventQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Self returns the contract address of the engine.
func (e *Engine) Self() ir.Addr {
	return e.self
}

// Env returns the environment of an invocation run now.
func (e *Engine) Env() ir.Env {
	return ir.Env{BlockTime: e.clock.Now(), ContractAddress: e.self}
}

// Store returns the engine's store for read-only inspection.
func (e *Engine) Store() *store.Store {
	return e.store
}

// invocation carries the state of one entry point call.
type invocation struct {
	ctx   context.Context
	tx    *store.Tx
	env   ir.Env
	cfg   ir.Config
	flow  string
	chain *store.Chain
	resp  ir.Response

	// failure is returned after commit. Set by failed replies, whose
	// ledger changes must persist.
	failure error

	calls []string
	bonds []bool
}

// Instantiate validates and stores the initial configuration. The admin
// defaults to the sender.
func (e *Engine) Instantiate(ctx context.Context, env ir.Env, info ir.MessageInfo, msg ir.InstantiateMsg) (ir.Response, error) {
	cfg := msg.Config
	if cfg.Admin == "" {
		cfg.Admin = info.Sender
	}
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return ir.Response{}, e.fail(newError(ErrCodeInvalidConfig, "%v", err))
	}

	err := e.store.Update(ctx, func(tx *store.Tx) error {
		if _, err := tx.ContractVersion(ctx); err == nil {
			return newError(ErrCodeInvalidConfig, "contract is already instantiated")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := tx.SaveContractVersion(ctx, ir.CurrentVersion()); err != nil {
			return err
		}
		return tx.SaveConfig(ctx, cfg)
	})
	if err != nil {
		return ir.Response{}, e.fail(err)
	}

	slog.Info("contract instantiated",
		"contract", e.self,
		"admin", cfg.Admin,
		"pool", cfg.PoolPairAddress,
	)

	var resp ir.Response
	resp.AddAttribute("action", "instantiate").
		AddAttribute("contract", ir.ContractName).
		AddAttribute("version", ir.ContractVersionString)
	return resp, nil
}

// Execute handles one inbound request.
func (e *Engine) Execute(ctx context.Context, env ir.Env, info ir.MessageInfo, msg ir.ExecuteMsg) (ir.Response, error) {
	resp, _, err := e.execute(ctx, env, info, msg)
	return resp, err
}

func (e *Engine) execute(ctx context.Context, env ir.Env, info ir.MessageInfo, msg ir.ExecuteMsg) (ir.Response, string, error) {
	variant, err := msg.Variant()
	if err != nil {
		return ir.Response{}, "", e.fail(newError(ErrCodeUnsupported, "%v", err))
	}
	info.Sender = ir.NormalizeAddr(string(info.Sender))

	// Admin operations do not start a chain.
	flow := ""
	if variant != "configure" && variant != "set_swap_opening_date" {
		flow = e.flowGen.Generate()
	}

	inv, err := e.invoke(ctx, env, flow, func(inv *invocation) error {
		if flow != "" {
			if err := inv.startChain(variant, info.Sender); err != nil {
				return err
			}
		}
		switch {
		case msg.Configure != nil:
			return e.configure(inv, info, msg.Configure)
		case msg.SetSwapOpeningDate != nil:
			return e.setSwapOpeningDate(inv, info, msg.SetSwapOpeningDate)
		case msg.Receive != nil:
			return e.receive(inv, info, msg.Receive)
		case msg.ProvideLiquidity != nil:
			receiver := inv.cfg.DefaultShareReceiver
			if info.Sender == inv.cfg.AuthorizedLiquidityProvider {
				receiver = inv.cfg.AuthorizedLiquidityProvider
			}
			return e.provideLiquidity(inv, info, msg.ProvideLiquidity, receiver, ir.NextIncreaseAllowance)
		case msg.ProvidePairForReward != nil:
			return e.provideLiquidity(inv, info, msg.ProvidePairForReward, inv.cfg.DefaultShareReceiver, ir.NextTransferCustomAssetsFromFundsOwner)
		case msg.ProvideNativeForReward != nil:
			return e.provideNativeForReward(inv, info, msg.ProvideNativeForReward)
		case msg.Swap != nil:
			return e.swap(inv, info, msg.Swap)
		}
		return newError(ErrCodeUnsupported, "execute variant %s", variant)
	})
	if err != nil {
		slog.Warn("execute rejected",
			"variant", variant,
			"sender", info.Sender,
			"flow_token", flow,
			"error", err,
		)
		return ir.Response{}, flow, err
	}

	slog.Info("execute accepted",
		"variant", variant,
		"sender", info.Sender,
		"flow_token", flow,
		"messages", len(inv.resp.Messages),
	)
	return inv.resp, flow, nil
}

// Reply handles the outcome of an outbound call.
func (e *Engine) Reply(ctx context.Context, env ir.Env, reply ir.Reply) (ir.Response, error) {
	resp, _, err := e.reply(ctx, env, reply)
	return resp, err
}

func (e *Engine) reply(ctx context.Context, env ir.Env, reply ir.Reply) (ir.Response, string, error) {
	inv, err := e.invoke(ctx, env, "", func(inv *invocation) error {
		return e.dispatchReply(inv, reply)
	})
	outcome := store.OutcomeOK
	if !reply.Result.IsOk() {
		outcome = store.OutcomeError
	}
	e.metrics.ObserveReply(outcome)

	flow := ""
	if inv != nil {
		flow = inv.flow
	}
	if err != nil {
		slog.Warn("reply failed",
			"id", reply.ID,
			"flow_token", flow,
			"outcome", outcome,
			"error", err,
		)
		return ir.Response{}, flow, err
	}

	slog.Info("reply processed",
		"id", reply.ID,
		"flow_token", flow,
		"outcome", outcome,
		"messages", len(inv.resp.Messages),
	)
	return inv.resp, flow, nil
}

// invoke runs fn in one store transaction with the configuration loaded.
// Metrics are recorded only after commit.
func (e *Engine) invoke(ctx context.Context, env ir.Env, flow string, fn func(*invocation) error) (*invocation, error) {
	var inv *invocation
	err := e.store.Update(ctx, func(tx *store.Tx) error {
		cfg, err := tx.LoadConfig(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return newError(ErrCodeNotFound, "contract is not instantiated")
		}
		if err != nil {
			return err
		}
		inv = &invocation{ctx: ctx, tx: tx, env: env, cfg: cfg, flow: flow}
		return fn(inv)
	})
	if err != nil {
		return inv, e.fail(err)
	}

	for _, call := range inv.calls {
		e.metrics.ObserveDispatch(call)
	}
	for _, paired := range inv.bonds {
		e.metrics.ObserveBond(paired)
	}
	e.refreshPending(ctx)

	if inv.failure != nil {
		return inv, e.fail(inv.failure)
	}
	return inv, nil
}

func (e *Engine) fail(err error) error {
	e.metrics.ObserveFailure(string(CodeOf(err)))
	return err
}

func (e *Engine) refreshPending(ctx context.Context) {
	if e.metrics == nil {
		return
	}
	err := e.store.View(ctx, func(tx *store.Tx) error {
		pending, err := tx.PendingContinuations(ctx)
		if err != nil {
			return err
		}
		e.metrics.SetPending(len(pending))
		return nil
	})
	if err != nil {
		slog.Debug("pending gauge refresh failed", "error", err)
	}
}

// outbound describes one call to return for dispatch.
type outbound struct {
	call     string
	contract ir.Addr
	msg      any
	funds    []ir.Coin

	// cont is stored under the call's id before the call is returned.
	// Nil for calls whose reply needs no follow-up.
	cont *ir.Continuation

	// compensating calls leave the chain state alone.
	compensating bool
}

// dispatch allocates a correlation id, persists the continuation, logs the
// call and appends it to the response.
func (e *Engine) dispatch(inv *invocation, out outbound) (uint64, error) {
	id, err := e.ids.Allocate(inv.ctx, inv.tx)
	if err != nil {
		return 0, fmt.Errorf("allocate correlation id: %w", err)
	}
	seq, err := inv.tx.NextSeq(inv.ctx)
	if err != nil {
		return 0, err
	}
	msg, err := json.Marshal(out.msg)
	if err != nil {
		return 0, fmt.Errorf("marshal %s: %w", out.call, err)
	}

	if out.cont != nil {
		c := *out.cont
		c.ID = id
		c.FlowToken = inv.flow
		if err := inv.tx.SaveContinuation(inv.ctx, c, seq); err != nil {
			return 0, err
		}
	}
	err = inv.tx.RecordDispatch(inv.ctx, store.Dispatch{
		ID:        id,
		FlowToken: inv.flow,
		Seq:       seq,
		Call:      out.call,
		Contract:  out.contract,
		Msg:       msg,
		Funds:     out.funds,
		ReplyOn:   ir.ReplyAlways,
	})
	if err != nil {
		return 0, err
	}

	if !out.compensating {
		next := StateAwaitingResult
		if out.cont != nil {
			if next, err = StateFor(out.cont.NextAction); err != nil {
				return 0, NewInvariantError(inv.flow, id, "%v", err)
			}
		}
		if err := inv.advance(next, id, ""); err != nil {
			return 0, err
		}
	}

	inv.resp.Messages = append(inv.resp.Messages, ir.SubMsg{
		ID:       id,
		Contract: out.contract,
		Msg:      msg,
		Funds:    out.funds,
		ReplyOn:  ir.ReplyAlways,
	})
	inv.calls = append(inv.calls, out.call)

	slog.Debug("call dispatched",
		"id", id,
		"call", out.call,
		"contract", out.contract,
		"flow_token", inv.flow,
		"continuation", out.cont != nil,
	)
	return id, nil
}

// startChain records a new chain for the invocation's flow token.
func (inv *invocation) startChain(origin string, user ir.Addr) error {
	seq, err := inv.tx.NextSeq(inv.ctx)
	if err != nil {
		return err
	}
	inv.chain = &store.Chain{
		FlowToken:  inv.flow,
		Origin:     origin,
		User:       user,
		State:      string(StateNew),
		CreatedSeq: seq,
		UpdatedSeq: seq,
	}
	return inv.tx.SaveChain(inv.ctx, *inv.chain)
}

// loadChain reads the chain of the invocation's flow token, if any.
func (inv *invocation) loadChain() error {
	if inv.flow == "" {
		return nil
	}
	c, found, err := inv.tx.Chain(inv.ctx, inv.flow)
	if err != nil {
		return err
	}
	if found {
		inv.chain = &c
	}
	return nil
}

// advance moves the chain to a new state.
func (inv *invocation) advance(to State, lastID uint64, errText string) error {
	if inv.chain == nil {
		return nil
	}
	from := State(inv.chain.State)
	if err := Transition(from, to); err != nil {
		return NewInvariantError(inv.flow, lastID, "%v", err)
	}
	seq, err := inv.tx.NextSeq(inv.ctx)
	if err != nil {
		return err
	}
	inv.chain.State = string(to)
	inv.chain.LastID = lastID
	inv.chain.Error = errText
	inv.chain.UpdatedSeq = seq
	return inv.tx.SaveChain(inv.ctx, *inv.chain)
}
