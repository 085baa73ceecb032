package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/roach88/poolproxy/internal/amount"
	"github.com/roach88/poolproxy/internal/config"
	"github.com/roach88/poolproxy/internal/engine"
	"github.com/roach88/poolproxy/internal/ir"
	"github.com/roach88/poolproxy/internal/metrics"
	"github.com/roach88/poolproxy/internal/store"
	"github.com/roach88/poolproxy/internal/testutil"
)

// Harness runs steps against a real engine wired to a simulated host, with
// a deterministic clock.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	host   *Host
	clock  *testutil.DeterministicClock
	logger *slog.Logger
}

// Options configures a Harness built with New.
type Options struct {
	Contract    ir.Addr
	BlockTime   ir.Timestamp
	Instantiate ir.Config
	Host        config.Host

	// FlowTokens defaults to sequential flow-0001, flow-0002, ... tokens.
	FlowTokens engine.FlowTokenGenerator
	Metrics    *metrics.ProxyMetrics
	Logger     *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Create fresh in-memory database and simulated host
//  2. Instantiate the proxy
//  3. Execute steps, draining the engine after each request
//  4. Evaluate expectations and assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	scenario.applyDefaults()
	h, err := New(ctx, st, Options{
		Contract:    scenario.Contract,
		BlockTime:   scenario.BlockTime,
		Instantiate: scenario.Instantiate,
		Host:        scenario.Host,
	})
	if err != nil {
		return nil, err
	}

	result, err := h.Steps(ctx, scenario.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	if scenario.Expect != nil {
		for _, msg := range h.checkExpectations(ctx, scenario.Expect) {
			result.AddError(msg)
		}
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// New wires an engine over st to a host built from opts.Host. The proxy is
// instantiated with opts.Instantiate, sent by its admin, unless st already
// holds a contract.
func New(ctx context.Context, st *store.Store, opts Options) (*Harness, error) {
	if opts.Contract == "" {
		opts.Contract = DefaultContract
	}
	if opts.FlowTokens == nil {
		opts.FlowTokens = testutil.NewSequentialFlowGenerator("flow")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	}

	clock := testutil.NewDeterministicClock(opts.BlockTime)
	host := NewHost(opts.Host, opts.Instantiate, opts.Contract)
	eng := engine.New(st, opts.Contract,
		engine.WithPoolQuerier(host),
		engine.WithTaxQuerier(host),
		engine.WithDispatcher(host),
		engine.WithClock(clock),
		engine.WithFlowGenerator(opts.FlowTokens),
		engine.WithMetrics(opts.Metrics),
	)
	host.Attach(eng)

	instantiated, err := isInstantiated(ctx, st)
	if err != nil {
		return nil, err
	}
	if !instantiated {
		info := ir.MessageInfo{Sender: opts.Instantiate.Admin}
		if _, err := eng.Instantiate(ctx, eng.Env(), info, ir.InstantiateMsg{Config: opts.Instantiate}); err != nil {
			return nil, fmt.Errorf("failed to instantiate: %w", err)
		}
	} else {
		logger.Debug("store already instantiated", "contract", opts.Contract)
	}

	return &Harness{
		store:  st,
		engine: eng,
		host:   host,
		clock:  clock,
		logger: logger,
	}, nil
}

func isInstantiated(ctx context.Context, st *store.Store) (bool, error) {
	err := st.View(ctx, func(tx *store.Tx) error {
		_, err := tx.ContractVersion(ctx)
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("read contract version: %w", err)
	}
}

// Steps runs steps in order and returns the trace and the host's final
// state. Step outcomes that differ from their expectations are reported in
// the result; only harness failures are returned as errors.
func (h *Harness) Steps(ctx context.Context, steps []Step) (*Result, error) {
	result := NewResult()
	if err := h.executeSteps(ctx, steps, result); err != nil {
		return nil, err
	}
	result.Trace = h.host.Trace()
	result.State = h.host.State()
	return result, nil
}

// executeSteps runs the scenario steps in order. A step whose outcome
// differs from its expectation adds an error to result; only harness
// failures are returned.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		switch {
		case step.SetTime != nil:
			h.clock.Set(*step.SetTime)

		case step.Execute != nil:
			var msg ir.ExecuteMsg
			if _, err := decodeMsg(step.Execute.Msg, &msg); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
			seq, err := h.host.Submit(step.Execute.Sender, msg, step.Execute.Funds)
			if err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
			if err := h.drain(ctx); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
			h.checkCode(i, seq, step.Execute.ExpectError, result)

		case step.Send != nil:
			hook, err := decodeMsg(step.Send.Msg, nil)
			if err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
			seq, err := h.host.SendTokens(step.Send.Sender, step.Send.Amount, hook)
			if err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
			if err := h.drain(ctx); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
			h.checkCode(i, seq, step.Send.ExpectError, result)

		case step.Query != nil:
			if err := h.query(ctx, i, step.Query, result); err != nil {
				return err
			}
		}

		h.logger.Debug("scenario step completed", "step", i)
	}
	return nil
}

func (h *Harness) drain(ctx context.Context) error {
	n, err := h.engine.Drain(ctx)
	h.logger.Debug("engine drained", "events", n)
	return err
}

// checkCode compares the error code of the request traced at seq with the
// expected one.
func (h *Harness) checkCode(step int, seq int64, want string, result *Result) {
	ev, ok := h.host.Event(seq)
	if !ok {
		result.AddError(fmt.Sprintf("step %d: no trace event %d", step, seq))
		return
	}
	if ev.Code != want {
		result.AddError(fmt.Sprintf("step %d: %s returned code %q, want %q", step, ev.Variant, ev.Code, want))
	}
}

func (h *Harness) query(ctx context.Context, step int, q *QueryStep, result *Result) error {
	var msg ir.QueryMsg
	if _, err := decodeMsg(q.Msg, &msg); err != nil {
		return fmt.Errorf("step %d: %w", step, err)
	}

	answer, err := h.engine.Query(ctx, h.engine.Env(), msg)
	if got := string(engine.CodeOf(err)); err != nil && got != q.ExpectError {
		result.AddError(fmt.Sprintf("step %d: query failed with %q, want %q: %v", step, got, q.ExpectError, err))
		return nil
	}
	if err == nil && q.ExpectError != "" {
		result.AddError(fmt.Sprintf("step %d: query succeeded, want %q", step, q.ExpectError))
		return nil
	}
	if err != nil || q.Expect == nil {
		return nil
	}

	actual, err := decodeJSON(answer)
	if err != nil {
		return fmt.Errorf("step %d: %w", step, err)
	}
	if !matchValue(actual, q.Expect) {
		result.AddError(fmt.Sprintf("step %d: query answer %s does not match %v", step, answer, q.Expect))
	}
	return nil
}

// checkExpectations compares the final ledgers with exp.
func (h *Harness) checkExpectations(ctx context.Context, exp *Expectations) []string {
	var errs []string
	state := h.host.State()

	check := func(ledger string, want, got map[ir.Addr]amount.Uint128) {
		for _, addr := range sortedAddrs(want) {
			if !want[addr].Equal(got[addr]) {
				errs = append(errs, fmt.Sprintf("%s[%s] = %s, want %s", ledger, addr, got[addr], want[addr]))
			}
		}
	}
	check("token_balances", exp.TokenBalances, state.TokenBalances)
	check("native_balances", exp.NativeBalances, state.NativeBalances)
	check("shares", exp.Shares, state.Shares)

	if exp.Reserves != nil {
		if !exp.Reserves.Native.Equal(state.ReserveNative) || !exp.Reserves.Reward.Equal(state.ReserveReward) {
			errs = append(errs, fmt.Sprintf("reserves = %s/%s, want %s/%s",
				state.ReserveNative, state.ReserveReward, exp.Reserves.Native, exp.Reserves.Reward))
		}
	}

	err := h.store.View(ctx, func(tx *store.Tx) error {
		for _, user := range sortedAddrs(exp.Bonds) {
			bonds, err := tx.Bonds(ctx, user)
			if err != nil {
				return err
			}
			got := make([]string, len(bonds))
			for i, b := range bonds {
				got[i] = b.Amount.String()
			}
			want := make([]string, len(exp.Bonds[user]))
			for i, a := range exp.Bonds[user] {
				want[i] = a.String()
			}
			if fmt.Sprint(got) != fmt.Sprint(want) {
				errs = append(errs, fmt.Sprintf("bonds[%s] = %v, want %v", user, got, want))
			}
		}

		flows := make([]string, 0, len(exp.Chains))
		for flow := range exp.Chains {
			flows = append(flows, flow)
		}
		sort.Strings(flows)
		for _, flow := range flows {
			c, found, err := tx.Chain(ctx, flow)
			if err != nil {
				return err
			}
			switch {
			case !found:
				errs = append(errs, fmt.Sprintf("chain %s not found", flow))
			case c.State != exp.Chains[flow]:
				errs = append(errs, fmt.Sprintf("chain %s is %s, want %s", flow, c.State, exp.Chains[flow]))
			}
		}

		if exp.Pending != nil {
			pending, err := tx.PendingContinuations(ctx)
			if err != nil {
				return err
			}
			if len(pending) != *exp.Pending {
				errs = append(errs, fmt.Sprintf("%d pending continuations, want %d", len(pending), *exp.Pending))
			}
		}
		return nil
	})
	if err != nil {
		errs = append(errs, fmt.Sprintf("read store: %v", err))
	}
	return errs
}

func sortedAddrs[V any](m map[ir.Addr]V) []ir.Addr {
	out := make([]ir.Addr, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode answer: %w", err)
	}
	return v, nil
}
