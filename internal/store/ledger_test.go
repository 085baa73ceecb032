package store

import (
	"context"
	"errors"
	"testing"

	"github.com/roach88/poolproxy/internal/amount"
	"github.com/roach88/poolproxy/internal/ir"
)

func TestUpdate_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx *Tx) error {
		if _, err := tx.NextCorrelationID(ctx); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want %v", err, boom)
	}

	update(t, s, func(ctx context.Context, tx *Tx) error {
		id, err := tx.NextCorrelationID(ctx)
		if err != nil {
			return err
		}
		if id != 1 {
			t.Errorf("first committed id = %d, want 1", id)
		}
		return nil
	})
}

func TestCounters_StartAtOneAndIncrease(t *testing.T) {
	s := createTestStore(t)

	update(t, s, func(ctx context.Context, tx *Tx) error {
		last, err := tx.Counter(ctx, CounterCorrelationID)
		if err != nil {
			return err
		}
		if last != 0 {
			t.Errorf("unused counter = %d, want 0", last)
		}
		for want := uint64(1); want <= 3; want++ {
			got, err := tx.NextCorrelationID(ctx)
			if err != nil {
				return err
			}
			if got != want {
				t.Errorf("NextCorrelationID() = %d, want %d", got, want)
			}
		}
		seq, err := tx.NextSeq(ctx)
		if err != nil {
			return err
		}
		if seq != 1 {
			t.Errorf("NextSeq() = %d, want 1 (counters are independent)", seq)
		}
		return nil
	})

	// Counters survive across transactions.
	update(t, s, func(ctx context.Context, tx *Tx) error {
		got, err := tx.NextCorrelationID(ctx)
		if err != nil {
			return err
		}
		if got != 4 {
			t.Errorf("NextCorrelationID() after commit = %d, want 4", got)
		}
		return nil
	})
}

func TestConfig_NotFoundBeforeSave(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.View(ctx, func(tx *Tx) error {
		_, err := tx.LoadConfig(ctx)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadConfig() error = %v, want ErrNotFound", err)
	}
}

func TestConfig_SaveOverwrites(t *testing.T) {
	s := createTestStore(t)
	cfg := ir.Config{Admin: "admin", NativeDenom: "uusd", PoolPairAddress: "pool-a"}

	update(t, s, func(ctx context.Context, tx *Tx) error {
		if err := tx.SaveContractVersion(ctx, ir.CurrentVersion()); err != nil {
			return err
		}
		if err := tx.SaveConfig(ctx, cfg); err != nil {
			return err
		}
		cfg.PoolPairAddress = "pool-b"
		return tx.SaveConfig(ctx, cfg)
	})

	update(t, s, func(ctx context.Context, tx *Tx) error {
		got, err := tx.LoadConfig(ctx)
		if err != nil {
			return err
		}
		if got != cfg {
			t.Errorf("LoadConfig() = %+v, want %+v", got, cfg)
		}
		v, err := tx.ContractVersion(ctx)
		if err != nil {
			return err
		}
		if v != ir.CurrentVersion() {
			t.Errorf("ContractVersion() = %+v, want %+v", v, ir.CurrentVersion())
		}
		return nil
	})
}

func TestContinuation_TakeOnce(t *testing.T) {
	s := createTestStore(t)
	c := createTestContinuation(7, "flow-a", ir.NextIncreaseAllowance)
	c.Holdings = []ir.Holding{{Owner: "alice", Amount: amount.New(5)}}

	update(t, s, func(ctx context.Context, tx *Tx) error {
		return tx.SaveContinuation(ctx, c, 1)
	})

	update(t, s, func(ctx context.Context, tx *Tx) error {
		got, found, err := tx.TakeContinuation(ctx, 7)
		if err != nil {
			return err
		}
		if !found {
			t.Fatal("TakeContinuation() found = false on first take")
		}
		if got.NextAction != ir.NextIncreaseAllowance || got.User != "alice" {
			t.Errorf("TakeContinuation() = %+v", got)
		}
		if len(got.Holdings) != 1 || !got.Holdings[0].Amount.Equal(amount.New(5)) {
			t.Errorf("holdings not preserved: %+v", got.Holdings)
		}
		if string(got.Payload) != string(c.Payload) {
			t.Errorf("payload = %s, want %s", got.Payload, c.Payload)
		}

		_, found, err = tx.TakeContinuation(ctx, 7)
		if err != nil {
			return err
		}
		if found {
			t.Error("TakeContinuation() found = true on second take")
		}
		return nil
	})
}

func TestContinuation_DuplicateRejected(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := createTestContinuation(1, "flow-a", ir.NextIncreaseAllowance)

	update(t, s, func(ctx context.Context, tx *Tx) error {
		return tx.SaveContinuation(ctx, c, 1)
	})

	err := s.Update(ctx, func(tx *Tx) error {
		return tx.SaveContinuation(ctx, c, 2)
	})
	if !errors.Is(err, ErrDuplicateContinuation) {
		t.Errorf("second SaveContinuation() error = %v, want ErrDuplicateContinuation", err)
	}
}

func TestContinuation_PendingOrderedByID(t *testing.T) {
	s := createTestStore(t)

	update(t, s, func(ctx context.Context, tx *Tx) error {
		for _, c := range []ir.Continuation{
			createTestContinuation(3, "flow-b", ir.NextProvideLiquidity),
			createTestContinuation(1, "flow-a", ir.NextIncreaseAllowance),
			createTestContinuation(2, "flow-a", ir.NextProvideLiquidity),
		} {
			if err := tx.SaveContinuation(ctx, c, int64(c.ID)); err != nil {
				return err
			}
		}
		return nil
	})

	update(t, s, func(ctx context.Context, tx *Tx) error {
		all, err := tx.PendingContinuations(ctx)
		if err != nil {
			return err
		}
		if len(all) != 3 || all[0].ID != 1 || all[2].ID != 3 {
			t.Errorf("PendingContinuations() ids out of order: %+v", all)
		}
		flow, err := tx.FlowContinuations(ctx, "flow-a")
		if err != nil {
			return err
		}
		if len(flow) != 2 {
			t.Errorf("FlowContinuations(flow-a) len = %d, want 2", len(flow))
		}
		none, err := tx.FlowContinuations(ctx, "missing")
		if err != nil {
			return err
		}
		if none == nil || len(none) != 0 {
			t.Errorf("FlowContinuations(missing) = %#v, want empty non-nil slice", none)
		}
		return nil
	})
}

func TestBonds_AppendOrder(t *testing.T) {
	s := createTestStore(t)

	update(t, s, func(ctx context.Context, tx *Tx) error {
		for i, amt := range []uint64{421, 10, 99} {
			bond := ir.RewardBond{
				Depositor:             "alice",
				Amount:                amount.New(amt),
				BondingPeriodSec:      60,
				BondingStartTimestamp: ir.Timestamp(1000 + i),
			}
			if err := tx.AppendBond(ctx, bond, "flow"); err != nil {
				return err
			}
		}
		return tx.AppendBond(ctx, ir.RewardBond{Depositor: "bob", Amount: amount.New(1)}, "flow")
	})

	update(t, s, func(ctx context.Context, tx *Tx) error {
		bonds, err := tx.Bonds(ctx, "alice")
		if err != nil {
			return err
		}
		if len(bonds) != 3 {
			t.Fatalf("Bonds(alice) len = %d, want 3", len(bonds))
		}
		for i, want := range []uint64{421, 10, 99} {
			if !bonds[i].Amount.Equal(amount.New(want)) {
				t.Errorf("bond[%d].Amount = %s, want %d", i, bonds[i].Amount, want)
			}
		}
		if bonds[0].BondingStartTimestamp != 1000 || bonds[0].BondingPeriodSec != 60 {
			t.Errorf("bond[0] = %+v", bonds[0])
		}

		empty, err := tx.Bonds(ctx, "carol")
		if err != nil {
			return err
		}
		if empty == nil || len(empty) != 0 {
			t.Errorf("Bonds(carol) = %#v, want empty non-nil slice", empty)
		}
		return nil
	})
}

func TestBonds_RevokeByFlow(t *testing.T) {
	s := createTestStore(t)

	update(t, s, func(ctx context.Context, tx *Tx) error {
		for i, flow := range []string{"flow-a", "flow-b", "flow-a"} {
			bond := ir.RewardBond{Depositor: "alice", Amount: amount.New(uint64(10 + i))}
			if err := tx.AppendBond(ctx, bond, flow); err != nil {
				return err
			}
		}
		return nil
	})

	update(t, s, func(ctx context.Context, tx *Tx) error {
		n, err := tx.RevokeBonds(ctx, "flow-a")
		if err != nil {
			return err
		}
		if n != 2 {
			t.Errorf("RevokeBonds(flow-a) = %d, want 2", n)
		}
		n, err = tx.RevokeBonds(ctx, "flow-missing")
		if err != nil {
			return err
		}
		if n != 0 {
			t.Errorf("RevokeBonds(flow-missing) = %d, want 0", n)
		}

		bonds, err := tx.Bonds(ctx, "alice")
		if err != nil {
			return err
		}
		if len(bonds) != 1 || !bonds[0].Amount.Equal(amount.New(11)) {
			t.Errorf("Bonds(alice) = %+v, want only the flow-b bond", bonds)
		}
		return nil
	})
}

func TestChains_Upsert(t *testing.T) {
	s := createTestStore(t)

	update(t, s, func(ctx context.Context, tx *Tx) error {
		return tx.SaveChain(ctx, Chain{
			FlowToken: "flow", Origin: "provide_liquidity", User: "alice",
			State: "dispatched", LastID: 1, CreatedSeq: 1, UpdatedSeq: 1,
		})
	})
	update(t, s, func(ctx context.Context, tx *Tx) error {
		return tx.SaveChain(ctx, Chain{
			FlowToken: "flow", Origin: "ignored", User: "ignored",
			State: "failed", LastID: 2, Error: "no funds", CreatedSeq: 9, UpdatedSeq: 4,
		})
	})

	update(t, s, func(ctx context.Context, tx *Tx) error {
		c, found, err := tx.Chain(ctx, "flow")
		if err != nil {
			return err
		}
		if !found {
			t.Fatal("Chain() found = false")
		}
		if c.Origin != "provide_liquidity" || c.User != "alice" || c.CreatedSeq != 1 {
			t.Errorf("fixed fields overwritten: %+v", c)
		}
		if c.State != "failed" || c.LastID != 2 || c.Error != "no funds" || c.UpdatedSeq != 4 {
			t.Errorf("mutable fields not updated: %+v", c)
		}

		_, found, err = tx.Chain(ctx, "missing")
		if err != nil {
			return err
		}
		if found {
			t.Error("Chain(missing) found = true")
		}

		all, err := tx.Chains(ctx)
		if err != nil {
			return err
		}
		if len(all) != 1 {
			t.Errorf("Chains() len = %d, want 1", len(all))
		}
		return nil
	})
}

func TestDispatches_OutcomeRecordedOnce(t *testing.T) {
	s := createTestStore(t)

	update(t, s, func(ctx context.Context, tx *Tx) error {
		d := Dispatch{
			ID: 1, FlowToken: "flow", Seq: 1, Call: "transfer_from",
			Contract: "token", Msg: []byte(`{"transfer_from":{}}`), ReplyOn: ir.ReplyAlways,
		}
		if err := tx.RecordDispatch(ctx, d); err != nil {
			return err
		}
		// Re-recording is ignored.
		d.Call = "other"
		if err := tx.RecordDispatch(ctx, d); err != nil {
			return err
		}
		if err := tx.RecordOutcome(ctx, 1, OutcomeError, "insufficient allowance", 2); err != nil {
			return err
		}
		if err := tx.RecordOutcome(ctx, 1, OutcomeOK, "", 3); err != nil {
			return err
		}
		return tx.RecordOutcome(ctx, 99, OutcomeOK, "", 4)
	})

	update(t, s, func(ctx context.Context, tx *Tx) error {
		d, found, err := tx.Dispatch(ctx, 1)
		if err != nil {
			return err
		}
		if !found {
			t.Fatal("Dispatch(1) found = false")
		}
		if d.Call != "transfer_from" {
			t.Errorf("Call = %q, want transfer_from", d.Call)
		}
		if d.Outcome != OutcomeError || d.Error != "insufficient allowance" || d.ReplySeq != 2 {
			t.Errorf("outcome = %q/%q/%d, want first outcome kept", d.Outcome, d.Error, d.ReplySeq)
		}
		if d.Funds != nil {
			t.Errorf("Funds = %v, want nil", d.Funds)
		}

		list, err := tx.FlowDispatches(ctx, "flow")
		if err != nil {
			return err
		}
		if len(list) != 1 {
			t.Errorf("FlowDispatches() len = %d, want 1", len(list))
		}
		return nil
	})
}
