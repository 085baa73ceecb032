package engine

import (
	"log/slog"

	"github.com/roach88/poolproxy/internal/ir"
)

// dispatchReply resumes the chain waiting on a reply.
//
// The continuation under the reply's id is consumed whatever the outcome.
// A reply with no continuation is passed through: the inner call's
// attributes and data become the response.
func (e *Engine) dispatchReply(inv *invocation, r ir.Reply) error {
	c, found, err := inv.tx.TakeContinuation(inv.ctx, r.ID)
	if err != nil {
		return err
	}
	if found {
		inv.flow = c.FlowToken
	} else {
		d, logged, err := inv.tx.Dispatch(inv.ctx, r.ID)
		if err != nil {
			return err
		}
		if logged {
			inv.flow = d.FlowToken
		}
	}
	if err := inv.loadChain(); err != nil {
		return err
	}

	seq, err := inv.tx.NextSeq(inv.ctx)
	if err != nil {
		return err
	}
	outcome, errText := dispatchOutcome(r)
	if err := inv.tx.RecordOutcome(inv.ctx, r.ID, outcome, errText, seq); err != nil {
		return err
	}

	if !r.Result.IsOk() {
		return e.replyFailed(inv, r, c, found)
	}

	if !found || c.NextAction == ir.NextFinalize {
		if found && !validStep(c.Kind, c.NextAction) {
			return NewInvariantError(c.FlowToken, r.ID, "continuation kind %s cannot resume with %s", c.Kind, c.NextAction)
		}
		passThrough(inv, r.Result.Ok)
		if inv.chain != nil && State(inv.chain.State) == StateAwaitingResult && inv.chain.LastID == r.ID {
			return inv.advance(StateDone, r.ID, "")
		}
		return nil
	}

	if !validStep(c.Kind, c.NextAction) {
		return NewInvariantError(c.FlowToken, r.ID, "continuation kind %s cannot resume with %s", c.Kind, c.NextAction)
	}
	s, err := stepFrom(c)
	if err != nil {
		return err
	}

	slog.Debug("resuming chain",
		"id", r.ID,
		"flow_token", c.FlowToken,
		"kind", c.Kind,
		"next", c.NextAction,
	)

	switch c.NextAction {
	case ir.NextTransferCustomAssetsFromFundsOwner:
		return e.treasuryStep(inv, s)
	case ir.NextIncreaseAllowance:
		return e.allowanceStep(inv, s)
	case ir.NextProvideLiquidity:
		return e.depositStep(inv, s)
	}
	return NewInvariantError(c.FlowToken, r.ID, "no step for next action %s", c.NextAction)
}

// replyFailed marks the chain failed. With compensation enabled and a
// continuation consumed, the response carries the compensating calls.
// Otherwise the failure is returned once the ledger changes are committed.
func (e *Engine) replyFailed(inv *invocation, r ir.Reply, c ir.Continuation, found bool) error {
	if inv.chain != nil && !State(inv.chain.State).Terminal() {
		if err := inv.advance(StateFailed, r.ID, r.Result.Err); err != nil {
			return err
		}
	}

	if found && inv.cfg.CompensateOnFailure {
		slog.Warn("compensating failed chain",
			"id", r.ID,
			"flow_token", inv.flow,
			"kind", c.Kind,
			"holdings", len(c.Holdings),
			"error", r.Result.Err,
		)
		return e.compensate(inv, c)
	}

	inv.failure = NewReplyError(inv.flow, r.ID, r.Result.Err)
	return nil
}
