package engine

import (
	"fmt"

	"github.com/roach88/poolproxy/internal/ir"
)

// State is the position of a request chain.
//
// A chain with a pending continuation is named after the step that runs
// when that continuation's reply succeeds. A chain whose last call needs
// no follow-up waits in AwaitingResult until the reply arrives.
type State string

const (
	StateNew                      State = "new"
	StateAwaitingTreasuryTransfer State = "awaiting_treasury_transfer"
	StateAwaitingAllowance        State = "awaiting_allowance"
	StateAwaitingPoolDeposit      State = "awaiting_pool_deposit"
	StateAwaitingResult           State = "awaiting_result"
	StateDone                     State = "done"
	StateFailed                   State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// transitions lists the legal successor states.
var transitions = map[State][]State{
	StateNew:                      {StateAwaitingTreasuryTransfer, StateAwaitingAllowance, StateAwaitingResult},
	StateAwaitingTreasuryTransfer: {StateAwaitingAllowance},
	StateAwaitingAllowance:        {StateAwaitingPoolDeposit},
	StateAwaitingPoolDeposit:      {StateAwaitingResult},
	StateAwaitingResult:           {StateDone},
}

// Transition validates a state change. Every non-terminal state may move to
// Failed.
func Transition(from, to State) error {
	if from.Terminal() {
		return fmt.Errorf("chain in terminal state %s cannot move to %s", from, to)
	}
	if to == StateFailed {
		return nil
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("illegal chain transition %s -> %s", from, to)
}

// StateFor returns the state of a chain waiting on a continuation.
func StateFor(next ir.NextAction) (State, error) {
	switch next {
	case ir.NextTransferCustomAssetsFromFundsOwner:
		return StateAwaitingTreasuryTransfer, nil
	case ir.NextIncreaseAllowance:
		return StateAwaitingAllowance, nil
	case ir.NextProvideLiquidity:
		return StateAwaitingPoolDeposit, nil
	case ir.NextFinalize:
		return StateAwaitingResult, nil
	default:
		return "", fmt.Errorf("unknown next action %q", next)
	}
}

// validStep reports whether a continuation's (kind, next action) pair is a
// step the reply dispatcher knows how to resume.
func validStep(kind ir.OperationKind, next ir.NextAction) bool {
	switch kind {
	case ir.KindTransferFrom:
		return next == ir.NextIncreaseAllowance || next == ir.NextTransferCustomAssetsFromFundsOwner
	case ir.KindIncreaseAllowance:
		return next == ir.NextProvideLiquidity
	case ir.KindProvideLiquidity:
		return next == ir.NextFinalize
	default:
		return false
	}
}
