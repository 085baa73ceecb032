package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/poolproxy/internal/ir"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateNew, StateAwaitingTreasuryTransfer, true},
		{StateNew, StateAwaitingAllowance, true},
		{StateNew, StateAwaitingResult, true},
		{StateNew, StateAwaitingPoolDeposit, false},
		{StateAwaitingTreasuryTransfer, StateAwaitingAllowance, true},
		{StateAwaitingTreasuryTransfer, StateAwaitingPoolDeposit, false},
		{StateAwaitingAllowance, StateAwaitingPoolDeposit, true},
		{StateAwaitingAllowance, StateAwaitingTreasuryTransfer, false},
		{StateAwaitingPoolDeposit, StateAwaitingResult, true},
		{StateAwaitingResult, StateDone, true},
		{StateAwaitingAllowance, StateDone, false},
		{StateAwaitingAllowance, StateFailed, true},
		{StateNew, StateFailed, true},
		{StateDone, StateFailed, false},
		{StateFailed, StateFailed, false},
	}
	for _, tt := range tests {
		err := Transition(tt.from, tt.to)
		if tt.ok {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
		} else {
			assert.Error(t, err, "%s -> %s", tt.from, tt.to)
		}
	}
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateAwaitingResult.Terminal())
	assert.False(t, StateNew.Terminal())
}

func TestStateFor(t *testing.T) {
	tests := map[ir.NextAction]State{
		ir.NextTransferCustomAssetsFromFundsOwner: StateAwaitingTreasuryTransfer,
		ir.NextIncreaseAllowance:                  StateAwaitingAllowance,
		ir.NextProvideLiquidity:                   StateAwaitingPoolDeposit,
		ir.NextFinalize:                           StateAwaitingResult,
	}
	for next, want := range tests {
		got, err := StateFor(next)
		require.NoError(t, err)
		assert.Equal(t, want, got, string(next))
	}

	_, err := StateFor("withdraw")
	assert.Error(t, err)
}

func TestValidStep(t *testing.T) {
	assert.True(t, validStep(ir.KindTransferFrom, ir.NextIncreaseAllowance))
	assert.True(t, validStep(ir.KindTransferFrom, ir.NextTransferCustomAssetsFromFundsOwner))
	assert.True(t, validStep(ir.KindIncreaseAllowance, ir.NextProvideLiquidity))
	assert.True(t, validStep(ir.KindProvideLiquidity, ir.NextFinalize))

	assert.False(t, validStep(ir.KindTransferFrom, ir.NextProvideLiquidity))
	assert.False(t, validStep(ir.KindIncreaseAllowance, ir.NextIncreaseAllowance))
	assert.False(t, validStep(ir.KindProvideLiquidity, ir.NextProvideLiquidity))
	assert.False(t, validStep("send", ir.NextFinalize))
}

func TestContractErrorFormatting(t *testing.T) {
	assert.Equal(t, "UNAUTHORIZED: nope", newError(ErrCodeUnauthorized, "nope").Error())
	assert.Equal(t, "REPLY_FAILED: received error: boom (flow=f, id=3)", NewReplyError("f", 3, "boom").Error())
	assert.Equal(t, "INVARIANT: bad (id=4)", NewInvariantError("", 4, "bad").Error())

	assert.Equal(t, ErrorCode(""), CodeOf(assert.AnError))
	assert.False(t, IsValidationError(NewReplyError("", 1, "x")))
	assert.True(t, IsValidationError(newError(ErrCodeSwapNotOpen, "later")))
}
