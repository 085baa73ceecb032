package engine

import (
	"time"

	"github.com/roach88/poolproxy/internal/ir"
)

// Clock supplies the block time of an invocation.
//
// Block time decides whether swaps are open and when reward bonds start.
// It is never used for ordering: ledger rows are ordered by the persisted
// logical sequence (store.Tx.NextSeq).
type Clock interface {
	Now() ir.Timestamp
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() ir.Timestamp {
	return ir.FromTime(time.Now())
}
