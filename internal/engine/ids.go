package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/poolproxy/internal/store"
)

// IDAllocator issues correlation ids for outbound calls.
//
// Allocate runs inside the invocation's transaction so an id is only
// consumed if the invocation commits.
type IDAllocator interface {
	Allocate(ctx context.Context, tx *store.Tx) (uint64, error)
}

// StoreAllocator allocates ids from the persisted correlation counter.
// The first id is 1 and each later id is the previous plus one.
type StoreAllocator struct{}

// Allocate advances the persisted counter.
func (StoreAllocator) Allocate(ctx context.Context, tx *store.Tx) (uint64, error) {
	return tx.NextCorrelationID(ctx)
}

// FixedAllocator returns predetermined ids for testing.
//
// Thread-safety: FixedAllocator is safe for concurrent use via internal mutex.
type FixedAllocator struct {
	mu  sync.Mutex
	ids []uint64
	idx int
}

// NewFixedAllocator creates an allocator that returns ids in order.
func NewFixedAllocator(ids ...uint64) *FixedAllocator {
	return &FixedAllocator{ids: ids}
}

// Allocate returns the next predetermined id, or an error once all ids
// have been used.
func (a *FixedAllocator) Allocate(context.Context, *store.Tx) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.idx >= len(a.ids) {
		return 0, fmt.Errorf("FixedAllocator: all %d ids exhausted", len(a.ids))
	}
	id := a.ids[a.idx]
	a.idx++
	return id, nil
}
