package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/poolproxy/internal/amount"
	"github.com/roach88/poolproxy/internal/ir"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// update runs fn in a committed transaction and fails the test on error.
func update(t *testing.T, s *Store, fn func(context.Context, *Tx) error) {
	t.Helper()
	ctx := context.Background()
	if err := s.Update(ctx, func(tx *Tx) error { return fn(ctx, tx) }); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
}

// createTestContinuation creates a continuation with minimal required fields.
func createTestContinuation(id uint64, flow string, next ir.NextAction) ir.Continuation {
	return ir.Continuation{
		ID:         id,
		FlowToken:  flow,
		Kind:       ir.KindTransferFrom,
		NextAction: next,
		Payload:    []byte(`{"provide_liquidity":{"assets":[]}}`),
		Funds:      []ir.Coin{{Denom: "uusd", Amount: amount.New(100)}},
		User:       "alice",
	}
}
