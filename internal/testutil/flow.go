package testutil

import (
	"fmt"
	"sync"
)

// SequentialFlowGenerator generates numbered flow tokens.
//
// The same scenario run with a fresh generator produces the same tokens in
// the same order, which keeps golden traces byte-identical. Unlike
// engine.FixedGenerator it never runs out.
//
// Thread-safety: SequentialFlowGenerator is safe for concurrent use.
type SequentialFlowGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialFlowGenerator creates a generator whose tokens start with
// prefix. If prefix is empty, "flow" is used.
func NewSequentialFlowGenerator(prefix string) *SequentialFlowGenerator {
	if prefix == "" {
		prefix = "flow"
	}
	return &SequentialFlowGenerator{prefix: prefix}
}

// Generate returns the next token: prefix-0001, prefix-0002, ...
//
// Implements engine.FlowTokenGenerator.
func (g *SequentialFlowGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
