// Package store provides SQLite-backed durable storage for poolproxy.
//
// The store holds every ledger the engine reads between invocations:
//   - contract_info / config: singletons written at instantiation
//   - counters: correlation ids and the logical clock
//   - continuations: pending operation ledger keyed by correlation id
//   - reward_bonds: append-only reward bonding ledger
//   - chains / dispatches: per-chain state and outbound call log
//
// # Transactions
//
// All reads and writes go through a Tx obtained from Update or View. The
// engine runs each invocation in one Update, so an invocation either
// commits every ledger change it made or none of them.
//
// # Ordering
//
// Multi-row queries use ORDER BY on a logical sequence (never wall-clock
// time) so results are identical across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Records stored as JSON TEXT use RFC 8785 canonical JSON from
// internal/ir.
package store
