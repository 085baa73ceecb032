// Package engine implements the continuation orchestrator of the pool
// proxy.
//
// An inbound request starts a chain: a sequence of outbound calls (token
// transfer, allowance grant, pool deposit) in which each step runs only
// after the previous call's reply has arrived. The engine keeps no chain
// state in memory. Before a call is returned for dispatch, the record of
// what to do with its reply (the continuation) is stored under the call's
// correlation id. The reply invocation takes that record, exactly once,
// and either issues the next call or finishes.
//
// ARCHITECTURE:
//
// Invocation boundary:
// Instantiate, Execute, Reply and Query each run in one store
// transaction. A rejected invocation leaves no trace: ids, continuations,
// bonds and chain rows are rolled back together. A failed reply is the
// exception: the consumed continuation and the Failed chain state are
// committed before the error is returned.
//
// Single-Writer Event Loop:
// Run and Drain process queued events one at a time. Outbound calls of a
// committed invocation are handed to the Dispatcher, which delivers them
// and later enqueues their replies.
//
// Chain FSM:
// Each chain has a State named after the step its pending continuation
// resumes. Transition rejects illegal moves as invariant errors.
//
// Ordering:
// Correlation ids come from a persisted counter and strictly increase.
// Ledger rows are ordered by the persisted logical sequence, never by
// block time.
package engine
