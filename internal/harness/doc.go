// Package harness runs conformance scenarios against the proxy engine.
//
// A scenario instantiates the proxy on a simulated host (a reward token
// ledger, a native bank and a constant-product pool), sends it requests,
// and checks the outbound calls and the final ledgers.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: pair_happy_path
//	description: "What this scenario validates"
//	block_time: 500
//	instantiate:
//	  custom_token_address: token
//	  pool_pair_address: pool
//	  pair_discount_rate: 500
//	  ...
//	host:
//	  reserves: {native: 1000, reward: 2000}
//	  token_balances: {alice: 500}
//	  token_allowances: {pair-treasury: 10000}
//	  native_balances: {alice: 1000}
//	  fail: {provide_liquidity: "pool paused"}
//	steps:
//	  - execute:
//	      sender: alice
//	      funds: [{denom: uusd, amount: "100"}]
//	      msg: {provide_pair_for_reward: {assets: [...]}}
//	  - set_time: 2000
//	  - send:
//	      sender: bob
//	      amount: 100
//	      msg: {swap: {to: bob}}
//	  - query:
//	      msg: {reward_bonds: {user: alice}}
//	      expect: {bonds: [{amount: "421"}]}
//	expect:
//	  token_balances: {alice: 300}
//	  bonds: {alice: [421]}
//	  chains: {flow-0001: done}
//	  pending: 0
//	assertions:
//	  - type: trace_order
//	    calls: [transfer_from, increase_allowance, provide_liquidity]
//	  - type: final_state
//	    table: chains
//	    where: {flow_token: flow-0001}
//	    expect: {state: done}
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: a dispatched call with matching fields exists
//   - trace_order: calls are dispatched in the given order
//   - trace_count: a call is dispatched exactly N times
//   - final_state: queries a store table and verifies expected values
//
// # Deterministic Testing
//
// Every scenario runs on a fresh in-memory store with a deterministic block
// clock and sequential flow tokens (flow-0001, flow-0002, ...), so traces
// are identical across runs and can be compared with golden snapshots.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/pair_happy_path.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
