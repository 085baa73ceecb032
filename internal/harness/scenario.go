package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/poolproxy/internal/amount"
	"github.com/roach88/poolproxy/internal/config"
	"github.com/roach88/poolproxy/internal/ir"
)

// Defaults for scenarios that leave the proxy address or admin out.
const (
	DefaultContract = ir.Addr("poolproxy")
	DefaultAdmin    = ir.Addr("admin")
)

// Scenario defines a conformance test scenario: an instantiated proxy on a
// simulated host, a list of steps, and the state expected afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden traces are stored
	// under this name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Contract is the proxy's address. Defaults to DefaultContract.
	Contract ir.Addr `yaml:"contract,omitempty"`

	// BlockTime is the block clock at the start of the scenario.
	BlockTime ir.Timestamp `yaml:"block_time"`

	// Instantiate is the proxy configuration. The admin defaults to
	// "admin".
	Instantiate ir.Config `yaml:"instantiate"`

	// Host is the simulated host's initial state.
	Host config.Host `yaml:"host"`

	// Steps run in order. Each request step drains the engine before the
	// next step starts.
	Steps []Step `yaml:"steps"`

	// Expect validates the final ledgers.
	Expect *Expectations `yaml:"expect,omitempty"`

	// Assertions validate the trace and the proxy's store.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one scenario step. Exactly one field is set.
type Step struct {
	Execute *ExecuteStep  `yaml:"execute,omitempty"`
	Send    *SendStep     `yaml:"send,omitempty"`
	SetTime *ir.Timestamp `yaml:"set_time,omitempty"`
	Query   *QueryStep    `yaml:"query,omitempty"`
}

// ExecuteStep sends an inbound request to the proxy.
type ExecuteStep struct {
	Sender ir.Addr   `yaml:"sender"`
	Funds  []ir.Coin `yaml:"funds,omitempty"`

	// Msg is the execute message in its JSON shape.
	Msg map[string]any `yaml:"msg"`

	// ExpectError is the error code the request must be rejected with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// SendStep sends reward tokens to the proxy with a hook message.
type SendStep struct {
	Sender      ir.Addr        `yaml:"sender"`
	Amount      amount.Uint128 `yaml:"amount"`
	Msg         map[string]any `yaml:"msg"`
	ExpectError string         `yaml:"expect_error,omitempty"`
}

// QueryStep queries the proxy.
type QueryStep struct {
	Msg map[string]any `yaml:"msg"`

	// Expect is matched against the JSON answer. Maps match as subsets,
	// lists element by element.
	Expect map[string]any `yaml:"expect,omitempty"`

	ExpectError string `yaml:"expect_error,omitempty"`
}

// Expectations validate the host ledgers and the proxy's ledgers after the
// last step. Addresses not listed are not checked.
type Expectations struct {
	TokenBalances  map[ir.Addr]amount.Uint128   `yaml:"token_balances,omitempty"`
	NativeBalances map[ir.Addr]amount.Uint128   `yaml:"native_balances,omitempty"`
	Shares         map[ir.Addr]amount.Uint128   `yaml:"shares,omitempty"`
	Reserves       *config.Reserves             `yaml:"reserves,omitempty"`
	Bonds          map[ir.Addr][]amount.Uint128 `yaml:"bonds,omitempty"`
	Chains         map[string]string            `yaml:"chains,omitempty"`
	Pending        *int                         `yaml:"pending,omitempty"`
}

// Assertion validates the trace or the proxy's store.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a dispatched call matching Call and Match exists
	// - "trace_order": calls appear in order
	// - "trace_count": a call is dispatched exactly Count times
	// - "final_state": query a store table and verify expected values
	Type string `yaml:"type"`

	// Call is the outbound call name (used by trace_contains, trace_count).
	Call string `yaml:"call,omitempty"`

	// Match holds further dispatch fields (contract, flow, outcome, error,
	// code) that must match (used by trace_contains).
	Match map[string]any `yaml:"match,omitempty"`

	// Calls is the expected call order (used by trace_order).
	Calls []string `yaml:"calls,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Table, Where and Expect are used by final_state.
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	scenario.applyDefaults()
	return &scenario, nil
}

// Requests is a list of steps run against a configured proxy, without
// expectations or assertions.
type Requests struct {
	BlockTime ir.Timestamp `yaml:"block_time"`
	Steps     []Step       `yaml:"steps"`
}

// LoadRequests reads and parses a requests YAML file.
func LoadRequests(path string) (*Requests, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read requests file: %w", err)
	}
	return ParseRequests(data)
}

// ParseRequests parses requests YAML.
func ParseRequests(data []byte) (*Requests, error) {
	var reqs Requests
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&reqs); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(reqs.Steps) == 0 {
		return nil, fmt.Errorf("invalid requests: steps list is required and must be non-empty")
	}
	for i, step := range reqs.Steps {
		if err := validateStep(i, step); err != nil {
			return nil, fmt.Errorf("invalid requests: %w", err)
		}
	}
	return &reqs, nil
}

func (s *Scenario) applyDefaults() {
	if s.Contract == "" {
		s.Contract = DefaultContract
	}
	if s.Instantiate.Admin == "" {
		s.Instantiate.Admin = DefaultAdmin
	}
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step) error {
	set := 0
	if step.Execute != nil {
		set++
		if step.Execute.Sender == "" {
			return fmt.Errorf("steps[%d].execute: sender is required", index)
		}
		if len(step.Execute.Msg) != 1 {
			return fmt.Errorf("steps[%d].execute: msg must have exactly one variant", index)
		}
	}
	if step.Send != nil {
		set++
		if step.Send.Sender == "" {
			return fmt.Errorf("steps[%d].send: sender is required", index)
		}
		if step.Send.Msg == nil {
			return fmt.Errorf("steps[%d].send: msg is required", index)
		}
	}
	if step.SetTime != nil {
		set++
	}
	if step.Query != nil {
		set++
		if len(step.Query.Msg) != 1 {
			return fmt.Errorf("steps[%d].query: msg must have exactly one variant", index)
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of execute, send, set_time, query is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Call == "" {
			return fmt.Errorf("assertions[%d]: call is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Calls) == 0 {
			return fmt.Errorf("assertions[%d]: calls list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Call == "" {
			return fmt.Errorf("assertions[%d]: call is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", index, a.Type)
	}
	return nil
}

// decodeMsg converts a YAML message into its JSON wire form and decodes it
// into out.
func decodeMsg(msg map[string]any, out any) (json.RawMessage, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
	}
	return raw, nil
}
