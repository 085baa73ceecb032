package harness

import (
	"fmt"
	"strings"
)

// Trace event types.
const (
	EventExecute  = "execute"
	EventDispatch = "dispatch"
)

// TraceEvent is one entry of a scenario trace: an inbound request or an
// outbound call with the outcome the host returned for it.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"` // "execute" or "dispatch"

	// Execute fields.
	Sender  string `json:"sender,omitempty"`
	Variant string `json:"variant,omitempty"`

	// Dispatch fields.
	ID       uint64 `json:"id,omitempty"`
	Call     string `json:"call,omitempty"`
	Contract string `json:"contract,omitempty"`
	Flow     string `json:"flow,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
	Error    string `json:"error,omitempty"`

	// Code is the error code the engine returned for the request, or for
	// the reply of a dispatched call.
	Code string `json:"code,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace contains requests and outbound calls in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the simulated host's final state.
	State *HostState `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Dispatches returns the dispatch events of the trace.
func (r *Result) Dispatches() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == EventDispatch {
			out = append(out, ev)
		}
	}
	return out
}

// String formats the event on one line.
func (e TraceEvent) String() string {
	var line string
	if e.Type == EventExecute {
		line = fmt.Sprintf("[%d] execute %s from %s %s", e.Seq, e.Variant, e.Sender, e.Code)
	} else {
		line = fmt.Sprintf("[%d] dispatch #%d %s -> %s %s %s", e.Seq, e.ID, e.Call, e.Contract, e.Outcome, e.Error)
	}
	return strings.TrimRight(line, " ")
}
