package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/poolproxy/internal/harness"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Runs int
}

// ReplayScenarioResult holds the replay result for a single scenario.
type ReplayScenarioResult struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	Runs          int    `json:"runs"`
	Events        int    `json:"events"`
	Deterministic bool   `json:"deterministic"`
	Error         string `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Scenarios        []ReplayScenarioResult `json:"scenarios"`
	Total            int                    `json:"total"`
	AllDeterministic bool                   `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <scenario-file-or-dir>...",
		Short: "Replay scenarios and verify determinism",
		Long: `Run each scenario several times from a fresh store and verify that
every run produces the same trace and the same final ledgers.

Exit codes:
  0 - All scenarios are deterministic
  1 - Determinism verification failed (differences detected)
  2 - Command error (scenario not found, etc.)

Examples:
  poolproxy replay ./testdata/scenarios
  poolproxy replay ./testdata/scenarios/pair_happy_path.yaml --runs 5
  poolproxy replay ./testdata/scenarios --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Runs, "runs", 2, "number of runs to compare")

	return cmd
}

func runReplay(opts *ReplayOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	if opts.Runs < 2 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--runs must be at least 2, got %d", opts.Runs))
	}

	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return WrapExitError(ExitCommandError, "scenario not found", err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := harness.FindScenarios(arg, "")
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find scenarios", err)
		}
		paths = append(paths, found...)
	}

	result := ReplayResult{
		Scenarios:        make([]ReplayScenarioResult, 0, len(paths)),
		Total:            len(paths),
		AllDeterministic: true,
	}
	for _, path := range paths {
		r := replayScenario(path, opts.Runs)
		formatter.VerboseLog("Replayed %s: %d run(s), %d event(s)", r.Name, r.Runs, r.Events)
		if !r.Deterministic {
			result.AllDeterministic = false
		}
		result.Scenarios = append(result.Scenarios, r)
	}

	if formatter.IsJSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		outputReplayText(formatter.Writer, result)
	}

	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// replayScenario runs the scenario at path runs times and compares each
// run's trace and ledgers with the first run's.
func replayScenario(path string, runs int) ReplayScenarioResult {
	r := ReplayScenarioResult{Name: path, Path: path}

	var first []byte
	for i := 0; i < runs; i++ {
		scenario, err := harness.LoadScenario(path)
		if err != nil {
			r.Error = err.Error()
			return r
		}
		r.Name = scenario.Name

		result, err := harness.Run(scenario)
		if err != nil {
			r.Error = err.Error()
			return r
		}
		r.Runs++

		fingerprint, err := runFingerprint(scenario.Name, result)
		if err != nil {
			r.Error = err.Error()
			return r
		}
		if i == 0 {
			first = fingerprint
			r.Events = len(result.Trace)
			continue
		}
		if !bytes.Equal(first, fingerprint) {
			r.Error = fmt.Sprintf("run %d differs from run 1", i+1)
			return r
		}
	}

	r.Deterministic = true
	return r
}

// runFingerprint encodes the trace canonically followed by the final
// ledgers.
func runFingerprint(name string, result *harness.Result) ([]byte, error) {
	snapshot := harness.TraceSnapshot{ScenarioName: name, Trace: result.Trace}
	trace, err := snapshot.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal trace: %w", err)
	}
	state, err := json.Marshal(result.State)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return append(append(trace, '\n'), state...), nil
}

func outputReplayText(w io.Writer, result ReplayResult) {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	for _, r := range result.Scenarios {
		if r.Deterministic {
			fmt.Fprintf(w, "✓ %s (%d runs, %d events)\n", r.Name, r.Runs, r.Events)
			continue
		}
		fmt.Fprintf(w, "✗ %s: %s\n", r.Name, r.Error)
	}

	fmt.Fprintln(w)
	if result.AllDeterministic {
		fmt.Fprintf(w, "✓ All %d scenario(s) deterministic\n", result.Total)
		return
	}
	fmt.Fprintln(w, "✗ Determinism verification failed")
}
