package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/poolproxy/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run YAML scenarios against the proxy on a simulated host.

Each scenario runs in a fresh in-memory store and is checked against its
step expectations, final ledgers and assertions. When
<scenarios-dir>/golden/<name>.golden exists, the trace must also match it
byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  poolproxy test ./testdata/scenarios
  poolproxy test ./testdata/scenarios --filter "pair_*"
  poolproxy test ./testdata/scenarios --update
  poolproxy test ./testdata/scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(scenariosDir); errors.Is(err, os.ErrNotExist) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	paths, err := harness.FindScenarios(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	if len(paths) == 0 {
		if formatter.IsJSON() {
			return formatter.Success(&harness.SuiteResult{Results: []harness.ScenarioOutcome{}})
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	suite := harness.RunSuite(cmd.Context(), paths)
	goldenDir := filepath.Join(scenariosDir, "golden")
	for i := range suite.Results {
		outcome := &suite.Results[i]
		if err := checkGolden(suite, outcome, goldenDir, opts.Update); err != nil {
			return WrapExitError(ExitCommandError, "golden file error", err)
		}
	}

	if formatter.IsJSON() {
		return outputTestJSON(formatter, suite)
	}
	return outputTestText(formatter.Writer, suite, opts.Update)
}

// checkGolden writes or compares the golden trace of a scenario that ran.
// A passing scenario whose trace differs from its golden file fails.
func checkGolden(suite *harness.SuiteResult, outcome *harness.ScenarioOutcome, dir string, update bool) error {
	if outcome.Result == nil {
		return nil
	}

	snapshot := harness.TraceSnapshot{ScenarioName: outcome.Name, Trace: outcome.Result.Trace}
	current, err := snapshot.Marshal()
	if err != nil {
		return fmt.Errorf("marshal trace of %s: %w", outcome.Name, err)
	}
	path := filepath.Join(dir, outcome.Name+".golden")

	if update {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create golden directory: %w", err)
		}
		if err := os.WriteFile(path, current, 0o644); err != nil {
			return fmt.Errorf("write golden file: %w", err)
		}
		return nil
	}

	golden, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) || !outcome.Pass {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read golden file: %w", err)
	}
	if !bytes.Equal(golden, current) {
		msg := "trace does not match golden file (run with --update to regenerate)"
		outcome.Pass = false
		outcome.Errors = append(outcome.Errors, msg)
		suite.Passed--
		suite.Failed++
		suite.Failures = append(suite.Failures, harness.ScenarioFailure{ScenarioPath: outcome.Path, Error: msg})
	}
	return nil
}

func outputTestJSON(formatter *OutputFormatter, suite *harness.SuiteResult) error {
	response := CLIResponse{Status: "ok", Data: suite}
	if suite.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeTestFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", suite.Failed),
		}
	}
	if err := formatter.encode(response); err != nil {
		return err
	}

	if suite.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", suite.Failed))
	}
	return nil
}

func outputTestText(w io.Writer, suite *harness.SuiteResult, updated bool) error {
	for _, outcome := range suite.Results {
		if outcome.Pass {
			if updated && outcome.Result != nil {
				fmt.Fprintf(w, "✓ %s (golden updated)\n", outcome.Name)
			} else {
				fmt.Fprintf(w, "✓ %s\n", outcome.Name)
			}
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", outcome.Name)
		for _, e := range outcome.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", suite.Passed, suite.Failed, suite.Total)

	if suite.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", suite.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
