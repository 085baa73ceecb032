package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/poolproxy/internal/engine"
	"github.com/roach88/poolproxy/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Call     string // optional - filter to one call name
}

// TraceResult holds one chain and its outbound calls.
type TraceResult struct {
	Chain      store.Chain      `json:"chain"`
	Dispatches []store.Dispatch `json:"dispatches"`
	Stats      TraceStats       `json:"stats"`
}

// TraceStats summarizes a chain's calls.
type TraceStats struct {
	Dispatched int  `json:"dispatched"`
	Succeeded  int  `json:"succeeded"`
	Failed     int  `json:"failed"`
	Pending    int  `json:"pending"`
	IsComplete bool `json:"is_complete"`
}

// ChainsResult lists every chain in the store.
type ChainsResult struct {
	Chains []store.Chain `json:"chains"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [flow-token]",
		Short: "Show a request chain and its outbound calls",
		Long: `Show the chain started by one inbound request: its state, the
outbound calls it dispatched in order, and how each call was answered.

Without a flow token, lists every chain in the store.

Examples:
  poolproxy trace
  poolproxy trace flow-0001
  poolproxy trace flow-0001 --call transfer_from --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runListChains(opts, cmd)
			}
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to the config's store)")
	cmd.Flags().StringVar(&opts.Call, "call", "", "only show dispatches of this call")

	return cmd
}

func runListChains(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	f, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(opts.Database, f)
	if err != nil {
		return err
	}
	defer st.Close()

	var chains []store.Chain
	err = st.View(ctx, func(tx *store.Tx) error {
		var err error
		chains, err = tx.Chains(ctx)
		return err
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to list chains", err)
	}
	if chains == nil {
		chains = []store.Chain{}
	}

	if formatter.IsJSON() {
		return formatter.Success(ChainsResult{Chains: chains})
	}

	w := formatter.Writer
	if len(chains) == 0 {
		fmt.Fprintln(w, "No chains found in database.")
		return nil
	}
	for _, c := range chains {
		fmt.Fprintf(w, "%s  %-28s %-10s user=%s last_id=%d\n", c.FlowToken, c.Origin, c.State, c.User, c.LastID)
	}
	return nil
}

func runTrace(opts *TraceOptions, flow string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	f, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(opts.Database, f)
	if err != nil {
		return err
	}
	defer st.Close()

	var (
		chain      store.Chain
		found      bool
		dispatches []store.Dispatch
	)
	err = st.View(ctx, func(tx *store.Tx) error {
		var err error
		chain, found, err = tx.Chain(ctx, flow)
		if err != nil || !found {
			return err
		}
		dispatches, err = tx.FlowDispatches(ctx, flow)
		return err
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to read chain", err)
	}
	if !found {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("no chain found for flow: %s", flow), nil)
		return NewExitError(ExitFailure, fmt.Sprintf("no chain found for flow: %s", flow))
	}

	result := TraceResult{
		Chain:      chain,
		Dispatches: filterDispatches(dispatches, opts.Call),
		Stats:      traceStats(chain, dispatches),
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	writeTrace(formatter.Writer, result)
	return nil
}

func filterDispatches(dispatches []store.Dispatch, call string) []store.Dispatch {
	out := []store.Dispatch{}
	for _, d := range dispatches {
		if call == "" || d.Call == call {
			out = append(out, d)
		}
	}
	return out
}

func traceStats(chain store.Chain, dispatches []store.Dispatch) TraceStats {
	stats := TraceStats{Dispatched: len(dispatches)}
	for _, d := range dispatches {
		switch d.Outcome {
		case store.OutcomeOK:
			stats.Succeeded++
		case store.OutcomeError:
			stats.Failed++
		default:
			stats.Pending++
		}
	}
	stats.IsComplete = stats.Pending == 0 && engine.State(chain.State).Terminal()
	return stats
}

func writeTrace(w io.Writer, result TraceResult) {
	c := result.Chain
	fmt.Fprintf(w, "Flow: %s\n", c.FlowToken)
	fmt.Fprintf(w, "Origin: %s  User: %s\n", c.Origin, c.User)
	fmt.Fprintf(w, "State: %s", c.State)
	if c.Error != "" {
		fmt.Fprintf(w, " (%s)", c.Error)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Dispatches:")
	if len(result.Dispatches) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, d := range result.Dispatches {
		outcome := d.Outcome
		if outcome == store.OutcomePending {
			outcome = "pending"
		}
		fmt.Fprintf(w, "  [%d] #%d %s -> %s %s", d.Seq, d.ID, d.Call, d.Contract, outcome)
		if d.Error != "" {
			fmt.Fprintf(w, " %s", d.Error)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w)
	s := result.Stats
	fmt.Fprintf(w, "Stats: %d dispatched, %d ok, %d failed, %d pending\n", s.Dispatched, s.Succeeded, s.Failed, s.Pending)
}
