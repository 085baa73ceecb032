package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/poolproxy/internal/ir"
	"github.com/roach88/poolproxy/internal/store"
)

// PendingOptions holds flags for the pending command.
type PendingOptions struct {
	*RootOptions
	Database string
	Flow     string
}

// PendingResult lists the continuations waiting for a reply.
type PendingResult struct {
	Count         int               `json:"count"`
	Continuations []ir.Continuation `json:"continuations"`
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PendingOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List continuations waiting for a reply",
		Long: `List the continuations stored by correlation id that have not been
consumed by a reply yet, in id order.

Examples:
  poolproxy pending
  poolproxy pending --flow 0190a8a4-7c1e-7b52-9a41-3c5e2f0d9b11 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPending(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to the config's store)")
	cmd.Flags().StringVar(&opts.Flow, "flow", "", "only list continuations of this flow")

	return cmd
}

func runPending(opts *PendingOptions, cmd *cobra.Command) error {
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

	var pending []ir.Continuation
	err = st.View(ctx, func(tx *store.Tx) error {
		var err error
		if opts.Flow != "" {
			pending, err = tx.FlowContinuations(ctx, opts.Flow)
		} else {
			pending, err = tx.PendingContinuations(ctx)
		}
		return err
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to read continuations", err)
	}
	if pending == nil {
		pending = []ir.Continuation{}
	}

	result := PendingResult{Count: len(pending), Continuations: pending}
	if formatter.IsJSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	if len(pending) == 0 {
		fmt.Fprintln(w, "No pending continuations.")
		return nil
	}
	fmt.Fprintf(w, "%d pending continuation(s):\n", len(pending))
	for _, c := range pending {
		fmt.Fprintf(w, "  #%d %s %s -> %s user=%s\n", c.ID, c.FlowToken, c.Kind, c.NextAction, c.User)
		for _, h := range c.Holdings {
			formatter.VerboseLog("    holding %s from %s", h.Amount, h.Owner)
		}
	}
	return nil
}
