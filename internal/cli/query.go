package cli

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/poolproxy/internal/ir"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Database string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <msg-json>",
		Short: "Run a read-only query against the proxy",
		Long: `Run a read-only query against an instantiated store.

Pool queries (pool, pair, simulation, reverse_simulation,
cumulative_prices) are answered by the simulated pool described in the
configuration file's host section.

Examples:
  poolproxy query '{"configuration":{}}'
  poolproxy query '{"get_bonding_details":{"user_address":"alice"}}'
  poolproxy query '{"get_reward_equivalent_to_native":{"amount":"1000"}}' --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to the config's store)")

	return cmd
}

func runQuery(opts *QueryOptions, raw string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	var msg ir.QueryMsg
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&msg); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBadMessage, "invalid query message", err)
	}

	f, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(opts.Database, f)
	if err != nil {
		return err
	}
	defer st.Close()

	eng := newEngine(st, f)
	answer, err := eng.Query(ctx, eng.Env(), msg)
	if err != nil {
		return formatter.Fail(ExitFailure, errorCode(err), "query failed", err)
	}

	if formatter.IsJSON() {
		return formatter.Success(json.RawMessage(answer))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, answer, "", "  "); err != nil {
		return fmt.Errorf("format answer: %w", err)
	}
	fmt.Fprintln(formatter.Writer, pretty.String())
	return nil
}
