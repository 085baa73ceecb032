package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/poolproxy/internal/ir"
)

// InstantiateOptions holds flags for the instantiate command.
type InstantiateOptions struct {
	*RootOptions
	Database string
	Sender   string
}

// InstantiateResult is the output of a successful instantiation.
type InstantiateResult struct {
	Contract   ir.Addr        `json:"contract"`
	Store      string         `json:"store"`
	Admin      ir.Addr        `json:"admin"`
	Attributes []ir.Attribute `json:"attributes"`
}

// NewInstantiateCommand creates the instantiate command.
func NewInstantiateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InstantiateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "instantiate",
		Short: "Create the proxy's store from the configuration file",
		Long: `Validate the instantiate section of the configuration file and save it,
with the contract version, into a new store.

The admin defaults to the sender. Instantiating a store twice fails.

Examples:
  poolproxy instantiate --config poolproxy.yaml
  poolproxy instantiate --db /tmp/proxy.db --sender owner`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstantiate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to the config's store)")
	cmd.Flags().StringVar(&opts.Sender, "sender", "", "sender of the instantiate message (defaults to the configured admin)")

	return cmd
}

func runInstantiate(opts *InstantiateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	f, err := opts.loadConfig()
	if err != nil {
		return err
	}

	sender := ir.Addr(opts.Sender)
	if sender == "" {
		sender = f.Instantiate.Admin
	}
	if sender == "" {
		return NewExitError(ExitCommandError, "--sender is required when the config names no admin")
	}

	st, err := openStore(opts.Database, f)
	if err != nil {
		return err
	}
	defer st.Close()

	eng := newEngine(st, f)
	resp, err := eng.Instantiate(ctx, eng.Env(), ir.MessageInfo{Sender: sender}, ir.InstantiateMsg{Config: f.Instantiate})
	if err != nil {
		return formatter.Fail(ExitFailure, errorCode(err), "instantiate rejected", err)
	}

	admin := f.Instantiate.Admin
	if admin == "" {
		admin = sender
	}
	result := InstantiateResult{
		Contract:   f.Contract,
		Store:      storePath(opts.Database, f.Store),
		Admin:      ir.NormalizeAddr(string(admin)),
		Attributes: resp.Attributes,
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Instantiated %s in %s (admin %s)\n", result.Contract, result.Store, result.Admin)
	for _, attr := range result.Attributes {
		formatter.VerboseLog("  %s = %s", attr.Key, attr.Value)
	}
	return nil
}

func storePath(flag, configured string) string {
	if flag != "" {
		return flag
	}
	return configured
}
