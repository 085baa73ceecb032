package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string

	level *slog.LevelVar
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// DefaultConfigPath is the configuration file read when --config is not set.
const DefaultConfigPath = "poolproxy.yaml"

// NewRootCommand creates the root command for the poolproxy CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "poolproxy",
		Short: "poolproxy - liquidity proxy for a constant-product pool",
		Long: `A proxy contract engine that forwards swaps and liquidity to a pool,
pulls reward tokens from treasuries, and records discounted reward bonds.

Inbound requests become chains of outbound calls whose replies are
correlated by id and persisted in SQLite.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			opts.setupLogging(cmd.ErrOrStderr())
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", DefaultConfigPath, "path to the configuration file")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewInstantiateCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))

	return cmd
}

// setupLogging installs a text handler on w. Verbose output forces debug;
// otherwise the level follows the configuration file once it is loaded.
func (o *RootOptions) setupLogging(w io.Writer) {
	o.level = new(slog.LevelVar)
	if o.Verbose {
		o.level.Set(slog.LevelDebug)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: o.level})))
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
