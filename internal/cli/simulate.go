package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/poolproxy/internal/engine"
	"github.com/roach88/poolproxy/internal/harness"
	"github.com/roach88/poolproxy/internal/metrics"
	"github.com/roach88/poolproxy/internal/testutil"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Database    string
	MetricsAddr string

	// SequentialFlows replaces UUIDv7 flow tokens with flow-0001, ...
	SequentialFlows bool
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <requests-file>",
		Short: "Run requests against the proxy on a simulated host",
		Long: `Run a file of requests against the proxy, with a simulated reward token,
native bank and pool built from the configuration file's host section.

The store is instantiated from the configuration when it is new. Each
request is processed to completion by the single-writer event loop before
the next one starts, and the resulting calls, ledgers and chains are
printed. Chains stay in the store for the trace and pending commands.

With --metrics-addr, Prometheus metrics are served at /metrics and the
command keeps running until interrupted.

Requests file:
  block_time: 2000
  steps:
    - execute:
        sender: alice
        funds: [{denom: uusd, amount: "100"}]
        msg: {provide_native_for_reward: {asset: {...}}}
    - send: {sender: bob, amount: 100, msg: {swap: {}}}
    - query: {msg: {pool: {}}}

Examples:
  poolproxy simulate requests.yaml
  poolproxy simulate requests.yaml --db :memory: --sequential-flows
  poolproxy simulate requests.yaml --metrics-addr 127.0.0.1:9090`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to the config's store)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (defaults to the config's metrics_addr)")
	cmd.Flags().BoolVar(&opts.SequentialFlows, "sequential-flows", false, "use sequential flow tokens instead of UUIDv7")

	return cmd
}

func runSimulate(opts *SimulateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	f, err := opts.loadConfig()
	if err != nil {
		return err
	}
	reqs, err := harness.LoadRequests(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load requests", err)
	}

	st, err := openStore(opts.Database, f)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := opts.MetricsAddr
	if addr == "" {
		addr = f.MetricsAddr
	}
	var server *metricsServer
	if addr != "" {
		server, err = startMetricsServer(addr)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start metrics server", err)
		}
		defer server.Close()
		formatter.VerboseLog("Serving metrics on http://%s/metrics", server.Addr())
	}

	var flows engine.FlowTokenGenerator = engine.UUIDv7Generator{}
	if opts.SequentialFlows {
		flows = testutil.NewSequentialFlowGenerator("flow")
	}

	inst := f.Instantiate
	if inst.Admin == "" {
		inst.Admin = harness.DefaultAdmin
	}
	h, err := harness.New(ctx, st, harness.Options{
		Contract:    f.Contract,
		BlockTime:   reqs.BlockTime,
		Instantiate: inst,
		Host:        f.Host,
		FlowTokens:  flows,
		Metrics:     metrics.Proxy(),
		Logger:      slog.Default(),
	})
	if err != nil {
		return formatter.Fail(ExitFailure, errorCode(err), "failed to start proxy", err)
	}

	slog.Info("simulation starting", "requests", path, "steps", len(reqs.Steps))
	result, err := h.Steps(ctx, reqs.Steps)
	if err != nil {
		return WrapExitError(ExitCommandError, "simulation failed", err)
	}
	slog.Info("simulation finished", "events", len(result.Trace), "pass", result.Pass)

	if formatter.IsJSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		writeSimulation(formatter.Writer, result)
	}

	if server != nil {
		slog.Info("serving metrics until interrupted", "addr", server.Addr())
		<-ctx.Done()
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("%d step(s) did not match their expectations", len(result.Errors)))
	}
	return nil
}

func writeSimulation(w io.Writer, result *harness.Result) {
	fmt.Fprintln(w, "Trace:")
	if len(result.Trace) == 0 {
		fmt.Fprintln(w, "  (empty)")
	}
	for _, ev := range result.Trace {
		fmt.Fprintf(w, "  %s\n", ev)
	}

	if s := result.State; s != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Accounts:")
		for _, addr := range s.Accounts() {
			fmt.Fprintf(w, "  %-18s tokens=%s native=%s shares=%s\n",
				addr, s.TokenBalances[addr], s.NativeBalances[addr], s.Shares[addr])
		}
		fmt.Fprintf(w, "Pool: native=%s reward=%s total_share=%s\n", s.ReserveNative, s.ReserveReward, s.TotalShare)
	}

	fmt.Fprintln(w)
	if result.Pass {
		fmt.Fprintln(w, "✓ All steps ran as expected")
		return
	}
	fmt.Fprintln(w, "✗ Unexpected step outcomes:")
	for _, msg := range result.Errors {
		fmt.Fprintf(w, "  %s\n", msg)
	}
}

// metricsServer serves the default Prometheus registry at /metrics.
type metricsServer struct {
	srv *http.Server
	lis net.Listener
}

func startMetricsServer(addr string) (*metricsServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "error", err)
		}
	}()
	return &metricsServer{srv: srv, lis: lis}, nil
}

// Addr returns the address the server listens on.
func (m *metricsServer) Addr() string {
	return m.lis.Addr().String()
}

// Close shuts the server down, waiting for in-flight scrapes.
func (m *metricsServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.srv.Shutdown(ctx)
}
