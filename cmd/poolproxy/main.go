// Command poolproxy runs the liquidity proxy engine: it instantiates the
// proxy's store, simulates requests against a simulated host, and inspects
// chains and pending continuations.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/poolproxy/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
