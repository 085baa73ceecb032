package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/poolproxy/internal/config"
	"github.com/roach88/poolproxy/internal/engine"
	"github.com/roach88/poolproxy/internal/harness"
	"github.com/roach88/poolproxy/internal/store"
)

// loadConfig reads the configuration file named by --config. Unless
// --verbose is set, the log level follows the file's log_level.
func (o *RootOptions) loadConfig() (*config.File, error) {
	path := o.Config
	if path == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("config file not found: %s", path))
	}

	f, err := config.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if !o.Verbose && o.level != nil {
		o.level.Set(f.Level())
	}
	return f, nil
}

// openStore opens the store at path, falling back to the store named by
// the configuration file.
func openStore(path string, f *config.File) (*store.Store, error) {
	if path == "" {
		path = f.Store
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// newEngine builds an engine over st whose pool queries and tax are
// answered by the simulated host described in f. Outbound calls are not
// dispatched.
func newEngine(st *store.Store, f *config.File) *engine.Engine {
	host := harness.NewHost(f.Host, f.Instantiate, f.Contract)
	return engine.New(st, f.Contract,
		engine.WithPoolQuerier(host),
		engine.WithTaxQuerier(host),
	)
}
