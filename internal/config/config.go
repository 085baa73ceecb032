// Package config loads poolproxy configuration files.
//
// A configuration file is YAML. It is checked against the embedded CUE
// schema (schema.cue) before it is decoded, so structural mistakes are
// reported with the path of the offending field:
//
//	contract: poolproxy
//	store: poolproxy.db
//	log_level: info
//	instantiate:
//	  custom_token_address: token
//	  pair_discount_rate: 500
//	  ...
//	host:
//	  reserves: {native: 1000, reward: 2000}
//
// The host section only configures the simulated host used by the CLI's
// simulate command and by scenarios.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/poolproxy/internal/amount"
	"github.com/roach88/poolproxy/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// Defaults applied to fields the file leaves out.
const (
	DefaultContract = ir.Addr("poolproxy")
	DefaultStore    = "poolproxy.db"
	DefaultLogLevel = "info"
)

// File is a decoded configuration file.
type File struct {
	Contract    ir.Addr   `yaml:"contract"`
	Store       string    `yaml:"store"`
	LogLevel    string    `yaml:"log_level"`
	MetricsAddr string    `yaml:"metrics_addr"`
	Instantiate ir.Config `yaml:"instantiate"`
	Host        Host      `yaml:"host"`
}

// Host configures the simulated host.
type Host struct {
	Reserves        Reserves                   `yaml:"reserves"`
	TokenBalances   map[ir.Addr]amount.Uint128 `yaml:"token_balances"`
	TokenAllowances map[ir.Addr]amount.Uint128 `yaml:"token_allowances"`
	NativeBalances  map[ir.Addr]amount.Uint128 `yaml:"native_balances"`
	Tax             Tax                        `yaml:"tax"`

	// Fail maps a call name (transfer_from, provide_liquidity, ...) to the
	// error text its replies carry.
	Fail map[string]string `yaml:"fail"`
}

// Reserves are the pool's initial native and reward-token reserves.
type Reserves struct {
	Native amount.Uint128 `yaml:"native"`
	Reward amount.Uint128 `yaml:"reward"`
}

// Tax is the levy on native transfers: rate_bps of the amount, capped at
// cap when cap is non-zero.
type Tax struct {
	RateBps uint16         `yaml:"rate_bps"`
	Cap     amount.Uint128 `yaml:"cap"`
}

// FieldError is a schema violation at a field path.
type FieldError struct {
	Path    string
	Message string
}

func (e *FieldError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Load reads and parses the configuration file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return f, nil
}

// Parse validates data against the schema, decodes it and applies
// defaults.
func Parse(data []byte) (*File, error) {
	if errs := Validate(data); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	f.applyDefaults()

	if err := f.Contract.Validate(); err != nil {
		return nil, fmt.Errorf("contract: %w", err)
	}
	return &f, nil
}

// Validate checks data against the embedded schema and returns every
// violation found.
func Validate(data []byte) []error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return []error{fmt.Errorf("parse yaml: %w", err)}
	}
	if doc == nil {
		return []error{&FieldError{Message: "config is empty"}}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return []error{fmt.Errorf("compile schema: %w", err)}
	}

	value := ctx.Encode(doc)
	if err := value.Err(); err != nil {
		return []error{fmt.Errorf("encode config: %w", err)}
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	err := unified.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var errs []error
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		errs = append(errs, &FieldError{
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}
	return errs
}

func (f *File) applyDefaults() {
	if f.Contract == "" {
		f.Contract = DefaultContract
	}
	f.Contract = ir.NormalizeAddr(string(f.Contract))
	if f.Store == "" {
		f.Store = DefaultStore
	}
	if f.LogLevel == "" {
		f.LogLevel = DefaultLogLevel
	}
	if f.Instantiate.NativeDenom == "" {
		f.Instantiate.NativeDenom = ir.DefaultNativeDenom
	}
}

// Level returns the slog level named by LogLevel.
func (f *File) Level() slog.Level {
	switch f.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
