package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/poolproxy/internal/ir"
)

// Counter names.
const (
	CounterCorrelationID = "correlation_id"
	CounterSeq           = "seq"
)

// SaveContractVersion records the code that instantiated the state.
func (t *Tx) SaveContractVersion(ctx context.Context, v ir.ContractVersion) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO contract_info (id, contract, version) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET contract = excluded.contract, version = excluded.version
	`, v.Contract, v.Version)
	if err != nil {
		return fmt.Errorf("save contract version: %w", err)
	}
	return nil
}

// ContractVersion returns the recorded contract version, or ErrNotFound
// before instantiation.
func (t *Tx) ContractVersion(ctx context.Context) (ir.ContractVersion, error) {
	var v ir.ContractVersion
	err := t.tx.QueryRowContext(ctx, `SELECT contract, version FROM contract_info WHERE id = 1`).
		Scan(&v.Contract, &v.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.ContractVersion{}, fmt.Errorf("contract version: %w", ErrNotFound)
	}
	if err != nil {
		return ir.ContractVersion{}, fmt.Errorf("contract version: %w", err)
	}
	return v, nil
}

// SaveConfig replaces the configuration singleton.
func (t *Tx) SaveConfig(ctx context.Context, cfg ir.Config) error {
	data, err := marshalRecord(cfg)
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO config (id, data) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data
	`, data)
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// LoadConfig returns the configuration singleton, or ErrNotFound before
// instantiation.
func (t *Tx) LoadConfig(ctx context.Context) (ir.Config, error) {
	var data string
	err := t.tx.QueryRowContext(ctx, `SELECT data FROM config WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Config{}, fmt.Errorf("load config: %w", ErrNotFound)
	}
	if err != nil {
		return ir.Config{}, fmt.Errorf("load config: %w", err)
	}
	var cfg ir.Config
	if err := unmarshalRecord(data, &cfg); err != nil {
		return ir.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// NextCounter increments the named counter and returns the new value.
// The first call for a name returns 1.
func (t *Tx) NextCounter(ctx context.Context, name string) (uint64, error) {
	var next uint64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value
	`, name).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next counter %s: %w", name, err)
	}
	return next, nil
}

// Counter returns the last value issued by the named counter, or 0 if it
// has never been incremented.
func (t *Tx) Counter(ctx context.Context, name string) (uint64, error) {
	var v uint64
	err := t.tx.QueryRowContext(ctx, `SELECT value FROM counters WHERE name = ?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counter %s: %w", name, err)
	}
	return v, nil
}

// NextCorrelationID allocates the next correlation id.
func (t *Tx) NextCorrelationID(ctx context.Context) (uint64, error) {
	return t.NextCounter(ctx, CounterCorrelationID)
}

// NextSeq advances the persisted logical clock.
func (t *Tx) NextSeq(ctx context.Context) (int64, error) {
	v, err := t.NextCounter(ctx, CounterSeq)
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}
