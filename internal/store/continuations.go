package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/roach88/poolproxy/internal/ir"
)

// ErrDuplicateContinuation is returned when a continuation already exists
// for a correlation id.
var ErrDuplicateContinuation = errors.New("continuation already exists")

// SaveContinuation stores the continuation for c.ID. Exactly one record may
// exist per id; a second save for the same id fails with
// ErrDuplicateContinuation.
func (t *Tx) SaveContinuation(ctx context.Context, c ir.Continuation, seq int64) error {
	payload := string(c.Payload)
	if payload == "" {
		payload = "{}"
	}
	record, err := marshalRecord(c)
	if err != nil {
		return fmt.Errorf("save continuation %d: %w", c.ID, err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO continuations (id, flow_token, kind, next_action, payload, record, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.FlowToken, string(c.Kind), string(c.NextAction), payload, record, seq)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("save continuation %d: %w", c.ID, ErrDuplicateContinuation)
		}
		return fmt.Errorf("save continuation %d: %w", c.ID, err)
	}
	return nil
}

// TakeContinuation reads and deletes the continuation for id. It returns
// found=false, with no error, when no continuation exists.
func (t *Tx) TakeContinuation(ctx context.Context, id uint64) (ir.Continuation, bool, error) {
	var record string
	err := t.tx.QueryRowContext(ctx, `
		DELETE FROM continuations WHERE id = ?
		RETURNING record
	`, id).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Continuation{}, false, nil
	}
	if err != nil {
		return ir.Continuation{}, false, fmt.Errorf("take continuation %d: %w", id, err)
	}

	var c ir.Continuation
	if err := unmarshalRecord(record, &c); err != nil {
		return ir.Continuation{}, false, fmt.Errorf("take continuation %d: %w", id, err)
	}
	return c, true, nil
}

// PendingContinuations returns every stored continuation ordered by id.
// Returns an empty slice (not nil) when nothing is pending.
func (t *Tx) PendingContinuations(ctx context.Context) ([]ir.Continuation, error) {
	return t.queryContinuations(ctx, `SELECT record FROM continuations ORDER BY id ASC`)
}

// FlowContinuations returns the stored continuations of one chain ordered
// by id.
func (t *Tx) FlowContinuations(ctx context.Context, flowToken string) ([]ir.Continuation, error) {
	return t.queryContinuations(ctx, `
		SELECT record FROM continuations WHERE flow_token = ? ORDER BY id ASC
	`, flowToken)
}

func (t *Tx) queryContinuations(ctx context.Context, query string, args ...any) ([]ir.Continuation, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query continuations: %w", err)
	}
	defer rows.Close()

	out := []ir.Continuation{}
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan continuation: %w", err)
		}
		var c ir.Continuation
		if err := unmarshalRecord(record, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate continuations: %w", err)
	}
	return out, nil
}
