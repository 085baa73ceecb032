package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/poolproxy/internal/ir"
)

// Chain is the bookkeeping row of one request chain.
type Chain struct {
	FlowToken  string  `json:"flow_token"`
	Origin     string  `json:"origin"`
	User       ir.Addr `json:"user"`
	State      string  `json:"state"`
	LastID     uint64  `json:"last_id"`
	Error      string  `json:"error,omitempty"`
	CreatedSeq int64   `json:"created_seq"`
	UpdatedSeq int64   `json:"updated_seq"`
}

// SaveChain inserts or updates a chain row. Origin, user and created_seq
// are fixed by the first write.
func (t *Tx) SaveChain(ctx context.Context, c Chain) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO chains (flow_token, origin, user, state, last_id, error, created_seq, updated_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(flow_token) DO UPDATE SET
			state = excluded.state,
			last_id = excluded.last_id,
			error = excluded.error,
			updated_seq = excluded.updated_seq
	`, c.FlowToken, c.Origin, string(c.User), c.State, c.LastID, c.Error, c.CreatedSeq, c.UpdatedSeq)
	if err != nil {
		return fmt.Errorf("save chain %s: %w", c.FlowToken, err)
	}
	return nil
}

// Chain returns the chain row for a flow token.
func (t *Tx) Chain(ctx context.Context, flowToken string) (Chain, bool, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT flow_token, origin, user, state, last_id, error, created_seq, updated_seq
		FROM chains WHERE flow_token = ?
	`, flowToken)
	c, err := scanChain(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Chain{}, false, nil
	}
	if err != nil {
		return Chain{}, false, fmt.Errorf("chain %s: %w", flowToken, err)
	}
	return c, true, nil
}

// Chains returns every chain ordered by creation.
func (t *Tx) Chains(ctx context.Context) ([]Chain, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT flow_token, origin, user, state, last_id, error, created_seq, updated_seq
		FROM chains
		ORDER BY created_seq ASC, flow_token COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query chains: %w", err)
	}
	defer rows.Close()

	chains := []Chain{}
	for rows.Next() {
		c, err := scanChain(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chain: %w", err)
		}
		chains = append(chains, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chains: %w", err)
	}
	return chains, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChain(s scanner) (Chain, error) {
	var c Chain
	var user string
	err := s.Scan(&c.FlowToken, &c.Origin, &user, &c.State, &c.LastID, &c.Error, &c.CreatedSeq, &c.UpdatedSeq)
	c.User = ir.Addr(user)
	return c, err
}
