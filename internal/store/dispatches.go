package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/poolproxy/internal/ir"
)

// Dispatch outcomes.
const (
	OutcomePending = ""
	OutcomeOK      = "ok"
	OutcomeError   = "error"
)

// Dispatch is the log row of one outbound call.
type Dispatch struct {
	ID        uint64          `json:"id"`
	FlowToken string          `json:"flow_token"`
	Seq       int64           `json:"seq"`
	Call      string          `json:"call"`
	Contract  ir.Addr         `json:"contract"`
	Msg       json.RawMessage `json:"msg"`
	Funds     []ir.Coin       `json:"funds,omitempty"`
	ReplyOn   ir.ReplyOn      `json:"reply_on"`
	Outcome   string          `json:"outcome,omitempty"`
	Error     string          `json:"error,omitempty"`
	ReplySeq  int64           `json:"reply_seq,omitempty"`
}

// RecordDispatch logs an outbound call. Recording the same id twice is a
// no-op.
func (t *Tx) RecordDispatch(ctx context.Context, d Dispatch) error {
	funds, err := marshalFunds(d.Funds)
	if err != nil {
		return fmt.Errorf("record dispatch %d: %w", d.ID, err)
	}
	msg := string(d.Msg)
	if msg == "" {
		msg = "{}"
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO dispatches (id, flow_token, seq, call, contract, msg, funds, reply_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, d.ID, d.FlowToken, d.Seq, d.Call, string(d.Contract), msg, funds, string(d.ReplyOn))
	if err != nil {
		return fmt.Errorf("record dispatch %d: %w", d.ID, err)
	}
	return nil
}

// RecordOutcome stores the reply outcome of a dispatched call. Only the
// first outcome is kept; unknown ids are ignored.
func (t *Tx) RecordOutcome(ctx context.Context, id uint64, outcome, errText string, seq int64) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE dispatches SET outcome = ?, error = ?, reply_seq = ?
		WHERE id = ? AND outcome = ''
	`, outcome, errText, seq, id)
	if err != nil {
		return fmt.Errorf("record outcome %d: %w", id, err)
	}
	return nil
}

// Dispatch returns the log row of one outbound call.
func (t *Tx) Dispatch(ctx context.Context, id uint64) (Dispatch, bool, error) {
	row := t.tx.QueryRowContext(ctx, dispatchSelect+` WHERE id = ?`, id)
	d, err := scanDispatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Dispatch{}, false, nil
	}
	if err != nil {
		return Dispatch{}, false, fmt.Errorf("dispatch %d: %w", id, err)
	}
	return d, true, nil
}

// FlowDispatches returns the calls of one chain in dispatch order.
// Returns an empty slice (not nil) for unknown flows.
func (t *Tx) FlowDispatches(ctx context.Context, flowToken string) ([]Dispatch, error) {
	rows, err := t.tx.QueryContext(ctx, dispatchSelect+`
		WHERE flow_token = ?
		ORDER BY seq ASC, id ASC
	`, flowToken)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	out := []Dispatch{}
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}
	return out, nil
}

const dispatchSelect = `
	SELECT id, flow_token, seq, call, contract, msg, funds, reply_on, outcome, error, reply_seq
	FROM dispatches`

func scanDispatch(s scanner) (Dispatch, error) {
	var (
		d        Dispatch
		contract string
		msg      string
		funds    string
		replyOn  string
	)
	if err := s.Scan(&d.ID, &d.FlowToken, &d.Seq, &d.Call, &contract, &msg, &funds, &replyOn, &d.Outcome, &d.Error, &d.ReplySeq); err != nil {
		return Dispatch{}, err
	}
	d.Contract = ir.Addr(contract)
	d.Msg = json.RawMessage(msg)
	d.ReplyOn = ir.ReplyOn(replyOn)

	coins, err := unmarshalFunds(funds)
	if err != nil {
		return Dispatch{}, err
	}
	d.Funds = coins
	return d, nil
}
