package store

import (
	"context"
	"fmt"

	"github.com/roach88/poolproxy/internal/amount"
	"github.com/roach88/poolproxy/internal/ir"
)

// AppendBond appends a reward bond to the depositor's list. Bonds are
// never updated; they are only removed when their chain is compensated.
func (t *Tx) AppendBond(ctx context.Context, bond ir.RewardBond, flowToken string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO reward_bonds (depositor, amount, bonding_period_sec, bonding_start, flow_token)
		VALUES (?, ?, ?, ?, ?)
	`,
		string(bond.Depositor),
		bond.Amount.String(),
		int64(bond.BondingPeriodSec),
		int64(bond.BondingStartTimestamp),
		flowToken,
	)
	if err != nil {
		return fmt.Errorf("append bond for %s: %w", bond.Depositor, err)
	}
	return nil
}

// RevokeBonds removes the bonds appended by the chain named by flowToken
// and returns how many were removed.
func (t *Tx) RevokeBonds(ctx context.Context, flowToken string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM reward_bonds WHERE flow_token = ?`, flowToken)
	if err != nil {
		return 0, fmt.Errorf("revoke bonds of %s: %w", flowToken, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke bonds of %s: %w", flowToken, err)
	}
	return n, nil
}

// Bonds returns the depositor's reward bonds in append order.
// Returns an empty slice (not nil) for unknown depositors.
func (t *Tx) Bonds(ctx context.Context, depositor ir.Addr) ([]ir.RewardBond, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT depositor, amount, bonding_period_sec, bonding_start
		FROM reward_bonds
		WHERE depositor = ?
		ORDER BY seq ASC
	`, string(depositor))
	if err != nil {
		return nil, fmt.Errorf("query bonds: %w", err)
	}
	defer rows.Close()

	bonds := []ir.RewardBond{}
	for rows.Next() {
		var (
			dep    string
			amt    string
			period int64
			start  int64
		)
		if err := rows.Scan(&dep, &amt, &period, &start); err != nil {
			return nil, fmt.Errorf("scan bond: %w", err)
		}
		parsed, err := amount.Parse(amt)
		if err != nil {
			return nil, fmt.Errorf("bond amount %q: %w", amt, err)
		}
		bonds = append(bonds, ir.RewardBond{
			Depositor:             ir.Addr(dep),
			Amount:                parsed,
			BondingPeriodSec:      uint64(period),
			BondingStartTimestamp: ir.Timestamp(start),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bonds: %w", err)
	}
	return bonds, nil
}
