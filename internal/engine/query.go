package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/poolproxy/internal/ir"
	"github.com/roach88/poolproxy/internal/reward"
	"github.com/roach88/poolproxy/internal/store"
)

// Query answers a read-only request. Pool queries are forwarded to the
// configured pool.
func (e *Engine) Query(ctx context.Context, env ir.Env, q ir.QueryMsg) (json.RawMessage, error) {
	variant, err := q.Variant()
	if err != nil {
		return nil, newError(ErrCodeUnsupported, "%v", err)
	}

	var out any
	err = e.store.View(ctx, func(tx *store.Tx) error {
		cfg, err := tx.LoadConfig(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return newError(ErrCodeNotFound, "contract is not instantiated")
		}
		if err != nil {
			return err
		}

		switch {
		case q.Configuration != nil:
			out = cfg
			return nil
		case q.GetSwapOpeningDate != nil:
			out = cfg.SwapOpeningDate
			return nil
		case q.GetBondingDetails != nil:
			user := ir.NormalizeAddr(string(q.GetBondingDetails.UserAddress))
			bonds, err := tx.Bonds(ctx, user)
			if err != nil {
				return err
			}
			out = ir.BondingDetailsResponse{User: user, Bonds: bonds}
			return nil
		}

		out, err = e.queryPool(ctx, cfg, q)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", variant, err)
	}
	return json.Marshal(out)
}

func (e *Engine) queryPool(ctx context.Context, cfg ir.Config, q ir.QueryMsg) (any, error) {
	if cfg.PoolPairAddress == "" {
		return nil, newError(ErrCodeInvalidConfig, "pool pair address is not configured")
	}
	if e.pool == nil {
		return nil, newError(ErrCodeNotFound, "no pool querier configured")
	}
	pool := cfg.PoolPairAddress

	switch {
	case q.Pool != nil:
		return e.pool.Pool(ctx, pool)
	case q.Pair != nil:
		return e.pool.Pair(ctx, pool)
	case q.Simulation != nil:
		return e.pool.Simulation(ctx, pool, q.Simulation.OfferAsset)
	case q.ReverseSimulation != nil:
		return e.pool.ReverseSimulation(ctx, pool, q.ReverseSimulation.AskAsset)
	case q.CumulativePrices != nil:
		return e.pool.CumulativePrices(ctx, pool)
	}

	snapshot, err := e.pool.Pool(ctx, pool)
	if err != nil {
		return nil, err
	}
	reserves := reward.ReservesOf(snapshot)
	switch {
	case q.GetRewardEquivalentToNative != nil:
		return ir.AmountResponse{Amount: reward.RewardEquivalent(q.GetRewardEquivalentToNative.Amount, reserves)}, nil
	case q.GetNativeEquivalentToReward != nil:
		return ir.AmountResponse{Amount: reward.NativeEquivalent(q.GetNativeEquivalentToReward.Amount, reserves)}, nil
	}
	return nil, newError(ErrCodeUnsupported, "unknown query")
}
