// Package reward computes discounted reward entitlements from a pool
// reserve snapshot.
//
// All arithmetic is 128-bit unsigned and truncating. Any overflow or
// division by zero yields zero instead of an error, so a malformed pool
// state credits nothing rather than aborting the deposit.
package reward

import (
	"github.com/roach88/poolproxy/internal/amount"
	"github.com/roach88/poolproxy/internal/ir"
)

// Legs are the contributed amounts of each side of a deposit.
type Legs struct {
	Native amount.Uint128
	Reward amount.Uint128
}

// Reserves are the pool balances of each side.
type Reserves struct {
	Native amount.Uint128
	Reward amount.Uint128
}

// Params are the discount settings of one deposit path.
type Params struct {
	DiscountBps      uint16
	BondingPeriodSec uint64
	FundsOwner       ir.Addr
}

// Result is the outcome of a reward computation.
type Result struct {
	Equivalent       amount.Uint128
	PreDiscount      amount.Uint128
	Total            amount.Uint128
	BondingPeriodSec uint64
	FundsOwner       ir.Addr
}

// ParamsFor selects the pair or native discount settings.
func ParamsFor(cfg ir.Config, paired bool) Params {
	if paired {
		return Params{
			DiscountBps:      cfg.PairDiscountRate,
			BondingPeriodSec: cfg.PairBondingPeriodSec,
			FundsOwner:       cfg.PairFundsProvider,
		}
	}
	return Params{
		DiscountBps:      cfg.NativeDiscountRate,
		BondingPeriodSec: cfg.NativeBondingPeriodSec,
		FundsOwner:       cfg.NativeFundsProvider,
	}
}

// LegsOf reads the contributed amounts from a deposit's assets. The reward
// leg only counts on the pair path. Legs of a pair without a token side are
// zero.
func LegsOf(assets [2]ir.Asset, paired bool) Legs {
	var legs Legs
	switch {
	case !assets[0].Info.IsNative():
		legs.Native = assets[1].Amount
		if paired {
			legs.Reward = assets[0].Amount
		}
	case !assets[1].Info.IsNative():
		legs.Native = assets[0].Amount
		if paired {
			legs.Reward = assets[1].Amount
		}
	}
	return legs
}

// RewardLeg returns the token side amount of a pair, or zero if both sides
// are native.
func RewardLeg(assets [2]ir.Asset) amount.Uint128 {
	switch {
	case !assets[0].Info.IsNative():
		return assets[0].Amount
	case !assets[1].Info.IsNative():
		return assets[1].Amount
	default:
		return amount.Zero()
	}
}

// ReservesOf orders a pool snapshot by side. The first asset is taken as
// the native side when it is native, otherwise the second one is.
func ReservesOf(pool ir.PoolResponse) Reserves {
	if pool.Assets[0].Info.IsNative() {
		return Reserves{Native: pool.Assets[0].Amount, Reward: pool.Assets[1].Amount}
	}
	return Reserves{Native: pool.Assets[1].Amount, Reward: pool.Assets[0].Amount}
}

// RewardEquivalent converts a native amount to reward tokens at the spot
// ratio of the reserves.
func RewardEquivalent(native amount.Uint128, r Reserves) amount.Uint128 {
	return native.MulOrZero(r.Reward).DivOrZero(r.Native)
}

// NativeEquivalent converts a reward token amount to native at the spot
// ratio of the reserves.
func NativeEquivalent(reward amount.Uint128, r Reserves) amount.Uint128 {
	return reward.MulOrZero(r.Native).DivOrZero(r.Reward)
}

// Discount inflates pre by the discount: pre * 10000 / (10000 - bps).
// A discount of 10000 bps or more yields zero.
func Discount(pre amount.Uint128, bps uint16) amount.Uint128 {
	if bps >= ir.MaxBps {
		return amount.Zero()
	}
	rate := amount.New(uint64(ir.MaxBps - bps))
	return pre.MulOrZero(amount.New(ir.MaxBps)).DivOrZero(rate)
}

// Compute runs the full calculation for one deposit.
//
// On the pair path the equivalent is capped at the contributed reward leg
// and then doubled to value the whole pair. On the native path it is used
// as is.
func Compute(legs Legs, r Reserves, paired bool, p Params) Result {
	equiv := RewardEquivalent(legs.Native, r)
	pre := equiv
	if paired {
		equiv = amount.Min(equiv, legs.Reward)
		pre = equiv.MulOrZero(amount.New(2))
	}
	return Result{
		Equivalent:       equiv,
		PreDiscount:      pre,
		Total:            Discount(pre, p.DiscountBps),
		BondingPeriodSec: p.BondingPeriodSec,
		FundsOwner:       p.FundsOwner,
	}
}
