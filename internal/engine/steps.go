package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/poolproxy/internal/amount"
	"github.com/roach88/poolproxy/internal/ir"
	"github.com/roach88/poolproxy/internal/reward"
	"github.com/roach88/poolproxy/internal/store"
)

// step is the resumable state of a liquidity chain, decoded from its
// continuation.
type step struct {
	deposit  ir.PoolProvideLiquidity
	payload  json.RawMessage
	funds    []ir.Coin
	user     ir.Addr
	paired   bool
	holdings []ir.Holding
}

// continuation returns the record that resumes s after the next call.
func (s step) continuation(kind ir.OperationKind, next ir.NextAction, transfer *ir.Holding) *ir.Continuation {
	return &ir.Continuation{
		Kind:         kind,
		NextAction:   next,
		Payload:      s.payload,
		Funds:        s.funds,
		User:         s.user,
		RewardPaired: s.paired,
		Holdings:     s.holdings,
		Transfer:     transfer,
	}
}

// newStep encodes the deferred pool deposit of a new chain.
func newStep(deposit ir.PoolProvideLiquidity, funds []ir.Coin, user ir.Addr, paired bool) (step, error) {
	payload, err := ir.MarshalCanonical(ir.PoolMsg{ProvideLiquidity: &deposit})
	if err != nil {
		return step{}, fmt.Errorf("encode deposit payload: %w", err)
	}
	return step{deposit: deposit, payload: payload, funds: funds, user: user, paired: paired}, nil
}

// stepFrom decodes the deferred pool deposit carried by a continuation.
func stepFrom(c ir.Continuation) (step, error) {
	var msg ir.PoolMsg
	if err := json.Unmarshal(c.Payload, &msg); err != nil {
		return step{}, NewInvariantError(c.FlowToken, c.ID, "decode continuation payload: %v", err)
	}
	if msg.ProvideLiquidity == nil {
		return step{}, NewInvariantError(c.FlowToken, c.ID, "continuation payload is not a provide_liquidity message")
	}
	return step{
		deposit:  *msg.ProvideLiquidity,
		payload:  c.Payload,
		funds:    c.Funds,
		user:     c.User,
		paired:   c.RewardPaired,
		holdings: c.HoldingsAfter(),
	}, nil
}

func requireAdmin(inv *invocation, sender ir.Addr) error {
	if sender != inv.cfg.Admin {
		return newError(ErrCodeUnauthorized, "sender %s is not the admin", sender)
	}
	return nil
}

func requirePool(inv *invocation) error {
	if inv.cfg.PoolPairAddress == "" {
		return newError(ErrCodeInvalidConfig, "pool pair address is not configured")
	}
	return nil
}

func requireSwapOpen(inv *invocation) error {
	if inv.env.BlockTime.Before(inv.cfg.SwapOpeningDate) {
		return newError(ErrCodeSwapNotOpen, "swap opens at %d, block time is %d", inv.cfg.SwapOpeningDate, inv.env.BlockTime)
	}
	return nil
}

// configure replaces the swap opening date and, when given, the pool.
func (e *Engine) configure(inv *invocation, info ir.MessageInfo, msg *ir.ConfigureMsg) error {
	if err := requireAdmin(inv, info.Sender); err != nil {
		return err
	}
	cfg := inv.cfg
	if msg.PoolPairAddress != nil {
		pool := ir.NormalizeAddr(string(*msg.PoolPairAddress))
		if err := pool.Validate(); err != nil {
			return newError(ErrCodeInvalidConfig, "pool_pair_address: %v", err)
		}
		cfg.PoolPairAddress = pool
	}
	cfg.SwapOpeningDate = msg.SwapOpeningDate
	if err := inv.tx.SaveConfig(inv.ctx, cfg); err != nil {
		return err
	}
	inv.cfg = cfg

	inv.resp.AddAttribute("action", "configure").
		AddAttribute("pool_pair_address", string(cfg.PoolPairAddress)).
		AddAttribute("swap_opening_date", fmt.Sprint(cfg.SwapOpeningDate))
	return nil
}

func (e *Engine) setSwapOpeningDate(inv *invocation, info ir.MessageInfo, msg *ir.SetSwapOpeningDateMsg) error {
	if err := requireAdmin(inv, info.Sender); err != nil {
		return err
	}
	inv.cfg.SwapOpeningDate = msg.SwapOpeningDate
	if err := inv.tx.SaveConfig(inv.ctx, inv.cfg); err != nil {
		return err
	}
	inv.resp.AddAttribute("action", "set_swap_opening_date").
		AddAttribute("swap_opening_date", fmt.Sprint(msg.SwapOpeningDate))
	return nil
}

// checkPair validates the two legs of a deposit: one native coin and the
// reward token.
func checkPair(inv *invocation, assets [2]ir.Asset) error {
	natives := 0
	for _, a := range assets {
		if err := a.Info.Check(); err != nil {
			return newError(ErrCodeInvalidAsset, "%v", err)
		}
		if a.Info.IsNative() {
			natives++
			continue
		}
		if a.Info.Token.ContractAddr != inv.cfg.CustomTokenAddress {
			return newError(ErrCodeInvalidAsset, "token %s is not the reward token %s", a.Info.Token.ContractAddr, inv.cfg.CustomTokenAddress)
		}
	}
	if natives != 1 {
		return newError(ErrCodeInvalidAsset, "pair must have exactly one native leg, got %d", natives)
	}
	return nil
}

// provideLiquidity starts a chain by pulling the sender's reward leg into
// the proxy.
func (e *Engine) provideLiquidity(inv *invocation, info ir.MessageInfo, msg *ir.ProvideLiquidityMsg, receiver ir.Addr, next ir.NextAction) error {
	if err := checkPair(inv, msg.Assets); err != nil {
		return err
	}
	if err := requirePool(inv); err != nil {
		return err
	}

	s, err := newStep(ir.PoolProvideLiquidity{
		Assets:            msg.Assets,
		SlippageTolerance: msg.SlippageTolerance,
		AutoStake:         msg.AutoStake,
		Receiver:          &receiver,
	}, info.Funds, info.Sender, true)
	if err != nil {
		return err
	}

	leg := reward.RewardLeg(msg.Assets)
	_, err = e.dispatch(inv, outbound{
		call:     string(ir.KindTransferFrom),
		contract: inv.cfg.CustomTokenAddress,
		msg: ir.TokenMsg{TransferFrom: &ir.TransferFrom{
			Owner:     info.Sender,
			Recipient: inv.env.ContractAddress,
			Amount:    leg,
		}},
		cont: s.continuation(ir.KindTransferFrom, next, &ir.Holding{Owner: info.Sender, Amount: leg}),
	})
	if err != nil {
		return err
	}

	inv.resp.AddAttribute("action", "transfer_from_user").
		AddAttribute("owner", string(info.Sender)).
		AddAttribute("amount", leg.String())
	return nil
}

// provideNativeForReward starts a native-only chain. The reward leg is
// supplied entirely by the native funds provider.
func (e *Engine) provideNativeForReward(inv *invocation, info ir.MessageInfo, msg *ir.ProvideNativeForRewardMsg) error {
	if err := msg.Asset.Info.Check(); err != nil {
		return newError(ErrCodeInvalidAsset, "%v", err)
	}
	if !msg.Asset.Info.IsNative() || msg.Asset.Info.NativeToken.Denom != inv.cfg.NativeDenom {
		return newError(ErrCodeInvalidAsset, "asset %s is not the native denom %s", msg.Asset.Info, inv.cfg.NativeDenom)
	}
	if err := requirePool(inv); err != nil {
		return err
	}

	receiver := inv.cfg.DefaultShareReceiver
	s, err := newStep(ir.PoolProvideLiquidity{
		Assets: [2]ir.Asset{
			{Info: ir.NativeInfo(inv.cfg.NativeDenom), Amount: msg.Asset.Amount},
			{Info: ir.TokenInfo(inv.cfg.CustomTokenAddress), Amount: amount.Zero()},
		},
		SlippageTolerance: msg.SlippageTolerance,
		AutoStake:         msg.AutoStake,
		Receiver:          &receiver,
	}, info.Funds, info.Sender, false)
	if err != nil {
		return err
	}
	return e.treasuryStep(inv, s)
}

// treasuryStep records the depositor's reward bond and pulls the reward
// from the path's funds owner.
func (e *Engine) treasuryStep(inv *invocation, s step) error {
	if e.pool == nil {
		return newError(ErrCodeNotFound, "no pool querier configured")
	}
	snapshot, err := e.pool.Pool(inv.ctx, inv.cfg.PoolPairAddress)
	if err != nil {
		return fmt.Errorf("query pool %s: %w", inv.cfg.PoolPairAddress, err)
	}

	res := reward.Compute(
		reward.LegsOf(s.deposit.Assets, s.paired),
		reward.ReservesOf(snapshot),
		s.paired,
		reward.ParamsFor(inv.cfg, s.paired),
	)

	start := inv.cfg.SwapOpeningDate
	if start.Before(inv.env.BlockTime) {
		start = inv.env.BlockTime
	}
	bond := ir.RewardBond{
		Depositor:             s.user,
		Amount:                res.Total,
		BondingPeriodSec:      res.BondingPeriodSec,
		BondingStartTimestamp: start,
	}
	if err := inv.tx.AppendBond(inv.ctx, bond, inv.flow); err != nil {
		return err
	}
	inv.bonds = append(inv.bonds, s.paired)

	slog.Info("reward bond appended",
		"user", s.user,
		"amount", res.Total.String(),
		"paired", s.paired,
		"bonding_start", start,
		"flow_token", inv.flow,
	)

	_, err = e.dispatch(inv, outbound{
		call:     string(ir.KindTransferFrom),
		contract: inv.cfg.CustomTokenAddress,
		msg: ir.TokenMsg{TransferFrom: &ir.TransferFrom{
			Owner:     res.FundsOwner,
			Recipient: inv.env.ContractAddress,
			Amount:    res.Total,
		}},
		cont: s.continuation(ir.KindTransferFrom, ir.NextIncreaseAllowance, &ir.Holding{Owner: res.FundsOwner, Amount: res.Total}),
	})
	if err != nil {
		return err
	}

	inv.resp.AddAttribute("action", "transfer_from_funds_owner").
		AddAttribute("owner", string(res.FundsOwner)).
		AddAttribute("amount", res.Total.String()).
		AddAttribute("bonding_period_sec", fmt.Sprint(res.BondingPeriodSec))
	return nil
}

// allowanceStep lets the pool pull the reward leg from the proxy.
func (e *Engine) allowanceStep(inv *invocation, s step) error {
	leg := reward.RewardLeg(s.deposit.Assets)
	_, err := e.dispatch(inv, outbound{
		call:     string(ir.KindIncreaseAllowance),
		contract: inv.cfg.CustomTokenAddress,
		msg: ir.TokenMsg{IncreaseAllowance: &ir.AllowanceChange{
			Spender: inv.cfg.PoolPairAddress,
			Amount:  leg,
		}},
		cont: s.continuation(ir.KindIncreaseAllowance, ir.NextProvideLiquidity, nil),
	})
	if err != nil {
		return err
	}
	inv.resp.AddAttribute("action", "increase_allowance").
		AddAttribute("spender", string(inv.cfg.PoolPairAddress)).
		AddAttribute("amount", leg.String())
	return nil
}

// depositStep forwards the deposit to the pool with each native fund
// reduced by its levy. The pool's reply needs no follow-up unless failed
// chains are compensated.
func (e *Engine) depositStep(inv *invocation, s step) error {
	funds := make([]ir.Coin, 0, len(s.funds))
	for _, coin := range s.funds {
		tax, err := e.tax.ComputeTax(inv.ctx, coin)
		if err != nil {
			return fmt.Errorf("compute tax on %s: %w", coin.Denom, err)
		}
		net, err := coin.Amount.CheckedSub(tax)
		if err != nil {
			return NewInvariantError(inv.flow, 0, "tax %s exceeds %s%s", tax, coin.Amount, coin.Denom)
		}
		funds = append(funds, ir.Coin{Denom: coin.Denom, Amount: net})
	}

	var cont *ir.Continuation
	if inv.cfg.CompensateOnFailure {
		s.funds = funds
		cont = s.continuation(ir.KindProvideLiquidity, ir.NextFinalize, nil)
	}
	_, err := e.dispatch(inv, outbound{
		call:     string(ir.KindProvideLiquidity),
		contract: inv.cfg.PoolPairAddress,
		msg:      ir.PoolMsg{ProvideLiquidity: &s.deposit},
		funds:    funds,
		cont:     cont,
	})
	if err != nil {
		return err
	}
	inv.resp.AddAttribute("action", "provide_liquidity").
		AddAttribute("pool", string(inv.cfg.PoolPairAddress))
	inv.resp.Data = s.payload
	return nil
}

// swap forwards a native swap to the pool with the offer attached.
func (e *Engine) swap(inv *invocation, info ir.MessageInfo, msg *ir.SwapMsg) error {
	if err := msg.OfferAsset.Info.Check(); err != nil {
		return newError(ErrCodeInvalidAsset, "%v", err)
	}
	if !msg.OfferAsset.Info.IsNative() {
		return newError(ErrCodeUnauthorized, "swap offer must be a native asset")
	}
	if err := requireSwapOpen(inv); err != nil {
		return err
	}
	if err := requirePool(inv); err != nil {
		return err
	}
	to, err := optionalAddr(msg.To)
	if err != nil {
		return err
	}

	poolSwap := ir.PoolSwap{
		OfferAsset:  msg.OfferAsset,
		BeliefPrice: msg.BeliefPrice,
		MaxSpread:   msg.MaxSpread,
		To:          to,
	}
	_, err = e.dispatch(inv, outbound{
		call:     "swap",
		contract: inv.cfg.PoolPairAddress,
		msg:      ir.PoolMsg{Swap: &poolSwap},
		funds:    []ir.Coin{{Denom: msg.OfferAsset.Info.NativeToken.Denom, Amount: msg.OfferAsset.Amount}},
	})
	if err != nil {
		return err
	}
	inv.resp.AddAttribute("action", "swap").
		AddAttribute("offer", msg.OfferAsset.Info.String()).
		AddAttribute("amount", msg.OfferAsset.Amount.String())
	return nil
}

func optionalAddr(a *ir.Addr) (*ir.Addr, error) {
	if a == nil {
		return nil, nil
	}
	n := ir.NormalizeAddr(string(*a))
	if err := n.Validate(); err != nil {
		return nil, newError(ErrCodeInvalidAsset, "to: %v", err)
	}
	return &n, nil
}

// receive handles the reward token's transfer notification.
func (e *Engine) receive(inv *invocation, info ir.MessageInfo, msg *ir.ReceiveMsg) error {
	if info.Sender != inv.cfg.CustomTokenAddress {
		return newError(ErrCodeUnauthorized, "receive hook from %s, want reward token %s", info.Sender, inv.cfg.CustomTokenAddress)
	}
	var hook ir.HookMsg
	if err := json.Unmarshal(msg.Msg, &hook); err != nil {
		return newError(ErrCodeUnsupported, "decode hook message: %v", err)
	}

	switch {
	case hook.Swap != nil:
		if err := requireSwapOpen(inv); err != nil {
			return err
		}
		if err := requirePool(inv); err != nil {
			return err
		}
		_, err := e.dispatch(inv, outbound{
			call:     "send",
			contract: inv.cfg.CustomTokenAddress,
			msg: ir.TokenMsg{Send: &ir.Send{
				Contract: inv.cfg.PoolPairAddress,
				Amount:   msg.Amount,
				Msg:      msg.Msg,
			}},
			funds: info.Funds,
		})
		if err != nil {
			return err
		}
		inv.resp.AddAttribute("action", "send_to_pool").
			AddAttribute("sender", string(msg.Sender)).
			AddAttribute("amount", msg.Amount.String())
		return nil
	case hook.WithdrawLiquidity != nil:
		return newError(ErrCodeUnsupported, "withdraw_liquidity is not supported")
	default:
		return newError(ErrCodeUnsupported, "hook message has no known variant")
	}
}

// compensate returns the reward tokens the chain pulled into the proxy
// and, when the pool deposit failed, revokes the pool's allowance. Reward
// bonds appended by the chain are removed.
func (e *Engine) compensate(inv *invocation, c ir.Continuation) error {
	revoked, err := inv.tx.RevokeBonds(inv.ctx, c.FlowToken)
	if err != nil {
		return err
	}
	if revoked > 0 {
		slog.Info("reward bonds revoked",
			"flow_token", c.FlowToken,
			"count", revoked,
		)
	}

	for _, h := range c.Holdings {
		if h.Amount.IsZero() {
			continue
		}
		_, err := e.dispatch(inv, outbound{
			call:     "transfer",
			contract: inv.cfg.CustomTokenAddress,
			msg: ir.TokenMsg{Transfer: &ir.Transfer{
				Recipient: h.Owner,
				Amount:    h.Amount,
			}},
			compensating: true,
		})
		if err != nil {
			return err
		}
	}

	if c.Kind == ir.KindProvideLiquidity {
		s, err := stepFrom(c)
		if err != nil {
			return err
		}
		leg := reward.RewardLeg(s.deposit.Assets)
		if !leg.IsZero() {
			_, err = e.dispatch(inv, outbound{
				call:     "decrease_allowance",
				contract: inv.cfg.CustomTokenAddress,
				msg: ir.TokenMsg{DecreaseAllowance: &ir.AllowanceChange{
					Spender: inv.cfg.PoolPairAddress,
					Amount:  leg,
				}},
				compensating: true,
			})
			if err != nil {
				return err
			}
		}
	}

	inv.resp.AddAttribute("action", "compensate").
		AddAttribute("failed_id", fmt.Sprint(c.ID)).
		AddAttribute("calls", fmt.Sprint(len(inv.resp.Messages)))
	return nil
}

// passThrough copies the inner call's event attributes and data.
func passThrough(inv *invocation, res *ir.SubMsgResponse) {
	for _, ev := range res.Events {
		inv.resp.Attributes = append(inv.resp.Attributes, ev.Attributes...)
	}
	if len(res.Data) > 0 {
		inv.resp.Data = res.Data
	}
}

// dispatchOutcome is the dispatch log outcome of a reply.
func dispatchOutcome(r ir.Reply) (string, string) {
	if r.Result.IsOk() {
		return store.OutcomeOK, ""
	}
	return store.OutcomeError, r.Result.Err
}
