package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/atmx/outcome-engine/internal/amm"
	"github.com/atmx/outcome-engine/internal/custody"
	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/events"
	"github.com/atmx/outcome-engine/internal/fixed"
	"github.com/atmx/outcome-engine/internal/ledger"
	"github.com/atmx/outcome-engine/internal/metrics"
	"github.com/atmx/outcome-engine/internal/model"
	"github.com/atmx/outcome-engine/internal/outcome"
	"github.com/atmx/outcome-engine/internal/store"
)

// LiquidityChange is the result of adding or removing liquidity.
type LiquidityChange struct {
	Owner       string                  `json:"owner"`
	Ticker      string                  `json:"ticker"`
	LPTokens    uint64                  `json:"lp_tokens"`
	TokenAmount uint64                  `json:"token_amount"`
	SolAmount   uint64                  `json:"sol_amount"`
	FeesEarned  uint64                  `json:"fees_earned,omitempty"`
	Pool        model.AMMPool           `json:"pool"`
	Position    model.LiquidityPosition `json:"position"`
}

// SwapReceipt is the result of a swap.
type SwapReceipt struct {
	Swap     model.Swap         `json:"swap"`
	Pool     model.AMMPool      `json:"pool"`
	Position model.ShareBalance `json:"position"`
}

// QuoteResult previews a swap without executing it.
type QuoteResult struct {
	AmountOut      uint64 `json:"amount_out"`
	PriceImpactBps uint64 `json:"price_impact_bps"`
	Price          uint64 `json:"price"`
}

// InitPool opens an empty AMM pool for an outcome.
func (e *Engine) InitPool(ctx context.Context, key outcome.Key, feeBps, protocolFeeBps uint64) (model.AMMPool, error) {
	var created model.AMMPool
	err := e.mutate(ctx, "init_pool", func(now int64, b *store.Batch) ([]events.Event, error) {
		if _, err := e.openMarket(ctx, key); err != nil {
			return nil, err
		}
		if _, err := e.share(ctx, key); err != nil {
			return nil, err
		}
		if _, err := e.store.GetPool(ctx, key); err == nil {
			return nil, fmt.Errorf("%w: pool %s already exists", errs.ErrInvalidConfiguration, key)
		} else if !errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
		p, err := amm.NewPool(key, feeBps, protocolFeeBps, now)
		if err != nil {
			return nil, err
		}
		b.PutPool(p)
		created = p
		return nil, nil
	})
	if err != nil {
		return model.AMMPool{}, err
	}

	slog.Info("pool created", "ticker", key.String(), "fee_bps", feeBps, "protocol_fee_bps", protocolFeeBps)
	return created, nil
}

// AddLiquidity deposits shares and lamports into a pool and mints LP
// tokens to owner. The shares leave owner's ledger position at cost.
func (e *Engine) AddLiquidity(ctx context.Context, owner string, key outcome.Key, tokenAmount, solAmount, minLP uint64) (LiquidityChange, error) {
	var res LiquidityChange
	err := e.mutate(ctx, "add_liquidity", func(now int64, b *store.Batch) ([]events.Event, error) {
		if _, err := e.openMarket(ctx, key); err != nil {
			return nil, err
		}
		p, err := e.pool(ctx, key)
		if err != nil {
			return nil, err
		}
		pos, err := e.position(ctx, owner, key, now)
		if err != nil {
			return nil, err
		}
		p, pos, minted, err := amm.AddLiquidity(p, pos, tokenAmount, solAmount, minLP, now)
		if err != nil {
			return nil, err
		}
		bal, err := e.balance(ctx, owner, key)
		if err != nil {
			return nil, err
		}
		if bal, err = ledger.Withdraw(bal, tokenAmount, now); err != nil {
			return nil, err
		}

		user, vault := custody.User(owner), custody.Pool(key)
		b.PutPool(p)
		b.PutPosition(pos)
		b.PutBalance(bal)
		b.Post(
			custody.Transfer(user, vault, custody.ShareAsset(key), tokenAmount),
			custody.Transfer(user, vault, custody.Native, solAmount),
			custody.Mint(user, custody.LPAsset(key), minted),
		)

		res = LiquidityChange{
			Owner: owner, Ticker: key.String(), LPTokens: minted,
			TokenAmount: tokenAmount, SolAmount: solAmount, Pool: p, Position: pos,
		}
		return []events.Event{events.New(events.LiquidityAdded, key.MarketID, key.String(), res, now)}, nil
	})
	if err != nil {
		return LiquidityChange{}, err
	}

	slog.Info("liquidity added", "owner", owner, "ticker", res.Ticker,
		"token_amount", tokenAmount, "sol_amount", solAmount, "lp_minted", res.LPTokens)
	return res, nil
}

// RemoveLiquidity burns lp tokens and returns the proportional reserves.
// Returned shares re-enter owner's ledger position at the pool price.
// Withdrawals stay open after resolution so providers can exit.
func (e *Engine) RemoveLiquidity(ctx context.Context, owner string, key outcome.Key, lp, minToken, minSol uint64) (LiquidityChange, error) {
	var res LiquidityChange
	err := e.mutate(ctx, "remove_liquidity", func(now int64, b *store.Batch) ([]events.Event, error) {
		if _, err := e.market(ctx, key); err != nil {
			return nil, err
		}
		p, err := e.pool(ctx, key)
		if err != nil {
			return nil, err
		}
		pos, err := e.position(ctx, owner, key, now)
		if err != nil {
			return nil, err
		}
		price, err := amm.Price(p)
		if err != nil {
			return nil, err
		}
		p, np, w, err := amm.RemoveLiquidity(p, pos, lp, minToken, minSol, now)
		if err != nil {
			return nil, err
		}

		if w.TokenAmount > 0 {
			bal, err := e.balance(ctx, owner, key)
			if err != nil {
				return nil, err
			}
			if bal, err = ledger.Deposit(bal, w.TokenAmount, price, now); err != nil {
				return nil, err
			}
			b.PutBalance(bal)
		}

		user, vault := custody.User(owner), custody.Pool(key)
		b.PutPool(p)
		b.PutPosition(np)
		b.Post(
			custody.Burn(user, custody.LPAsset(key), lp),
			custody.Transfer(vault, user, custody.ShareAsset(key), w.TokenAmount),
			custody.Transfer(vault, user, custody.Native, w.SolAmount),
		)

		res = LiquidityChange{
			Owner: owner, Ticker: key.String(), LPTokens: lp, TokenAmount: w.TokenAmount,
			SolAmount: w.SolAmount, FeesEarned: w.FeesEarned, Pool: p, Position: np,
		}
		return []events.Event{events.New(events.LiquidityRemoved, key.MarketID, key.String(), res, now)}, nil
	})
	if err != nil {
		return LiquidityChange{}, err
	}

	slog.Info("liquidity removed", "owner", owner, "ticker", res.Ticker,
		"lp_burned", lp, "token_amount", res.TokenAmount, "sol_amount", res.SolAmount)
	return res, nil
}

// Swap trades amountIn against the pool. The protocol fee is withheld from
// the input leg and sent to the protocol account.
func (e *Engine) Swap(ctx context.Context, trader string, key outcome.Key, amountIn uint64, dir model.SwapDirection, minOut uint64) (SwapReceipt, error) {
	if !dir.Valid() {
		return SwapReceipt{}, fmt.Errorf("%w: unknown swap direction %q", errs.ErrInvalidConfiguration, dir)
	}
	var res SwapReceipt
	err := e.mutate(ctx, "swap", func(now int64, b *store.Batch) ([]events.Event, error) {
		if _, err := e.openMarket(ctx, key); err != nil {
			return nil, err
		}
		p, err := e.pool(ctx, key)
		if err != nil {
			return nil, err
		}
		p, r, err := amm.Swap(p, amountIn, dir, minOut, now)
		if err != nil {
			return nil, err
		}

		bal, err := e.balance(ctx, trader, key)
		if err != nil {
			return nil, err
		}
		user, vault := custody.User(trader), custody.Pool(key)
		share := custody.ShareAsset(key)
		credited := amountIn - r.ProtocolFee

		switch dir {
		case model.SolToToken:
			if err := e.checkLimit(ctx, trader, key, r.AmountOut); err != nil {
				return nil, err
			}
			price, err := fixed.MulDiv(amountIn, fixed.Scale, r.AmountOut)
			if err != nil {
				return nil, err
			}
			if bal, err = ledger.Buy(bal, r.AmountOut, price, now); err != nil {
				return nil, err
			}
			b.Post(
				custody.Transfer(user, vault, custody.Native, credited),
				custody.Transfer(user, custody.Protocol, custody.Native, r.ProtocolFee),
				custody.Transfer(vault, user, share, r.AmountOut),
			)
		case model.TokenToSol:
			price, err := fixed.MulDiv(r.AmountOut, fixed.Scale, amountIn)
			if err != nil {
				return nil, err
			}
			if bal, _, err = ledger.Sell(bal, amountIn, price, now); err != nil {
				return nil, err
			}
			b.Post(
				custody.Transfer(user, vault, share, credited),
				custody.Transfer(user, custody.Protocol, share, r.ProtocolFee),
				custody.Transfer(vault, user, custody.Native, r.AmountOut),
			)
		}

		st, err := e.share(ctx, key)
		if err != nil {
			return nil, err
		}
		volume := amountIn
		if dir == model.TokenToSol {
			volume = r.AmountOut
		}
		if r.PriceAfter > 0 {
			st = ledger.UpdatePriceStats(st, r.PriceAfter, now)
		}
		st = ledger.AddVolume(st, volume)

		rec := newSwapRecord(key, trader, dir, amountIn, r, now)
		b.PutPool(p)
		b.PutShare(st)
		b.PutBalance(bal)
		b.AddSwap(rec)

		res = SwapReceipt{Swap: rec, Pool: p, Position: bal}
		return []events.Event{events.New(events.SwapExecuted, key.MarketID, key.String(), rec, now)}, nil
	})
	if err != nil {
		return SwapReceipt{}, err
	}

	metrics.SwapsTotal.WithLabelValues(string(dir)).Inc()
	volume := res.Swap.AmountIn
	if dir == model.TokenToSol {
		volume = res.Swap.AmountOut
	}
	metrics.MarketVolume.WithLabelValues(key.MarketID, "amm").Add(float64(volume))
	slog.Info("swap executed", "trader", trader, "ticker", key.String(), "direction", dir,
		"amount_in", amountIn, "amount_out", res.Swap.AmountOut, "price_after", res.Swap.PriceAfter)
	return res, nil
}

func newSwapRecord(key outcome.Key, trader string, dir model.SwapDirection, amountIn uint64, r amm.SwapResult, now int64) model.Swap {
	return model.Swap{
		ID:          uuid.NewString(),
		Outcome:     key,
		Trader:      trader,
		Direction:   dir,
		AmountIn:    amountIn,
		AmountOut:   r.AmountOut,
		FeeAmount:   r.FeeAmount,
		ProtocolFee: r.ProtocolFee,
		PriceAfter:  r.PriceAfter,
		ExecutedAt:  now,
	}
}

// Quote previews a swap: the output, its price impact and the current
// pool price.
func (e *Engine) Quote(ctx context.Context, key outcome.Key, amountIn uint64, dir model.SwapDirection) (QuoteResult, error) {
	if !dir.Valid() {
		return QuoteResult{}, fmt.Errorf("%w: unknown swap direction %q", errs.ErrInvalidConfiguration, dir)
	}
	p, err := e.pool(ctx, key)
	if err != nil {
		return QuoteResult{}, err
	}
	out, err := amm.Quote(p, amountIn, dir)
	if err != nil {
		return QuoteResult{}, err
	}
	impact, err := amm.PriceImpact(p, amountIn, dir)
	if err != nil {
		return QuoteResult{}, err
	}
	price, err := amm.Price(p)
	if err != nil {
		return QuoteResult{}, err
	}
	return QuoteResult{AmountOut: out, PriceImpactBps: impact, Price: price}, nil
}
