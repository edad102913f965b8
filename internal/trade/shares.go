package trade

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atmx/outcome-engine/internal/custody"
	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/events"
	"github.com/atmx/outcome-engine/internal/fixed"
	"github.com/atmx/outcome-engine/internal/ledger"
	"github.com/atmx/outcome-engine/internal/lifecycle"
	"github.com/atmx/outcome-engine/internal/metrics"
	"github.com/atmx/outcome-engine/internal/model"
	"github.com/atmx/outcome-engine/internal/outcome"
	"github.com/atmx/outcome-engine/internal/store"
)

// ShareTrade is the result of a direct buy, sell or redemption.
type ShareTrade struct {
	Owner    string             `json:"owner"`
	Ticker   string             `json:"ticker"`
	Amount   uint64             `json:"amount"`
	Price    uint64             `json:"price"`
	Value    uint64             `json:"value"` // cost, proceeds or payout in lamports
	Realized int64              `json:"realized_pnl_delta"`
	Position model.ShareBalance `json:"position"`
}

// BuyShares mints amount shares to owner at the outcome's current price,
// paid into the market escrow.
func (e *Engine) BuyShares(ctx context.Context, owner string, key outcome.Key, amount uint64) (ShareTrade, error) {
	var res ShareTrade
	err := e.mutate(ctx, "buy_shares", func(now int64, b *store.Batch) ([]events.Event, error) {
		if _, err := e.openMarket(ctx, key); err != nil {
			return nil, err
		}
		s, err := e.share(ctx, key)
		if err != nil {
			return nil, err
		}
		price := s.CurrentPrice
		cost, err := fixed.MulDiv(amount, price, fixed.Scale)
		if err != nil {
			return nil, err
		}
		if cost == 0 {
			return nil, fmt.Errorf("%w: %d shares at %d costs nothing", errs.ErrInvalidAmount, amount, price)
		}
		if err := e.checkLimit(ctx, owner, key, amount); err != nil {
			return nil, err
		}

		bal, err := e.balance(ctx, owner, key)
		if err != nil {
			return nil, err
		}
		bal, err = ledger.Buy(bal, amount, price, now)
		if err != nil {
			return nil, err
		}
		s, err = ledger.Mint(s, amount)
		if err != nil {
			return nil, err
		}
		s = ledger.AddVolume(ledger.UpdatePriceStats(s, price, now), cost)

		b.PutShare(s)
		b.PutBalance(bal)
		b.Post(
			custody.Transfer(custody.User(owner), custody.MarketEscrow(key.MarketID), custody.Native, cost),
			custody.Mint(custody.User(owner), custody.ShareAsset(key), amount),
		)

		res = ShareTrade{Owner: owner, Ticker: key.String(), Amount: amount, Price: price, Value: cost, Position: bal}
		return []events.Event{events.New(events.ShareBought, key.MarketID, key.String(), res, now)}, nil
	})
	if err != nil {
		return ShareTrade{}, err
	}

	metrics.MarketVolume.WithLabelValues(key.MarketID, "direct").Add(float64(res.Value))
	slog.Info("shares bought", "owner", owner, "ticker", res.Ticker, "amount", amount, "cost", res.Value)
	return res, nil
}

// SellShares burns amount of owner's shares and pays the current price
// out of the market escrow.
func (e *Engine) SellShares(ctx context.Context, owner string, key outcome.Key, amount uint64) (ShareTrade, error) {
	var res ShareTrade
	err := e.mutate(ctx, "sell_shares", func(now int64, b *store.Batch) ([]events.Event, error) {
		if _, err := e.openMarket(ctx, key); err != nil {
			return nil, err
		}
		s, err := e.share(ctx, key)
		if err != nil {
			return nil, err
		}
		price := s.CurrentPrice
		proceeds, err := fixed.MulDiv(amount, price, fixed.Scale)
		if err != nil {
			return nil, err
		}
		if proceeds == 0 {
			return nil, fmt.Errorf("%w: %d shares at %d pays nothing", errs.ErrInvalidAmount, amount, price)
		}

		bal, err := e.balance(ctx, owner, key)
		if err != nil {
			return nil, err
		}
		bal, delta, err := ledger.Sell(bal, amount, price, now)
		if err != nil {
			return nil, err
		}
		s, err = ledger.Burn(s, amount)
		if err != nil {
			return nil, err
		}
		s = ledger.AddVolume(ledger.UpdatePriceStats(s, price, now), proceeds)

		b.PutShare(s)
		b.PutBalance(bal)
		b.Post(
			custody.Burn(custody.User(owner), custody.ShareAsset(key), amount),
			custody.Transfer(custody.MarketEscrow(key.MarketID), custody.User(owner), custody.Native, proceeds),
		)

		res = ShareTrade{
			Owner: owner, Ticker: key.String(), Amount: amount, Price: price,
			Value: proceeds, Realized: delta, Position: bal,
		}
		return []events.Event{events.New(events.ShareSold, key.MarketID, key.String(), res, now)}, nil
	})
	if err != nil {
		return ShareTrade{}, err
	}

	metrics.MarketVolume.WithLabelValues(key.MarketID, "direct").Add(float64(res.Value))
	slog.Info("shares sold", "owner", owner, "ticker", res.Ticker, "amount", amount, "proceeds", res.Value)
	return res, nil
}

// RedeemShares pays one native unit per winning share once the market has
// resolved.
func (e *Engine) RedeemShares(ctx context.Context, owner string, key outcome.Key, amount uint64) (ShareTrade, error) {
	var res ShareTrade
	err := e.mutate(ctx, "redeem_shares", func(now int64, b *store.Batch) ([]events.Event, error) {
		m, err := e.market(ctx, key)
		if err != nil {
			return nil, err
		}
		if err := lifecycle.CheckRedeemable(m, key.Index); err != nil {
			return nil, err
		}
		s, err := e.share(ctx, key)
		if err != nil {
			return nil, err
		}
		bal, err := e.balance(ctx, owner, key)
		if err != nil {
			return nil, err
		}
		bal, payout, delta, err := ledger.Redeem(bal, amount, now)
		if err != nil {
			return nil, err
		}
		s, err = ledger.Burn(s, amount)
		if err != nil {
			return nil, err
		}

		b.PutShare(s)
		b.PutBalance(bal)
		b.Post(
			custody.Burn(custody.User(owner), custody.ShareAsset(key), amount),
			custody.Transfer(custody.MarketEscrow(key.MarketID), custody.User(owner), custody.Native, payout),
		)

		res = ShareTrade{
			Owner: owner, Ticker: key.String(), Amount: amount, Price: ledger.RedemptionPrice,
			Value: payout, Realized: delta, Position: bal,
		}
		return []events.Event{events.New(events.SharesRedeemed, key.MarketID, key.String(), res, now)}, nil
	})
	if err != nil {
		return ShareTrade{}, err
	}

	slog.Info("shares redeemed", "owner", owner, "ticker", res.Ticker, "amount", amount, "payout", res.Value)
	return res, nil
}
