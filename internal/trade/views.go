package trade

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/atmx/outcome-engine/internal/amm"
	"github.com/atmx/outcome-engine/internal/custody"
	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/fixed"
	"github.com/atmx/outcome-engine/internal/ledger"
	"github.com/atmx/outcome-engine/internal/model"
	"github.com/atmx/outcome-engine/internal/orderbook"
	"github.com/atmx/outcome-engine/internal/outcome"
)

// --- Read models ---
//
// Raw amounts stay integers; the *SOL fields render lamports and 1e9-scaled
// prices as decimals for display.

// OutcomeView is an outcome share with derived statistics.
type OutcomeView struct {
	model.OutcomeShare
	PriceChange24hBps int64           `json:"price_change_24h_bps"`
	PriceSOL          decimal.Decimal `json:"price_sol"`
}

// PoolView is a pool with its spot price.
type PoolView struct {
	model.AMMPool
	Price             uint64          `json:"price"`
	PriceSOL          decimal.Decimal `json:"price_sol"`
	PriceChange24hBps int64           `json:"price_change_24h_bps"`
}

// BookView is an order book with a depth snapshot.
type BookView struct {
	model.OrderBook
	PriceChange24hBps int64             `json:"price_change_24h_bps"`
	Bids              []orderbook.Level `json:"bids"`
	Asks              []orderbook.Level `json:"asks"`
}

// Holding is a share position marked at the outcome's current price.
type Holding struct {
	model.ShareBalance
	MarkPrice        uint64          `json:"mark_price"`
	UnrealizedPnL    int64           `json:"unrealized_pnl"`
	TotalPnL         int64           `json:"total_pnl"`
	UnrealizedPnLSOL decimal.Decimal `json:"unrealized_pnl_sol"`
	TotalPnLSOL      decimal.Decimal `json:"total_pnl_sol"`
}

// LiquidityHolding is a liquidity position valued at the pool price.
type LiquidityHolding struct {
	model.LiquidityPosition
	Value           uint64          `json:"value"`
	ValueSOL        decimal.Decimal `json:"value_sol"`
	ImpermanentLoss int64           `json:"impermanent_loss"`
}

// Portfolio is everything one owner holds.
type Portfolio struct {
	Owner            string                   `json:"owner"`
	NativeBalance    uint64                   `json:"native_balance"`
	NativeBalanceSOL decimal.Decimal          `json:"native_balance_sol"`
	Assets           map[custody.Asset]uint64 `json:"assets"`
	Holdings         []Holding                `json:"holdings"`
	Liquidity        []LiquidityHolding       `json:"liquidity"`
	OpenOrders       []model.Order            `json:"open_orders"`
	TotalPnLSOL      decimal.Decimal          `json:"total_pnl_sol"`
}

// Outcome returns an outcome share with its 24h price change.
func (e *Engine) Outcome(ctx context.Context, key outcome.Key) (OutcomeView, error) {
	s, err := e.share(ctx, key)
	if err != nil {
		return OutcomeView{}, err
	}
	return OutcomeView{
		OutcomeShare:      s,
		PriceChange24hBps: ledger.PriceChange24h(s),
		PriceSOL:          fixed.ToDecimal(s.CurrentPrice),
	}, nil
}

// Pool returns a pool with its spot price.
func (e *Engine) Pool(ctx context.Context, key outcome.Key) (PoolView, error) {
	p, err := e.pool(ctx, key)
	if err != nil {
		return PoolView{}, err
	}
	price, err := amm.Price(p)
	if err != nil {
		return PoolView{}, err
	}
	return PoolView{
		AMMPool:           p,
		Price:             price,
		PriceSOL:          fixed.ToDecimal(price),
		PriceChange24hBps: amm.PriceChange24h(p),
	}, nil
}

// OrderBook returns the book's aggregates and up to depth price levels per
// side. An outcome with no orders yet reports an empty book.
func (e *Engine) OrderBook(ctx context.Context, key outcome.Key, depth int) (BookView, error) {
	if _, err := e.share(ctx, key); err != nil {
		return BookView{}, err
	}
	b, err := e.front.GetBook(ctx, key)
	if errors.Is(err, errs.ErrNotFound) {
		return BookView{OrderBook: orderbook.NewBook(key, 0), Bids: []orderbook.Level{}, Asks: []orderbook.Level{}}, nil
	}
	if err != nil {
		return BookView{}, err
	}
	resting, err := e.front.ListActiveOrders(ctx, key)
	if err != nil {
		return BookView{}, err
	}
	bids, asks := orderbook.NewDepth(resting).Snapshot(depth)
	return BookView{
		OrderBook:         *b,
		PriceChange24hBps: orderbook.PriceChange24h(*b),
		Bids:              bids,
		Asks:              asks,
	}, nil
}

// Portfolio collects owner's balances, positions and open orders.
func (e *Engine) Portfolio(ctx context.Context, owner string) (Portfolio, error) {
	assets, err := e.front.Balances(ctx, custody.User(owner))
	if err != nil {
		return Portfolio{}, err
	}
	native := assets[custody.Native]
	pf := Portfolio{
		Owner:            owner,
		NativeBalance:    native,
		NativeBalanceSOL: fixed.ToDecimal(native),
		Assets:           assets,
		Holdings:         []Holding{},
		Liquidity:        []LiquidityHolding{},
		OpenOrders:       []model.Order{},
		TotalPnLSOL:      decimal.Zero,
	}

	balances, err := e.front.ListBalances(ctx, owner)
	if err != nil {
		return Portfolio{}, err
	}
	for _, b := range balances {
		h, err := e.holding(ctx, b)
		if err != nil {
			return Portfolio{}, err
		}
		pf.Holdings = append(pf.Holdings, h)
		pf.TotalPnLSOL = pf.TotalPnLSOL.Add(h.TotalPnLSOL)
	}

	positions, err := e.front.ListPositions(ctx, owner)
	if err != nil {
		return Portfolio{}, err
	}
	for _, pos := range positions {
		p, err := e.pool(ctx, pos.Outcome)
		if err != nil {
			return Portfolio{}, err
		}
		value, err := amm.PositionValue(p, pos)
		if err != nil {
			return Portfolio{}, err
		}
		il, err := amm.ImpermanentLoss(p, pos)
		if err != nil {
			return Portfolio{}, err
		}
		pf.Liquidity = append(pf.Liquidity, LiquidityHolding{
			LiquidityPosition: pos,
			Value:             value,
			ValueSOL:          fixed.ToDecimal(value),
			ImpermanentLoss:   il,
		})
	}

	orders, err := e.front.ListOrdersByOwner(ctx, owner)
	if err != nil {
		return Portfolio{}, err
	}
	for _, o := range orders {
		if o.IsActive() {
			pf.OpenOrders = append(pf.OpenOrders, o)
		}
	}
	return pf, nil
}

func (e *Engine) holding(ctx context.Context, b model.ShareBalance) (Holding, error) {
	s, err := e.share(ctx, b.Outcome)
	if err != nil {
		return Holding{}, err
	}
	unrealized, err := ledger.UnrealizedPnL(b, s.CurrentPrice)
	if err != nil {
		return Holding{}, err
	}
	total, err := ledger.TotalPnL(b, s.CurrentPrice)
	if err != nil {
		return Holding{}, err
	}
	return Holding{
		ShareBalance:     b,
		MarkPrice:        s.CurrentPrice,
		UnrealizedPnL:    unrealized,
		TotalPnL:         total,
		UnrealizedPnLSOL: fixed.SignedToDecimal(unrealized),
		TotalPnLSOL:      fixed.SignedToDecimal(total),
	}, nil
}
