// Package store defines the persistence interface for the trading engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"fmt"

	"github.com/atmx/outcome-engine/internal/custody"
	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/model"
	"github.com/atmx/outcome-engine/internal/outcome"
)

// Store is the persistence interface. Every mutation goes through Commit so
// that records and custody balances change together or not at all.
type Store interface {
	custody.Reader

	// --- Markets ---

	// GetMarket retrieves a market by its ID.
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// ListMarkets returns all markets, newest first.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// --- Shares ---

	// GetShare retrieves an outcome's share record.
	GetShare(ctx context.Context, key outcome.Key) (*model.OutcomeShare, error)

	// ListShares returns the share records of a market's outcomes.
	ListShares(ctx context.Context, marketID string) ([]model.OutcomeShare, error)

	// GetBalance retrieves an owner's position in one outcome.
	GetBalance(ctx context.Context, owner string, key outcome.Key) (*model.ShareBalance, error)

	// ListBalances returns every position an owner holds.
	ListBalances(ctx context.Context, owner string) ([]model.ShareBalance, error)

	// --- Pools ---

	// GetPool retrieves an outcome's AMM pool.
	GetPool(ctx context.Context, key outcome.Key) (*model.AMMPool, error)

	// GetPosition retrieves an owner's liquidity position in a pool.
	GetPosition(ctx context.Context, owner string, key outcome.Key) (*model.LiquidityPosition, error)

	// ListPositions returns every liquidity position an owner holds.
	ListPositions(ctx context.Context, owner string) ([]model.LiquidityPosition, error)

	// ListSwaps returns a pool's swaps, newest first.
	ListSwaps(ctx context.Context, key outcome.Key, limit, offset int) ([]model.Swap, error)

	// --- Order books ---

	// GetBook retrieves an outcome's order book aggregates.
	GetBook(ctx context.Context, key outcome.Key) (*model.OrderBook, error)

	// GetOrder retrieves one order.
	GetOrder(ctx context.Context, key outcome.Key, id uint64) (*model.Order, error)

	// ListActiveOrders returns an outcome's open and partially filled orders.
	ListActiveOrders(ctx context.Context, key outcome.Key) ([]model.Order, error)

	// ListOrdersByOwner returns every order an owner placed.
	ListOrdersByOwner(ctx context.Context, owner string) ([]model.Order, error)

	// ListTrades returns an outcome's trades, newest first.
	ListTrades(ctx context.Context, key outcome.Key, limit, offset int) ([]model.Trade, error)

	// --- Custody ---

	// Balances returns every non-zero asset balance of an account.
	Balances(ctx context.Context, account string) (map[custody.Asset]uint64, error)

	// Commit applies a batch atomically.
	Commit(ctx context.Context, b *Batch) error
}

// Batch collects the records and postings produced by one operation.
// Records are upserted by key; trades and swaps are appended.
type Batch struct {
	Markets   []model.Market
	Shares    []model.OutcomeShare
	Balances  []model.ShareBalance
	Pools     []model.AMMPool
	Positions []model.LiquidityPosition
	Books     []model.OrderBook
	Orders    []model.Order
	Trades    []model.Trade
	Swaps     []model.Swap
	Postings  []custody.Posting
}

func (b *Batch) PutMarket(m model.Market) { b.Markets = append(b.Markets, m) }
func (b *Batch) PutShare(s model.OutcomeShare) { b.Shares = append(b.Shares, s) }
func (b *Batch) PutBalance(s model.ShareBalance) { b.Balances = append(b.Balances, s) }
func (b *Batch) PutPool(p model.AMMPool) { b.Pools = append(b.Pools, p) }
func (b *Batch) PutPosition(p model.LiquidityPosition) { b.Positions = append(b.Positions, p) }
func (b *Batch) PutBook(o model.OrderBook) { b.Books = append(b.Books, o) }
func (b *Batch) PutOrder(o model.Order) { b.Orders = append(b.Orders, o) }
func (b *Batch) AddTrade(t model.Trade) { b.Trades = append(b.Trades, t) }
func (b *Batch) AddSwap(s model.Swap) { b.Swaps = append(b.Swaps, s) }
func (b *Batch) Post(ps ...custody.Posting) { b.Postings = append(b.Postings, ps...) }

// Validate checks every posting before any storage work begins.
func (b *Batch) Validate() error {
	for _, p := range b.Postings {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", errs.ErrNotFound, kind, id)
}

// page applies limit/offset to an already ordered slice.
func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
