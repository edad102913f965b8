// Package trade runs the trading operations of the outcome engine and
// exposes them over HTTP.
//
// Every mutation follows the same shape: load the records it touches,
// compute the new records on copies with the pure amm, orderbook and
// ledger functions, then commit records and custody postings as one
// store.Batch. Events are published only after a successful commit.
package trade

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/events"
	"github.com/atmx/outcome-engine/internal/lifecycle"
	"github.com/atmx/outcome-engine/internal/limits"
	"github.com/atmx/outcome-engine/internal/metrics"
	"github.com/atmx/outcome-engine/internal/model"
	"github.com/atmx/outcome-engine/internal/orderbook"
	"github.com/atmx/outcome-engine/internal/outcome"
	"github.com/atmx/outcome-engine/internal/store"
)

// Engine executes trading operations. A single mutex serializes every
// mutation, so each operation sees the state left by the previous one.
//
// Mutations read from the primary store behind any read cache. Commits
// and read-only views go through the store the engine was created with.
type Engine struct {
	store   store.Store
	front   store.Store
	clock   lifecycle.Clock
	limiter *limits.PositionLimiter
	pub     events.Publisher
	mu      sync.Mutex
}

// NewEngine creates an engine. limiter and pub may be nil.
func NewEngine(st store.Store, clock lifecycle.Clock, limiter *limits.PositionLimiter, pub events.Publisher) *Engine {
	if clock == nil {
		clock = lifecycle.SystemClock{}
	}
	return &Engine{
		store:   store.Unwrap(st),
		front:   st,
		clock:   clock,
		limiter: limiter,
		pub:     pub,
	}
}

// Store exposes the engine's store for read-only queries.
func (e *Engine) Store() store.Store { return e.front }

// mutation is the body of one operation. It reads through the store,
// fills b and returns the events to publish once b is committed.
type mutation func(now int64, b *store.Batch) ([]events.Event, error)

func (e *Engine) mutate(ctx context.Context, op string, fn mutation) error {
	start := time.Now()

	evs, err := e.apply(ctx, fn)
	if err != nil {
		metrics.Observe(op, errs.Kind(err), start)
		slog.Debug("operation rejected", "op", op, "kind", errs.Kind(err), "error", err)
		return err
	}
	metrics.Observe(op, "ok", start)

	for _, ev := range evs {
		e.publish(ctx, ev)
	}
	return nil
}

func (e *Engine) apply(ctx context.Context, fn mutation) ([]events.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var b store.Batch
	evs, err := fn(e.clock.Now(), &b)
	if err != nil {
		return nil, err
	}
	if err := e.front.Commit(ctx, &b); err != nil {
		return nil, err
	}
	return evs, nil
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if e.pub == nil {
		return
	}
	if err := e.pub.Publish(ctx, ev); err != nil {
		metrics.EventPublishFailures.Inc()
		slog.Warn("event publish failed", "type", ev.Type, "ticker", ev.Ticker, "error", err)
	}
}

// --- Loading helpers ---

// market loads a market and checks that key's index is one of its outcomes.
func (e *Engine) market(ctx context.Context, key outcome.Key) (model.Market, error) {
	m, err := e.store.GetMarket(ctx, key.MarketID)
	if err != nil {
		return model.Market{}, err
	}
	if err := lifecycle.CheckOutcome(*m, key.Index); err != nil {
		return model.Market{}, err
	}
	return *m, nil
}

// openMarket is market plus the open-for-trading gate.
func (e *Engine) openMarket(ctx context.Context, key outcome.Key) (model.Market, error) {
	m, err := e.market(ctx, key)
	if err != nil {
		return m, err
	}
	return m, lifecycle.CheckOpen(m)
}

func (e *Engine) share(ctx context.Context, key outcome.Key) (model.OutcomeShare, error) {
	s, err := e.store.GetShare(ctx, key)
	if err != nil {
		return model.OutcomeShare{}, err
	}
	return *s, nil
}

func (e *Engine) pool(ctx context.Context, key outcome.Key) (model.AMMPool, error) {
	p, err := e.store.GetPool(ctx, key)
	if err != nil {
		return model.AMMPool{}, err
	}
	return *p, nil
}

// balance returns the owner's ledger record, or an empty one.
func (e *Engine) balance(ctx context.Context, owner string, key outcome.Key) (model.ShareBalance, error) {
	b, err := e.store.GetBalance(ctx, owner, key)
	if errors.Is(err, errs.ErrNotFound) {
		return model.ShareBalance{Owner: owner, Outcome: key}, nil
	}
	if err != nil {
		return model.ShareBalance{}, err
	}
	return *b, nil
}

// position returns the owner's liquidity position, or an empty one.
func (e *Engine) position(ctx context.Context, owner string, key outcome.Key, now int64) (model.LiquidityPosition, error) {
	p, err := e.store.GetPosition(ctx, owner, key)
	if errors.Is(err, errs.ErrNotFound) {
		return model.LiquidityPosition{Owner: owner, Outcome: key, CreatedAt: now}, nil
	}
	if err != nil {
		return model.LiquidityPosition{}, err
	}
	return *p, nil
}

// book returns the outcome's order book, or a new one.
func (e *Engine) book(ctx context.Context, key outcome.Key, now int64) (model.OrderBook, error) {
	b, err := e.store.GetBook(ctx, key)
	if errors.Is(err, errs.ErrNotFound) {
		return orderbook.NewBook(key, now), nil
	}
	if err != nil {
		return model.OrderBook{}, err
	}
	return *b, nil
}

func (e *Engine) order(ctx context.Context, key outcome.Key, id uint64) (model.Order, error) {
	o, err := e.store.GetOrder(ctx, key, id)
	if err != nil {
		return model.Order{}, err
	}
	return *o, nil
}

// checkLimit applies the position limiter to an acquisition of delta
// shares of key by owner.
func (e *Engine) checkLimit(ctx context.Context, owner string, key outcome.Key, delta uint64) error {
	if !e.limiter.Enabled() {
		return nil
	}
	held, err := e.store.ListBalances(ctx, owner)
	if err != nil {
		return err
	}
	existing := make(map[outcome.Key]uint64, len(held))
	for _, b := range held {
		existing[b.Outcome] = b.Balance
	}
	err = e.limiter.CheckLimit(key, delta, existing)
	switch {
	case errors.Is(err, limits.ErrPerOutcomeLimitExceeded):
		metrics.PositionLimitRejections.WithLabelValues("outcome").Inc()
	case errors.Is(err, limits.ErrPerMarketLimitExceeded):
		metrics.PositionLimitRejections.WithLabelValues("market").Inc()
	}
	return err
}
