package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/atmx/outcome-engine/internal/custody"
	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/events"
	"github.com/atmx/outcome-engine/internal/ledger"
	"github.com/atmx/outcome-engine/internal/lifecycle"
	"github.com/atmx/outcome-engine/internal/metrics"
	"github.com/atmx/outcome-engine/internal/model"
	"github.com/atmx/outcome-engine/internal/outcome"
	"github.com/atmx/outcome-engine/internal/store"
)

// CreateMarket registers a market with outcomeCount outcomes. An empty id
// is replaced by a generated one.
func (e *Engine) CreateMarket(ctx context.Context, id string, outcomeCount uint8) (model.Market, error) {
	if id == "" {
		id = uuid.NewString()
	}
	var created model.Market
	err := e.mutate(ctx, "create_market", func(now int64, b *store.Batch) ([]events.Event, error) {
		if _, err := e.store.GetMarket(ctx, id); err == nil {
			return nil, fmt.Errorf("%w: market %s already exists", errs.ErrInvalidConfiguration, id)
		} else if !errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
		m, err := lifecycle.NewMarket(id, outcomeCount, now)
		if err != nil {
			return nil, err
		}
		b.PutMarket(m)
		created = m
		return []events.Event{events.New(events.MarketCreated, m.ID, "", m, now)}, nil
	})
	if err != nil {
		return model.Market{}, err
	}

	metrics.ActiveMarkets.Inc()
	slog.Info("market created", "id", created.ID, "outcomes", created.OutcomeCount)
	return created, nil
}

// ResolveMarket closes a market to trading and fixes its winner.
func (e *Engine) ResolveMarket(ctx context.Context, id string, winning uint8) (model.Market, error) {
	var resolved model.Market
	err := e.mutate(ctx, "resolve_market", func(now int64, b *store.Batch) ([]events.Event, error) {
		m, err := e.store.GetMarket(ctx, id)
		if err != nil {
			return nil, err
		}
		r, err := lifecycle.Resolve(*m, winning, now)
		if err != nil {
			return nil, err
		}
		b.PutMarket(r)
		resolved = r
		return []events.Event{events.New(events.MarketResolved, r.ID, "", r, now)}, nil
	})
	if err != nil {
		return model.Market{}, err
	}

	metrics.ActiveMarkets.Dec()
	slog.Info("market resolved", "id", resolved.ID, "winning_outcome", winning)
	return resolved, nil
}

// CreateOutcome opens the share of one outcome at initialPrice (1e9 scale).
func (e *Engine) CreateOutcome(ctx context.Context, key outcome.Key, initialPrice uint64) (model.OutcomeShare, error) {
	var created model.OutcomeShare
	err := e.mutate(ctx, "create_outcome", func(now int64, b *store.Batch) ([]events.Event, error) {
		if _, err := e.openMarket(ctx, key); err != nil {
			return nil, err
		}
		if _, err := e.store.GetShare(ctx, key); err == nil {
			return nil, fmt.Errorf("%w: outcome %s already exists", errs.ErrInvalidConfiguration, key)
		} else if !errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
		s, err := ledger.NewShare(key, initialPrice, now)
		if err != nil {
			return nil, err
		}
		b.PutShare(s)
		created = s
		return nil, nil
	})
	if err != nil {
		return model.OutcomeShare{}, err
	}

	slog.Info("outcome created", "ticker", key.String(), "initial_price", initialPrice)
	return created, nil
}

// Deposit credits amount lamports to owner's wallet and returns the new
// wallet balance.
func (e *Engine) Deposit(ctx context.Context, owner string, amount uint64) (uint64, error) {
	if owner == "" {
		return 0, fmt.Errorf("%w: owner is required", errs.ErrInvalidConfiguration)
	}
	if amount == 0 {
		return 0, fmt.Errorf("%w: deposit must be positive", errs.ErrInvalidAmount)
	}
	var balance uint64
	err := e.mutate(ctx, "deposit", func(_ int64, b *store.Batch) ([]events.Event, error) {
		have, err := e.store.Available(ctx, custody.User(owner), custody.Native)
		if err != nil {
			return nil, err
		}
		b.Post(custody.Mint(custody.User(owner), custody.Native, amount))
		// Commit rejects the mint if it would overflow.
		balance = have + amount
		return nil, nil
	})
	if err != nil {
		return 0, err
	}

	slog.Info("deposit", "owner", owner, "amount", amount)
	return balance, nil
}
