// Package lifecycle gates trading operations on a market's resolution state
// and supplies the clock the engine reads time from.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/model"
	"github.com/atmx/outcome-engine/internal/outcome"
)

// Clock returns the current time in unix seconds.
type Clock interface {
	Now() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }

// FixedClock always returns the same instant. Tests advance it by
// assignment.
type FixedClock struct {
	T int64
}

func (c *FixedClock) Now() int64 { return c.T }

// Advance moves the clock forward by d seconds.
func (c *FixedClock) Advance(d int64) { c.T += d }

// NewMarket validates and returns an unresolved market.
func NewMarket(id string, outcomeCount uint8, now int64) (model.Market, error) {
	if !outcome.ValidMarketID(id) {
		return model.Market{}, fmt.Errorf("%w: %w: %q", errs.ErrInvalidConfiguration, outcome.ErrInvalidMarketID, id)
	}
	if outcomeCount == 0 || outcomeCount > outcome.MaxOutcomes {
		return model.Market{}, fmt.Errorf("%w: outcome_count %d not in 1..%d",
			errs.ErrTooManyOutcomes, outcomeCount, outcome.MaxOutcomes)
	}
	return model.Market{ID: id, OutcomeCount: outcomeCount, CreatedAt: now}, nil
}

// Resolve marks m resolved with the given winning outcome.
func Resolve(m model.Market, winning uint8, now int64) (model.Market, error) {
	if m.Resolved {
		return m, fmt.Errorf("%w: market %s", errs.ErrAlreadyResolved, m.ID)
	}
	if err := CheckOutcome(m, winning); err != nil {
		return m, err
	}
	w := winning
	m.Resolved = true
	m.WinningOutcome = &w
	m.ResolvedAt = now
	return m, nil
}

// CheckOpen fails once the market has resolved.
func CheckOpen(m model.Market) error {
	if m.Resolved {
		return fmt.Errorf("%w: market %s is closed to trading", errs.ErrAlreadyResolved, m.ID)
	}
	return nil
}

// CheckOutcome fails unless index is one of m's outcomes.
func CheckOutcome(m model.Market, index uint8) error {
	if index >= m.OutcomeCount {
		return fmt.Errorf("%w: market %s has %d outcomes, got index %d",
			errs.ErrInvalidOutcome, m.ID, m.OutcomeCount, index)
	}
	return nil
}

// CheckRedeemable fails unless m is resolved with index as the winner.
func CheckRedeemable(m model.Market, index uint8) error {
	if err := CheckOutcome(m, index); err != nil {
		return err
	}
	if !m.Resolved || m.WinningOutcome == nil {
		return fmt.Errorf("%w: market %s", errs.ErrNotResolved, m.ID)
	}
	if *m.WinningOutcome != index {
		return fmt.Errorf("%w: outcome %d of market %s", errs.ErrNotWinner, index, m.ID)
	}
	return nil
}
