// Package limits enforces caps on the number of outcome shares a single
// owner may hold.
//
// Outcomes of the same market are correlated: their payoffs are mutually
// exclusive, so exposure is also capped across all outcomes of a market.
package limits

import (
	"fmt"

	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/fixed"
	"github.com/atmx/outcome-engine/internal/outcome"
)

var (
	// ErrPerOutcomeLimitExceeded is returned when an acquisition would push
	// a single outcome's balance beyond the per-outcome maximum.
	ErrPerOutcomeLimitExceeded = fmt.Errorf("%w: per-outcome position limit exceeded", errs.ErrInvalidAmount)

	// ErrPerMarketLimitExceeded is returned when an acquisition would push
	// the owner's holdings across one market beyond the per-market maximum.
	ErrPerMarketLimitExceeded = fmt.Errorf("%w: per-market position limit exceeded", errs.ErrInvalidAmount)
)

// PositionLimiter enforces position limits. A zero cap disables that check.
type PositionLimiter struct {
	// MaxPerOutcome is the maximum balance in any single outcome.
	MaxPerOutcome uint64

	// MaxPerMarket is the maximum combined balance across every outcome of
	// one market.
	MaxPerMarket uint64
}

// NewPositionLimiter creates a limiter with the given caps.
func NewPositionLimiter(maxPerOutcome, maxPerMarket uint64) *PositionLimiter {
	return &PositionLimiter{MaxPerOutcome: maxPerOutcome, MaxPerMarket: maxPerMarket}
}

// Enabled reports whether any cap is set.
func (l *PositionLimiter) Enabled() bool {
	return l != nil && (l.MaxPerOutcome > 0 || l.MaxPerMarket > 0)
}

// CheckLimit validates an acquisition of delta shares of target.
//
// existing maps each outcome the owner holds to its current balance; only
// outcomes of target's market are consulted.
func (l *PositionLimiter) CheckLimit(target outcome.Key, delta uint64, existing map[outcome.Key]uint64) error {
	if !l.Enabled() || delta == 0 {
		return nil
	}

	next := fixed.SatAdd(existing[target], delta)
	if l.MaxPerOutcome > 0 && next > l.MaxPerOutcome {
		return fmt.Errorf("%w: %s would hold %d, max %d", ErrPerOutcomeLimitExceeded, target, next, l.MaxPerOutcome)
	}

	if l.MaxPerMarket == 0 {
		return nil
	}
	total := next
	for k, bal := range existing {
		if k == target || k.MarketID != target.MarketID {
			continue
		}
		total = fixed.SatAdd(total, bal)
	}
	if total > l.MaxPerMarket {
		return fmt.Errorf("%w: market %s would hold %d, max %d", ErrPerMarketLimitExceeded, target.MarketID, total, l.MaxPerMarket)
	}
	return nil
}
