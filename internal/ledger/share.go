package ledger

import (
	"fmt"

	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/fixed"
	"github.com/atmx/outcome-engine/internal/model"
	"github.com/atmx/outcome-engine/internal/outcome"
)

// StatsWindow is the length of the rolling statistics window in seconds.
// Windows reset lazily: the first event more than StatsWindow after the
// previous one starts a new window.
const StatsWindow int64 = 86_400

// Bounds on an outcome's opening price (0.01 to 0.99 native units).
const (
	MinInitialPrice uint64 = 10_000_000
	MaxInitialPrice uint64 = 990_000_000
)

// NewShare opens an outcome share at initialPrice.
func NewShare(key outcome.Key, initialPrice uint64, now int64) (model.OutcomeShare, error) {
	if initialPrice < MinInitialPrice || initialPrice > MaxInitialPrice {
		return model.OutcomeShare{}, fmt.Errorf("%w: initial price %d outside [%d, %d]",
			errs.ErrInvalidConfiguration, initialPrice, MinInitialPrice, MaxInitialPrice)
	}
	return model.OutcomeShare{
		Outcome:      key,
		CurrentPrice: initialPrice,
		LastTradeAt:  now,
		High24h:      initialPrice,
		Low24h:       initialPrice,
		Price24hAgo:  initialPrice,
		CreatedAt:    now,
	}, nil
}

// UpdatePriceStats records a trade at price. The window reset compares now
// against the previous trade time.
func UpdatePriceStats(s model.OutcomeShare, price uint64, now int64) model.OutcomeShare {
	if now-s.LastTradeAt > StatsWindow {
		s.Volume24h = 0
		s.High24h = price
		s.Low24h = price
		s.Price24hAgo = s.CurrentPrice
		if s.Price24hAgo == 0 {
			s.Price24hAgo = price
		}
	}
	if price > s.High24h {
		s.High24h = price
	}
	if s.Low24h == 0 || price < s.Low24h {
		s.Low24h = price
	}
	s.CurrentPrice = price
	s.LastTradeAt = now
	return s
}

// AddVolume adds native volume to the window and counts one trade.
func AddVolume(s model.OutcomeShare, volume uint64) model.OutcomeShare {
	s.Volume24h = fixed.SatAdd(s.Volume24h, volume)
	s.TradeCount = fixed.SatAdd(s.TradeCount, 1)
	return s
}

// Mint increases total supply.
func Mint(s model.OutcomeShare, amount uint64) (model.OutcomeShare, error) {
	supply, err := fixed.Add(s.TotalSupply, amount)
	if err != nil {
		return s, err
	}
	s.TotalSupply = supply
	return s, nil
}

// Burn decreases total supply.
func Burn(s model.OutcomeShare, amount uint64) (model.OutcomeShare, error) {
	if amount > s.TotalSupply {
		return s, fmt.Errorf("%w: burning %d of supply %d", errs.ErrInsufficientShares, amount, s.TotalSupply)
	}
	s.TotalSupply -= amount
	return s, nil
}

// PriceChange24h returns the price move over the window in basis points.
func PriceChange24h(s model.OutcomeShare) int64 {
	c, err := fixed.ChangeBps(s.CurrentPrice, s.Price24hAgo)
	if err != nil {
		return 0
	}
	return c
}
