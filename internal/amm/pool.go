// Package amm implements a constant-product market maker between one
// outcome share and the native currency.
//
// Swap pricing applies the fee to the input:
//
//	in_net = amount_in * (10000 - fee_bps) / 10000
//	out    = reserve_out * in_net / (reserve_in + in_net)
//
// Functions are stateless over the pool record: they take it by value and
// return the updated record together with the result, so callers commit
// pool, position and balance changes as a single unit.
package amm

import (
	"fmt"

	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/fixed"
	"github.com/atmx/outcome-engine/internal/model"
	"github.com/atmx/outcome-engine/internal/outcome"
)

const (
	// MaxFeeBps caps the pool trading fee at 10%.
	MaxFeeBps uint64 = 1_000

	// MaxProtocolFeeBps caps the protocol's cut at 1%.
	MaxProtocolFeeBps uint64 = 100

	// MaxImpactBps is the ceiling reported by PriceImpact.
	MaxImpactBps uint64 = 10_000

	// StatsWindow is the rolling statistics window in seconds.
	StatsWindow int64 = 86_400
)

// NewPool validates the fee configuration and returns an empty pool.
func NewPool(key outcome.Key, feeBps, protocolFeeBps uint64, now int64) (model.AMMPool, error) {
	if feeBps > MaxFeeBps {
		return model.AMMPool{}, fmt.Errorf("%w: fee_bps %d exceeds %d", errs.ErrInvalidConfiguration, feeBps, MaxFeeBps)
	}
	if protocolFeeBps > MaxProtocolFeeBps {
		return model.AMMPool{}, fmt.Errorf("%w: protocol_fee_bps %d exceeds %d",
			errs.ErrInvalidConfiguration, protocolFeeBps, MaxProtocolFeeBps)
	}
	if protocolFeeBps > feeBps {
		return model.AMMPool{}, fmt.Errorf("%w: protocol_fee_bps %d exceeds fee_bps %d",
			errs.ErrInvalidConfiguration, protocolFeeBps, feeBps)
	}
	return model.AMMPool{
		Outcome:        key,
		FeeBps:         feeBps,
		ProtocolFeeBps: protocolFeeBps,
		LastSwapAt:     now,
		CreatedAt:      now,
	}, nil
}

// Price returns sol_reserve * 1e9 / token_reserve, or 0 for an empty pool.
func Price(p model.AMMPool) (uint64, error) {
	if p.TokenReserve == 0 {
		return 0, nil
	}
	return fixed.MulDiv(p.SolReserve, fixed.Scale, p.TokenReserve)
}

// PriceChange24h returns the move of the last swap price over the window
// in basis points.
func PriceChange24h(p model.AMMPool) int64 {
	c, err := fixed.ChangeBps(p.LastPrice, p.Price24hAgo)
	if err != nil {
		return 0
	}
	return c
}

func reserves(p model.AMMPool, dir model.SwapDirection) (in, out uint64, err error) {
	switch dir {
	case model.TokenToSol:
		return p.TokenReserve, p.SolReserve, nil
	case model.SolToToken:
		return p.SolReserve, p.TokenReserve, nil
	}
	return 0, 0, fmt.Errorf("%w: unknown swap direction %q", errs.ErrInvalidConfiguration, dir)
}

// amountOut evaluates the curve without rejecting degenerate outputs.
func amountOut(p model.AMMPool, amountIn uint64, dir model.SwapDirection) (out, reserveOut uint64, err error) {
	if amountIn == 0 {
		return 0, 0, fmt.Errorf("%w: amount_in must be positive", errs.ErrInvalidAmount)
	}
	reserveIn, reserveOut, err := reserves(p, dir)
	if err != nil {
		return 0, 0, err
	}
	if reserveIn == 0 || reserveOut == 0 {
		return 0, 0, fmt.Errorf("%w: pool has no reserves", errs.ErrInsufficientLiquidity)
	}
	inNet, err := fixed.MulDiv(amountIn, fixed.BpsDenominator-p.FeeBps, fixed.BpsDenominator)
	if err != nil {
		return 0, 0, err
	}
	denom, err := fixed.Add(reserveIn, inNet)
	if err != nil {
		return 0, 0, err
	}
	out, err = fixed.MulDiv(reserveOut, inNet, denom)
	if err != nil {
		return 0, 0, err
	}
	return out, reserveOut, nil
}

func checkOutput(out, reserveOut uint64) error {
	if out == 0 {
		return fmt.Errorf("%w: swap yields nothing", errs.ErrInsufficientOutputAmount)
	}
	if out >= reserveOut {
		return fmt.Errorf("%w: output %d would drain reserve %d", errs.ErrInsufficientLiquidity, out, reserveOut)
	}
	return nil
}

// Quote returns the output of swapping amountIn in direction dir.
func Quote(p model.AMMPool, amountIn uint64, dir model.SwapDirection) (uint64, error) {
	out, reserveOut, err := amountOut(p, amountIn, dir)
	if err != nil {
		return 0, err
	}
	if err := checkOutput(out, reserveOut); err != nil {
		return 0, err
	}
	return out, nil
}

// PriceImpact simulates the swap and returns |post-pre|*10000/pre, capped
// at MaxImpactBps.
func PriceImpact(p model.AMMPool, amountIn uint64, dir model.SwapDirection) (uint64, error) {
	pre, err := Price(p)
	if err != nil {
		return 0, err
	}
	after, _, err := Swap(p, amountIn, dir, 0, p.LastSwapAt)
	if err != nil {
		return 0, err
	}
	post, err := Price(after)
	if err != nil {
		return 0, err
	}
	if pre == 0 {
		return 0, nil
	}
	diff := post - pre
	if pre > post {
		diff = pre - post
	}
	impact, err := fixed.MulDiv(diff, fixed.BpsDenominator, pre)
	if err != nil {
		return MaxImpactBps, nil
	}
	return min(impact, MaxImpactBps), nil
}
