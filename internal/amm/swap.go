package amm

import (
	"fmt"

	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/fixed"
	"github.com/atmx/outcome-engine/internal/model"
)

// SwapResult describes an executed swap.
type SwapResult struct {
	AmountOut   uint64 `json:"amount_out"`
	FeeAmount   uint64 `json:"fee_amount"`
	ProtocolFee uint64 `json:"protocol_fee"` // denominated in the input asset
	PriceBefore uint64 `json:"price_before"`
	PriceAfter  uint64 `json:"price_after"`
	Volume      uint64 `json:"volume"` // native-side volume
}

// Swap executes a swap of amountIn against the pool. The protocol's share of
// the fee is withheld from the input leg before it reaches the reserve:
//
//	fee          = amount_in * fee_bps / 10000
//	protocol_fee = fee * protocol_fee_bps / fee_bps
//	reserve_in  += amount_in - protocol_fee
//	reserve_out -= amount_out
func Swap(p model.AMMPool, amountIn uint64, dir model.SwapDirection, minOut uint64, now int64) (model.AMMPool, SwapResult, error) {
	out, reserveOut, err := amountOut(p, amountIn, dir)
	if err != nil {
		return p, SwapResult{}, err
	}
	if out < minOut {
		return p, SwapResult{}, fmt.Errorf("%w: amount_out %d below minimum %d",
			errs.ErrSlippageToleranceExceeded, out, minOut)
	}
	if err := checkOutput(out, reserveOut); err != nil {
		return p, SwapResult{}, err
	}

	priceBefore, err := Price(p)
	if err != nil {
		return p, SwapResult{}, err
	}
	fee, err := fixed.Bps(amountIn, p.FeeBps)
	if err != nil {
		return p, SwapResult{}, err
	}
	var protocolFee uint64
	if p.FeeBps > 0 {
		if protocolFee, err = fixed.MulDiv(fee, p.ProtocolFeeBps, p.FeeBps); err != nil {
			return p, SwapResult{}, err
		}
	}
	credited := amountIn - protocolFee

	next := p
	var volume uint64
	switch dir {
	case model.TokenToSol:
		if next.TokenReserve, err = fixed.Add(p.TokenReserve, credited); err != nil {
			return p, SwapResult{}, err
		}
		next.SolReserve = p.SolReserve - out
		next.ProtocolFeesToken = fixed.SatAdd(p.ProtocolFeesToken, protocolFee)
		volume = out
	case model.SolToToken:
		if next.SolReserve, err = fixed.Add(p.SolReserve, credited); err != nil {
			return p, SwapResult{}, err
		}
		next.TokenReserve = p.TokenReserve - out
		next.ProtocolFeesSol = fixed.SatAdd(p.ProtocolFeesSol, protocolFee)
		volume = amountIn
	}
	next.K = fixed.Product(next.TokenReserve, next.SolReserve)
	if next.FeesCollected, err = fixed.Add(p.FeesCollected, fee); err != nil {
		return p, SwapResult{}, err
	}

	priceAfter, err := Price(next)
	if err != nil {
		return p, SwapResult{}, err
	}
	next = recordSwap(next, priceAfter, volume, now)

	return next, SwapResult{
		AmountOut:   out,
		FeeAmount:   fee,
		ProtocolFee: protocolFee,
		PriceBefore: priceBefore,
		PriceAfter:  priceAfter,
		Volume:      volume,
	}, nil
}

// recordSwap updates rolling statistics. The window resets when more than
// StatsWindow has passed since the previous swap.
func recordSwap(p model.AMMPool, price, volume uint64, now int64) model.AMMPool {
	if now-p.LastSwapAt > StatsWindow {
		p.Volume24h = volume
		p.Price24hAgo = p.LastPrice
		if p.Price24hAgo == 0 {
			p.Price24hAgo = price
		}
	} else {
		p.Volume24h = fixed.SatAdd(p.Volume24h, volume)
	}
	p.SwapCount = fixed.SatAdd(p.SwapCount, 1)
	p.LastPrice = price
	p.LastSwapAt = now
	return p
}
