package amm

import (
	"errors"
	"testing"

	"pgregory.net/rapid"

	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/fixed"
	"github.com/atmx/outcome-engine/internal/model"
	"github.com/atmx/outcome-engine/internal/outcome"
)

var key = outcome.Key{MarketID: "m1", Index: 0}

type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// seededPool returns a pool holding the given reserves from a single provider.
func seededPool(t fataler, token, sol, feeBps, protocolFeeBps uint64) (model.AMMPool, model.LiquidityPosition) {
	t.Helper()
	p, err := NewPool(key, feeBps, protocolFeeBps, 0)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	p, pos, _, err := AddLiquidity(p, model.LiquidityPosition{Owner: "lp", Outcome: key}, token, sol, 0, 0)
	if err != nil {
		t.Fatalf("seed liquidity: %v", err)
	}
	return p, pos
}

// --- Pool configuration ---

func TestNewPool_FeeCaps(t *testing.T) {
	tests := []struct {
		fee, protocol uint64
		ok            bool
	}{
		{30, 5, true},
		{1_000, 100, true},
		{1_001, 0, false},
		{500, 101, false},
		{10, 20, false},
		{0, 0, true},
	}
	for _, tt := range tests {
		_, err := NewPool(key, tt.fee, tt.protocol, 0)
		if tt.ok && err != nil {
			t.Errorf("NewPool(%d,%d) unexpected error: %v", tt.fee, tt.protocol, err)
		}
		if !tt.ok && !errors.Is(err, errs.ErrInvalidConfiguration) {
			t.Errorf("NewPool(%d,%d) = %v, want ErrInvalidConfiguration", tt.fee, tt.protocol, err)
		}
	}
}

// --- Quotes and swaps ---

func TestQuote_DocumentedScenario(t *testing.T) {
	p, _ := seededPool(t, 1_000_000, 1_000_000_000, 30, 0)

	// in_net = 10000*9970/10000 = 9970
	// out    = 1e9*9970/(1e6+9970) = 9_871_580
	out, err := Quote(p, 10_000, model.TokenToSol)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if out != 9_871_580 {
		t.Errorf("amount_out = %d, want 9871580", out)
	}
}

func TestQuote_Errors(t *testing.T) {
	empty, _ := NewPool(key, 30, 0, 0)
	if _, err := Quote(empty, 100, model.SolToToken); !errors.Is(err, errs.ErrInsufficientLiquidity) {
		t.Errorf("empty pool: expected ErrInsufficientLiquidity, got %v", err)
	}

	p, _ := seededPool(t, 1_000_000, 1_000_000_000, 30, 0)
	if _, err := Quote(p, 0, model.TokenToSol); !errors.Is(err, errs.ErrInvalidAmount) {
		t.Errorf("zero input: expected ErrInvalidAmount, got %v", err)
	}
	// 1 lamport buys nothing from a 1e6-token reserve.
	if _, err := Quote(p, 1, model.SolToToken); !errors.Is(err, errs.ErrInsufficientOutputAmount) {
		t.Errorf("dust input: expected ErrInsufficientOutputAmount, got %v", err)
	}
	if _, err := Quote(p, 1, "sideways"); !errors.Is(err, errs.ErrInvalidConfiguration) {
		t.Errorf("bad direction: expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestSwap_TokenToSolWithProtocolFee(t *testing.T) {
	p, _ := seededPool(t, 1_000_000, 1_000_000_000, 30, 5)

	next, res, err := Swap(p, 10_000, model.TokenToSol, 9_800_000, 100)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if res.AmountOut != 9_871_580 {
		t.Errorf("amount_out = %d", res.AmountOut)
	}
	if res.FeeAmount != 30 || res.ProtocolFee != 5 {
		t.Errorf("fee=%d protocol=%d, want 30/5", res.FeeAmount, res.ProtocolFee)
	}
	if next.TokenReserve != 1_009_995 {
		t.Errorf("token reserve = %d, want 1009995", next.TokenReserve)
	}
	if next.SolReserve != 1_000_000_000-9_871_580 {
		t.Errorf("sol reserve = %d", next.SolReserve)
	}
	if next.K.Cmp(fixed.Product(next.TokenReserve, next.SolReserve)) != 0 {
		t.Errorf("k not recomputed")
	}
	if next.FeesCollected != 30 || next.ProtocolFeesToken != 5 {
		t.Errorf("fees collected=%d protocol token=%d", next.FeesCollected, next.ProtocolFeesToken)
	}
	if next.SwapCount != 1 || next.Volume24h != res.AmountOut {
		t.Errorf("stats: count=%d volume=%d", next.SwapCount, next.Volume24h)
	}
	if next.LastPrice != 980_330_021_435 || res.PriceAfter != next.LastPrice {
		t.Errorf("last price = %d", next.LastPrice)
	}
	if p.SwapCount != 0 {
		t.Error("input pool must not be mutated")
	}
}

func TestSwap_SolToTokenVolumeIsInput(t *testing.T) {
	p, _ := seededPool(t, 1_000_000, 1_000_000_000, 30, 10)
	next, res, err := Swap(p, 50_000_000, model.SolToToken, 0, 1)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if next.Volume24h != 50_000_000 {
		t.Errorf("volume = %d, want amount_in", next.Volume24h)
	}
	if next.SolReserve != 1_000_000_000+50_000_000-res.ProtocolFee {
		t.Errorf("sol reserve = %d", next.SolReserve)
	}
	if next.ProtocolFeesSol != res.ProtocolFee || res.ProtocolFee == 0 {
		t.Errorf("protocol fee in sol = %d", next.ProtocolFeesSol)
	}
}

func TestSwap_SlippageCheckedFirst(t *testing.T) {
	p, _ := seededPool(t, 1_000_000, 1_000_000_000, 30, 0)
	_, _, err := Swap(p, 10_000, model.TokenToSol, 9_871_581, 1)
	if !errors.Is(err, errs.ErrSlippageToleranceExceeded) {
		t.Errorf("expected ErrSlippageToleranceExceeded, got %v", err)
	}
	// A dust swap with a positive floor reports slippage before zero output.
	_, _, err = Swap(p, 1, model.SolToToken, 1, 1)
	if !errors.Is(err, errs.ErrSlippageToleranceExceeded) {
		t.Errorf("expected ErrSlippageToleranceExceeded, got %v", err)
	}
}

func TestSwap_WindowReset(t *testing.T) {
	p, _ := seededPool(t, 1_000_000, 1_000_000_000, 30, 0)
	p, first, _ := Swap(p, 10_000, model.TokenToSol, 0, 1_000)
	p, _, _ = Swap(p, 10_000, model.TokenToSol, 0, 2_000)
	if p.Volume24h <= first.Volume {
		t.Fatalf("volume should accumulate within the window")
	}
	before := p.LastPrice
	p, third, _ := Swap(p, 10_000, model.TokenToSol, 0, 2_000+StatsWindow+1)
	if p.Volume24h != third.Volume {
		t.Errorf("volume after reset = %d, want %d", p.Volume24h, third.Volume)
	}
	if p.Price24hAgo != before {
		t.Errorf("price_24h_ago = %d, want %d", p.Price24hAgo, before)
	}
	if PriceChange24h(p) >= 0 {
		t.Errorf("selling tokens should lower the price, change = %d", PriceChange24h(p))
	}
}

// --- Price and impact ---

func TestPrice(t *testing.T) {
	p, _ := seededPool(t, 1_000_000, 1_000_000_000, 30, 0)
	if got, _ := Price(p); got != 1_000_000_000_000 {
		t.Errorf("price = %d", got)
	}
	empty, _ := NewPool(key, 30, 0, 0)
	if got, _ := Price(empty); got != 0 {
		t.Errorf("empty pool price = %d, want 0", got)
	}
}

func TestPriceImpact(t *testing.T) {
	p, _ := seededPool(t, 1_000_000, 1_000_000_000, 30, 0)
	impact, err := PriceImpact(p, 10_000, model.TokenToSol)
	if err != nil {
		t.Fatalf("impact: %v", err)
	}
	if impact != 196 {
		t.Errorf("impact = %d bps, want 196", impact)
	}

	// Draining most of the token side more than doubles the price: capped.
	impact, err = PriceImpact(p, 100_000_000_000, model.SolToToken)
	if err != nil {
		t.Fatalf("impact: %v", err)
	}
	if impact != MaxImpactBps {
		t.Errorf("impact = %d, want cap %d", impact, MaxImpactBps)
	}
}

// --- Liquidity ---

func TestAddLiquidity_FirstDepositMintsSqrt(t *testing.T) {
	p, _ := NewPool(key, 30, 0, 0)
	p, pos, minted, err := AddLiquidity(p, model.LiquidityPosition{}, 1_000_000, 4_000_000, 0, 7)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if minted != 2_000_000 {
		t.Errorf("minted = %d, want 2000000", minted)
	}
	if p.TotalLPTokens != 2_000_000 || pos.LPTokens != 2_000_000 {
		t.Errorf("lp supply=%d position=%d", p.TotalLPTokens, pos.LPTokens)
	}
	if p.K.Cmp(fixed.Product(1_000_000, 4_000_000)) != 0 {
		t.Errorf("k = %s", p.K)
	}
	if pos.CreatedAt != 7 {
		t.Errorf("created_at = %d", pos.CreatedAt)
	}
}

func TestAddLiquidity_RatioTolerance(t *testing.T) {
	p, _ := seededPool(t, 1_000_000, 4_000_000, 30, 0)

	// Exactly proportional.
	_, _, minted, err := AddLiquidity(p, model.LiquidityPosition{}, 100_000, 400_000, 0, 1)
	if err != nil {
		t.Fatalf("proportional add: %v", err)
	}
	if minted != 200_000 {
		t.Errorf("minted = %d, want 200000", minted)
	}

	// 1% off is accepted and mints by the smaller leg.
	_, _, minted, err = AddLiquidity(p, model.LiquidityPosition{}, 100_000, 404_000, 0, 1)
	if err != nil {
		t.Fatalf("1%% add: %v", err)
	}
	if minted != 200_000 {
		t.Errorf("minted = %d, want 200000", minted)
	}

	// 2% off is rejected.
	_, _, _, err = AddLiquidity(p, model.LiquidityPosition{}, 100_000, 408_000, 0, 1)
	if !errors.Is(err, errs.ErrSlippageToleranceExceeded) {
		t.Errorf("expected ErrSlippageToleranceExceeded, got %v", err)
	}
}

func TestAddLiquidity_Errors(t *testing.T) {
	p, _ := NewPool(key, 30, 0, 0)
	if _, _, _, err := AddLiquidity(p, model.LiquidityPosition{}, 0, 10, 0, 0); !errors.Is(err, errs.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
	if _, _, _, err := AddLiquidity(p, model.LiquidityPosition{}, 1_000, 1_000, 1_001, 0); !errors.Is(err, errs.ErrSlippageToleranceExceeded) {
		t.Errorf("expected ErrSlippageToleranceExceeded, got %v", err)
	}

	big, _ := seededPool(t, 1_000_000_000, 1_000_000_000, 30, 0)
	// With a tiny LP supply relative to reserves, a one-unit deposit mints nothing.
	tiny := big
	tiny.TotalLPTokens = 1
	if _, _, _, err := AddLiquidity(tiny, model.LiquidityPosition{}, 1, 1, 0, 0); !errors.Is(err, errs.ErrInsufficientLiquidityMinted) {
		t.Errorf("expected ErrInsufficientLiquidityMinted, got %v", err)
	}
}

func TestRemoveLiquidity_AccruesFees(t *testing.T) {
	p, pos := seededPool(t, 1_000_000, 1_000_000_000, 30, 0)
	// Round trips of swaps leave fees in the reserves.
	for i := 0; i < 10; i++ {
		var res SwapResult
		p, res, _ = Swap(p, 10_000_000, model.SolToToken, 0, 1)
		p, _, _ = Swap(p, res.AmountOut, model.TokenToSol, 0, 1)
	}
	p, pos, w, err := RemoveLiquidity(p, pos, pos.LPTokens, 0, 0, 2)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if p.TotalLPTokens != 0 || pos.LPTokens != 0 {
		t.Errorf("lp not fully burned")
	}
	if pos.TokensDeposited != 0 || pos.SolDeposited != 0 {
		t.Errorf("deposits not cleared: %+v", pos)
	}
	if w.FeesEarned == 0 || w.FeesEarned != w.SolAmount-1_000_000_000 || pos.FeesEarned != w.FeesEarned {
		t.Errorf("fees earned = %d (sol out %d)", w.FeesEarned, w.SolAmount)
	}
	if !p.K.IsZero() {
		t.Errorf("k = %s after full withdrawal", p.K)
	}
}

func TestRemoveLiquidity_Errors(t *testing.T) {
	p, pos := seededPool(t, 1_000_000, 4_000_000, 30, 0)
	if _, _, _, err := RemoveLiquidity(p, pos, 0, 0, 0, 0); !errors.Is(err, errs.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
	if _, _, _, err := RemoveLiquidity(p, pos, pos.LPTokens+1, 0, 0, 0); !errors.Is(err, errs.ErrInsufficientLiquidity) {
		t.Errorf("expected ErrInsufficientLiquidity, got %v", err)
	}
	if _, _, _, err := RemoveLiquidity(p, pos, 1_000, 1_000, 0, 0); !errors.Is(err, errs.ErrSlippageToleranceExceeded) {
		t.Errorf("expected ErrSlippageToleranceExceeded, got %v", err)
	}
}

func TestImpermanentLoss(t *testing.T) {
	p, pos := seededPool(t, 1_000_000, 1_000_000_000, 0, 0)
	if il, _ := ImpermanentLoss(p, pos); il != 0 {
		t.Errorf("no price move, IL = %d", il)
	}
	p, _, _ = Swap(p, 200_000_000, model.SolToToken, 0, 1)
	il, err := ImpermanentLoss(p, pos)
	if err != nil {
		t.Fatalf("il: %v", err)
	}
	if il >= 0 {
		t.Errorf("price move should produce a loss (negative), got %d", il)
	}
	value, _ := PositionValue(p, pos)
	if value == 0 {
		t.Error("position value should be positive")
	}
	price, _ := Price(p)
	held := pos.SolDeposited + pos.TokensDeposited*price/1_000_000_000
	if want := int64(value) - int64(held); il != want {
		t.Errorf("IL = %d, want value-held = %d", il, want)
	}
}

// --- Properties ---

func TestProperty_SwapsNeverShrinkK(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		token := rapid.Uint64Range(1_000, 1<<40).Draw(t, "token")
		sol := rapid.Uint64Range(1_000, 1<<40).Draw(t, "sol")
		fee := rapid.Uint64Range(0, MaxFeeBps).Draw(t, "fee")
		protocol := rapid.Uint64Range(0, min(fee, MaxProtocolFeeBps)).Draw(t, "protocol")
		p, _ := seededPool(t, token, sol, fee, protocol)

		steps := rapid.IntRange(1, 20).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			dir := rapid.SampledFrom([]model.SwapDirection{model.TokenToSol, model.SolToToken}).Draw(t, "dir")
			in := rapid.Uint64Range(1, 1<<38).Draw(t, "in")
			next, _, err := Swap(p, in, dir, 0, int64(i))
			if err != nil {
				continue
			}
			if fixed.Product(next.TokenReserve, next.SolReserve).Cmp(fixed.Product(p.TokenReserve, p.SolReserve)) < 0 {
				t.Fatalf("k shrank: %d*%d -> %d*%d", p.TokenReserve, p.SolReserve, next.TokenReserve, next.SolReserve)
			}
			p = next
		}
	})
}

func TestProperty_AddThenRemoveRoundTrips(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		token := rapid.Uint64Range(1_000_000, 1<<36).Draw(t, "token")
		sol := rapid.Uint64Range(1_000_000, 1<<36).Draw(t, "sol")
		p, _ := seededPool(t, token, sol, 30, 0)

		// Deposit in the pool ratio.
		depToken := rapid.Uint64Range(1_000, 1<<30).Draw(t, "depToken")
		depSol, err := fixed.MulDiv(depToken, p.SolReserve, p.TokenReserve)
		if err != nil || depSol == 0 {
			t.Skip("ratio not representable")
		}

		after, pos, minted, err := AddLiquidity(p, model.LiquidityPosition{}, depToken, depSol, 0, 1)
		if err != nil {
			t.Skip(err.Error())
		}
		_, _, w, err := RemoveLiquidity(after, pos, minted, 0, 0, 2)
		if err != nil {
			t.Fatalf("remove: %v", err)
		}
		if w.TokenAmount > depToken || w.SolAmount > depSol {
			t.Fatalf("withdrew more than deposited: %d/%d vs %d/%d", w.TokenAmount, w.SolAmount, depToken, depSol)
		}
		// Rounding loses at most one LP token's worth of each reserve, plus
		// the cross-rate error of the rounded sol leg.
		tokTol := after.TokenReserve/after.TotalLPTokens + after.TokenReserve/after.SolReserve + 2
		solTol := after.SolReserve/after.TotalLPTokens + after.SolReserve/after.TokenReserve + 2
		if depToken-w.TokenAmount > tokTol || depSol-w.SolAmount > solTol {
			t.Fatalf("round trip lost %d tokens / %d sol (tolerance %d/%d)",
				depToken-w.TokenAmount, depSol-w.SolAmount, tokTol, solTol)
		}
	})
}

func TestProperty_LPSupplyMatchesPositions(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p, first := seededPool(t, 1_000_000, 1_000_000_000, 30, 0)
		positions := []model.LiquidityPosition{first, {}, {}}

		ops := rapid.IntRange(1, 15).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			who := rapid.IntRange(0, len(positions)-1).Draw(t, "who")
			if rapid.Bool().Draw(t, "add") {
				tok := rapid.Uint64Range(1, 100_000).Draw(t, "tok")
				sol, _ := fixed.MulDiv(tok, p.SolReserve, p.TokenReserve)
				np, npos, _, err := AddLiquidity(p, positions[who], tok, sol, 0, 1)
				if err == nil {
					p, positions[who] = np, npos
				}
			} else if positions[who].LPTokens > 0 {
				lp := rapid.Uint64Range(1, positions[who].LPTokens).Draw(t, "lp")
				np, npos, _, err := RemoveLiquidity(p, positions[who], lp, 0, 0, 1)
				if err == nil {
					p, positions[who] = np, npos
				}
			}
			var sum uint64
			for _, pos := range positions {
				sum += pos.LPTokens
			}
			if sum != p.TotalLPTokens {
				t.Fatalf("positions sum to %d, pool supply %d", sum, p.TotalLPTokens)
			}
		}
	})
}
