package amm

import (
	"fmt"

	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/fixed"
	"github.com/atmx/outcome-engine/internal/model"
)

// ratioTolerance is the divisor of the allowed deviation from the pool
// ratio on later deposits (1/100 = 1%).
const ratioTolerance = 100

// Withdrawal is the result of RemoveLiquidity.
type Withdrawal struct {
	TokenAmount uint64 `json:"token_amount"`
	SolAmount   uint64 `json:"sol_amount"`
	FeesEarned  uint64 `json:"fees_earned"` // accrued by this withdrawal
}

// AddLiquidity deposits tokenAmount and solAmount and returns the LP tokens
// minted. The first deposit mints floor(sqrt(token*sol)); later deposits
// must match the pool ratio within 1% on both legs and mint
//
//	min(total_lp*token/token_reserve, total_lp*sol/sol_reserve)
func AddLiquidity(p model.AMMPool, pos model.LiquidityPosition, tokenAmount, solAmount, minLP uint64, now int64) (model.AMMPool, model.LiquidityPosition, uint64, error) {
	if tokenAmount == 0 || solAmount == 0 {
		return p, pos, 0, fmt.Errorf("%w: both legs of a deposit must be positive", errs.ErrInvalidAmount)
	}

	first := p.TotalLPTokens == 0
	var minted uint64
	if first {
		minted = fixed.SqrtProduct(tokenAmount, solAmount)
	} else {
		if err := checkRatio(p, tokenAmount, solAmount); err != nil {
			return p, pos, 0, err
		}
		byToken, err := fixed.MulDiv(p.TotalLPTokens, tokenAmount, p.TokenReserve)
		if err != nil {
			return p, pos, 0, err
		}
		bySol, err := fixed.MulDiv(p.TotalLPTokens, solAmount, p.SolReserve)
		if err != nil {
			return p, pos, 0, err
		}
		minted = min(byToken, bySol)
	}
	if minted == 0 {
		return p, pos, 0, fmt.Errorf("%w: deposit too small", errs.ErrInsufficientLiquidityMinted)
	}
	if minted < minLP {
		return p, pos, 0, fmt.Errorf("%w: minted %d below minimum %d", errs.ErrSlippageToleranceExceeded, minted, minLP)
	}

	next := p
	var err error
	if next.TokenReserve, err = fixed.Add(p.TokenReserve, tokenAmount); err != nil {
		return p, pos, 0, err
	}
	if next.SolReserve, err = fixed.Add(p.SolReserve, solAmount); err != nil {
		return p, pos, 0, err
	}
	if next.TotalLPTokens, err = fixed.Add(p.TotalLPTokens, minted); err != nil {
		return p, pos, 0, err
	}
	next.K = fixed.Product(next.TokenReserve, next.SolReserve)
	if first {
		price, err := Price(next)
		if err != nil {
			return p, pos, 0, err
		}
		next.LastPrice = price
		next.Price24hAgo = price
	}

	np := pos
	if np.LPTokens, err = fixed.Add(pos.LPTokens, minted); err != nil {
		return p, pos, 0, err
	}
	if np.TokensDeposited, err = fixed.Add(pos.TokensDeposited, tokenAmount); err != nil {
		return p, pos, 0, err
	}
	if np.SolDeposited, err = fixed.Add(pos.SolDeposited, solAmount); err != nil {
		return p, pos, 0, err
	}
	if np.CreatedAt == 0 {
		np.CreatedAt = now
	}
	np.UpdatedAt = now
	return next, np, minted, nil
}

func checkRatio(p model.AMMPool, tokenAmount, solAmount uint64) error {
	expectedSol, err := fixed.MulDiv(tokenAmount, p.SolReserve, p.TokenReserve)
	if err != nil {
		return err
	}
	expectedToken, err := fixed.MulDiv(solAmount, p.TokenReserve, p.SolReserve)
	if err != nil {
		return err
	}
	if !within(solAmount, expectedSol) {
		return fmt.Errorf("%w: sol amount %d deviates from pool ratio (expected %d)",
			errs.ErrSlippageToleranceExceeded, solAmount, expectedSol)
	}
	if !within(tokenAmount, expectedToken) {
		return fmt.Errorf("%w: token amount %d deviates from pool ratio (expected %d)",
			errs.ErrSlippageToleranceExceeded, tokenAmount, expectedToken)
	}
	return nil
}

func within(actual, expected uint64) bool {
	tol := expected / ratioTolerance
	return actual >= fixed.SatSub(expected, tol) && actual <= fixed.SatAdd(expected, tol)
}

// RemoveLiquidity burns lp tokens from pos and returns the proportional
// share of both reserves. The position's deposits shrink by the same
// proportion; native currency received beyond that share accrues to
// fees_earned.
func RemoveLiquidity(p model.AMMPool, pos model.LiquidityPosition, lp, minToken, minSol uint64, now int64) (model.AMMPool, model.LiquidityPosition, Withdrawal, error) {
	if lp == 0 {
		return p, pos, Withdrawal{}, fmt.Errorf("%w: lp amount must be positive", errs.ErrInvalidAmount)
	}
	if lp > pos.LPTokens {
		return p, pos, Withdrawal{}, fmt.Errorf("%w: position holds %d lp, removing %d",
			errs.ErrInsufficientLiquidity, pos.LPTokens, lp)
	}
	if lp > p.TotalLPTokens {
		return p, pos, Withdrawal{}, fmt.Errorf("%w: pool has %d lp, removing %d",
			errs.ErrInsufficientLiquidity, p.TotalLPTokens, lp)
	}

	tokenAmount, err := fixed.MulDiv(lp, p.TokenReserve, p.TotalLPTokens)
	if err != nil {
		return p, pos, Withdrawal{}, err
	}
	solAmount, err := fixed.MulDiv(lp, p.SolReserve, p.TotalLPTokens)
	if err != nil {
		return p, pos, Withdrawal{}, err
	}
	if tokenAmount < minToken || solAmount < minSol {
		return p, pos, Withdrawal{}, fmt.Errorf("%w: withdrawal %d/%d below minimum %d/%d",
			errs.ErrSlippageToleranceExceeded, tokenAmount, solAmount, minToken, minSol)
	}
	if tokenAmount == 0 && solAmount == 0 {
		return p, pos, Withdrawal{}, fmt.Errorf("%w: withdrawal yields nothing", errs.ErrInsufficientOutputAmount)
	}

	tokenShare, err := fixed.MulDiv(pos.TokensDeposited, lp, pos.LPTokens)
	if err != nil {
		return p, pos, Withdrawal{}, err
	}
	solShare, err := fixed.MulDiv(pos.SolDeposited, lp, pos.LPTokens)
	if err != nil {
		return p, pos, Withdrawal{}, err
	}
	earned := fixed.SatSub(solAmount, solShare)

	next := p
	next.TokenReserve -= tokenAmount
	next.SolReserve -= solAmount
	next.TotalLPTokens -= lp
	next.K = fixed.Product(next.TokenReserve, next.SolReserve)

	np := pos
	np.LPTokens -= lp
	np.TokensDeposited -= tokenShare
	np.SolDeposited -= solShare
	np.FeesEarned = fixed.SatAdd(pos.FeesEarned, earned)
	np.UpdatedAt = now

	return next, np, Withdrawal{TokenAmount: tokenAmount, SolAmount: solAmount, FeesEarned: earned}, nil
}

// PositionValue marks the position's share of both reserves at the pool
// price, in native units.
func PositionValue(p model.AMMPool, pos model.LiquidityPosition) (uint64, error) {
	if p.TotalLPTokens == 0 || pos.LPTokens == 0 {
		return 0, nil
	}
	tokenAmount, err := fixed.MulDiv(pos.LPTokens, p.TokenReserve, p.TotalLPTokens)
	if err != nil {
		return 0, err
	}
	solAmount, err := fixed.MulDiv(pos.LPTokens, p.SolReserve, p.TotalLPTokens)
	if err != nil {
		return 0, err
	}
	price, err := Price(p)
	if err != nil {
		return 0, err
	}
	tokenValue, err := fixed.MulDiv(tokenAmount, price, fixed.Scale)
	if err != nil {
		return 0, err
	}
	return fixed.Add(solAmount, tokenValue)
}

// ImpermanentLoss returns what the position is worth minus what holding the
// deposited amounts would be worth, both at the current pool price. A
// negative value is a loss.
func ImpermanentLoss(p model.AMMPool, pos model.LiquidityPosition) (int64, error) {
	price, err := Price(p)
	if err != nil {
		return 0, err
	}
	heldTokens, err := fixed.MulDiv(pos.TokensDeposited, price, fixed.Scale)
	if err != nil {
		return 0, err
	}
	held, err := fixed.Add(pos.SolDeposited, heldTokens)
	if err != nil {
		return 0, err
	}
	value, err := PositionValue(p, pos)
	if err != nil {
		return 0, err
	}
	return fixed.Diff(value, held)
}
