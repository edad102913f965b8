// Package errs declares the error kinds shared by every trading operation.
//
// Operations wrap one of these sentinels with context, e.g.
//
//	fmt.Errorf("%w: amount_out %d below minimum %d", errs.ErrSlippageToleranceExceeded, out, min)
//
// and callers classify with errors.Is or Kind.
package errs

import "errors"

var (
	ErrInvalidAmount               = errors.New("invalid amount")
	ErrInsufficientFunds           = errors.New("insufficient funds")
	ErrInsufficientLiquidity       = errors.New("insufficient liquidity")
	ErrInsufficientShares          = errors.New("insufficient shares")
	ErrInsufficientOutputAmount    = errors.New("insufficient output amount")
	ErrInsufficientLiquidityMinted = errors.New("insufficient liquidity minted")
	ErrSlippageToleranceExceeded   = errors.New("slippage tolerance exceeded")
	ErrArithmeticOverflow          = errors.New("arithmetic overflow")
	ErrUnauthorized                = errors.New("unauthorized")
	ErrInvalidConfiguration        = errors.New("invalid configuration")

	ErrNotFound        = errors.New("not found")
	ErrNotResolved     = errors.New("market not resolved")
	ErrNotWinner       = errors.New("outcome is not the winner")
	ErrAlreadyResolved = errors.New("market already resolved")
	ErrInvalidOutcome  = errors.New("invalid outcome")
	ErrTooManyOutcomes = errors.New("too many outcomes")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrInsufficientLiquidity, "insufficient_liquidity"},
	{ErrInsufficientShares, "insufficient_shares"},
	{ErrInsufficientOutputAmount, "insufficient_output_amount"},
	{ErrInsufficientLiquidityMinted, "insufficient_liquidity_minted"},
	{ErrSlippageToleranceExceeded, "slippage_tolerance_exceeded"},
	{ErrArithmeticOverflow, "arithmetic_overflow"},
	{ErrUnauthorized, "unauthorized"},
	{ErrInvalidConfiguration, "invalid_configuration"},
	{ErrNotFound, "not_found"},
	{ErrNotResolved, "not_resolved"},
	{ErrNotWinner, "not_winner"},
	{ErrAlreadyResolved, "already_resolved"},
	{ErrInvalidOutcome, "invalid_outcome"},
	{ErrTooManyOutcomes, "too_many_outcomes"},
}

// Kind returns the stable snake_case name of the first known kind err
// wraps, or "internal" if none matches.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}
