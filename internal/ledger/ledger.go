// Package ledger implements per-owner share accounting: balances, weighted
// average cost basis, and realized/unrealized PnL.
//
// Every function takes a record by value and returns the updated copy, so a
// failed call leaves the caller's state untouched.
//
//	cost           = amount * price / 1e9
//	avg_cost_basis = total_invested * 1e9 / balance    (recomputed on buys only)
//	realized      += amount*price/1e9 - amount*avg_cost_basis/1e9
package ledger

import (
	"fmt"

	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/fixed"
	"github.com/atmx/outcome-engine/internal/model"
)

// RedemptionPrice is the fixed per-share value paid for a winning outcome:
// one native unit per share at scale 1e9.
const RedemptionPrice = fixed.Scale

// Buy adds amount shares acquired at price to the balance.
func Buy(b model.ShareBalance, amount, price uint64, now int64) (model.ShareBalance, error) {
	if amount == 0 {
		return b, fmt.Errorf("%w: buy amount must be positive", errs.ErrInvalidAmount)
	}
	cost, err := fixed.MulDiv(amount, price, fixed.Scale)
	if err != nil {
		return b, err
	}
	invested, err := fixed.Add(b.TotalInvested, cost)
	if err != nil {
		return b, err
	}
	balance, err := fixed.Add(b.Balance, amount)
	if err != nil {
		return b, err
	}
	avg, err := fixed.MulDiv(invested, fixed.Scale, balance)
	if err != nil {
		return b, err
	}

	b.Balance = balance
	b.TotalInvested = invested
	b.AvgCostBasis = avg
	b.UpdatedAt = now
	return b, nil
}

// Deposit records shares returned to the owner from outside the trading
// paths (a liquidity withdrawal) as an acquisition at price.
func Deposit(b model.ShareBalance, amount, price uint64, now int64) (model.ShareBalance, error) {
	return Buy(b, amount, price, now)
}

// Sell removes amount shares sold at price and returns the realized PnL
// delta. Closing the whole position consumes the whole invested amount.
func Sell(b model.ShareBalance, amount, price uint64, now int64) (model.ShareBalance, int64, error) {
	if amount == 0 {
		return b, 0, fmt.Errorf("%w: sell amount must be positive", errs.ErrInvalidAmount)
	}
	if b.Balance < amount {
		return b, 0, fmt.Errorf("%w: balance %d, selling %d", errs.ErrInsufficientShares, b.Balance, amount)
	}
	cost, err := costOf(b, amount)
	if err != nil {
		return b, 0, err
	}
	proceeds, err := fixed.MulDiv(amount, price, fixed.Scale)
	if err != nil {
		return b, 0, err
	}
	delta, err := fixed.Diff(proceeds, cost)
	if err != nil {
		return b, 0, err
	}
	realized, err := fixed.AddSigned(b.RealizedPnL, delta)
	if err != nil {
		return b, 0, err
	}

	b.Balance -= amount
	b.TotalInvested = fixed.SatSub(b.TotalInvested, cost)
	b.RealizedPnL = realized
	b.UpdatedAt = now
	return b, delta, nil
}

// Redeem sells amount winning shares at RedemptionPrice. It returns the
// native payout and the realized PnL delta.
func Redeem(b model.ShareBalance, amount uint64, now int64) (model.ShareBalance, uint64, int64, error) {
	payout, err := fixed.MulDiv(amount, RedemptionPrice, fixed.Scale)
	if err != nil {
		return b, 0, 0, err
	}
	nb, delta, err := Sell(b, amount, RedemptionPrice, now)
	if err != nil {
		return b, 0, 0, err
	}
	return nb, payout, delta, nil
}

// Withdraw removes shares moved out of the owner's hands without a sale
// (a liquidity deposit). Cost basis leaves with them; no PnL is realized.
func Withdraw(b model.ShareBalance, amount uint64, now int64) (model.ShareBalance, error) {
	if amount == 0 {
		return b, fmt.Errorf("%w: withdraw amount must be positive", errs.ErrInvalidAmount)
	}
	if b.Balance < amount {
		return b, fmt.Errorf("%w: balance %d, withdrawing %d", errs.ErrInsufficientShares, b.Balance, amount)
	}
	cost, err := costOf(b, amount)
	if err != nil {
		return b, err
	}
	b.Balance -= amount
	b.TotalInvested = fixed.SatSub(b.TotalInvested, cost)
	b.UpdatedAt = now
	return b, nil
}

// UnrealizedPnL marks the balance at price against its cost basis.
func UnrealizedPnL(b model.ShareBalance, price uint64) (int64, error) {
	value, err := fixed.MulDiv(b.Balance, price, fixed.Scale)
	if err != nil {
		return 0, err
	}
	basis, err := fixed.MulDiv(b.Balance, b.AvgCostBasis, fixed.Scale)
	if err != nil {
		return 0, err
	}
	return fixed.Diff(value, basis)
}

// TotalPnL is realized plus unrealized PnL at price.
func TotalPnL(b model.ShareBalance, price uint64) (int64, error) {
	u, err := UnrealizedPnL(b, price)
	if err != nil {
		return 0, err
	}
	return fixed.AddSigned(b.RealizedPnL, u)
}

// costOf is the cost basis released by selling amount. A full close releases
// all of TotalInvested so truncation in AvgCostBasis leaves no residue.
func costOf(b model.ShareBalance, amount uint64) (uint64, error) {
	if amount == b.Balance {
		return b.TotalInvested, nil
	}
	return fixed.MulDiv(amount, b.AvgCostBasis, fixed.Scale)
}
