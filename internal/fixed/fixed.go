// Package fixed provides checked integer arithmetic for reserve, price and
// fee math. Products are formed in 256 bits before narrowing, and any result
// that does not fit its destination is reported as errs.ErrArithmeticOverflow
// instead of wrapping.
package fixed

import (
	"fmt"
	"math"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/atmx/outcome-engine/internal/errs"
)

const (
	// Scale is the fixed-point denominator for prices and cost basis.
	Scale uint64 = 1_000_000_000

	// BpsDenominator is 100% expressed in basis points.
	BpsDenominator uint64 = 10_000
)

// MulDiv returns a*b/d using a 256-bit intermediate product.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, fmt.Errorf("%w: division by zero", errs.ErrArithmeticOverflow)
	}
	var p uint256.Int
	p.Mul(uint256.NewInt(a), uint256.NewInt(b))
	p.Div(&p, uint256.NewInt(d))
	if !p.IsUint64() {
		return 0, fmt.Errorf("%w: %d*%d/%d", errs.ErrArithmeticOverflow, a, b, d)
	}
	return p.Uint64(), nil
}

// Mul returns a*b or an overflow error.
func Mul(a, b uint64) (uint64, error) {
	var p uint256.Int
	p.Mul(uint256.NewInt(a), uint256.NewInt(b))
	if !p.IsUint64() {
		return 0, fmt.Errorf("%w: %d*%d", errs.ErrArithmeticOverflow, a, b)
	}
	return p.Uint64(), nil
}

// Add returns a+b or an overflow error.
func Add(a, b uint64) (uint64, error) {
	s := a + b
	if s < a {
		return 0, fmt.Errorf("%w: %d+%d", errs.ErrArithmeticOverflow, a, b)
	}
	return s, nil
}

// Sub returns a-b or an overflow error when b > a.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("%w: %d-%d", errs.ErrArithmeticOverflow, a, b)
	}
	return a - b, nil
}

// SatAdd returns a+b clamped to the uint64 range.
func SatAdd(a, b uint64) uint64 {
	if s := a + b; s >= a {
		return s
	}
	return math.MaxUint64
}

// SatSub returns a-b clamped at zero.
func SatSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// Bps returns amount*bps/10000.
func Bps(amount, bps uint64) (uint64, error) {
	return MulDiv(amount, bps, BpsDenominator)
}

// SqrtProduct returns floor(sqrt(a*b)). The result always fits in 64 bits.
func SqrtProduct(a, b uint64) uint64 {
	var p uint256.Int
	p.Mul(uint256.NewInt(a), uint256.NewInt(b))
	p.Sqrt(&p)
	return p.Uint64()
}

// Signed converts u to int64.
func Signed(u uint64) (int64, error) {
	if u > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d exceeds int64", errs.ErrArithmeticOverflow, u)
	}
	return int64(u), nil
}

// Diff returns a-b as a signed value.
func Diff(a, b uint64) (int64, error) {
	if a >= b {
		return Signed(a - b)
	}
	d, err := Signed(b - a)
	if err != nil {
		return 0, err
	}
	return -d, nil
}

// AddSigned returns a+b or an overflow error.
func AddSigned(a, b int64) (int64, error) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, fmt.Errorf("%w: %d+%d", errs.ErrArithmeticOverflow, a, b)
	}
	return s, nil
}

// ChangeBps returns (current-previous)*10000/previous, or 0 when previous is 0.
func ChangeBps(current, previous uint64) (int64, error) {
	if previous == 0 {
		return 0, nil
	}
	var lo, hi uint64 = previous, current
	neg := current < previous
	if neg {
		lo, hi = current, previous
	}
	mag, err := MulDiv(hi-lo, BpsDenominator, previous)
	if err != nil {
		return 0, err
	}
	s, err := Signed(mag)
	if err != nil {
		return 0, err
	}
	if neg {
		s = -s
	}
	return s, nil
}

// ToDecimal renders a 1e9-scaled amount (lamports, scaled prices) in whole units.
func ToDecimal(u uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(u), -9)
}

// SignedToDecimal is ToDecimal for signed amounts such as PnL.
func SignedToDecimal(i int64) decimal.Decimal {
	return decimal.New(i, -9)
}
