package fixed

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/atmx/outcome-engine/internal/errs"
)

// Wide is an unsigned 256-bit integer used for the pool product invariant.
// The zero value is 0 and values are safe to copy.
type Wide struct {
	n uint256.Int
}

// NewWide returns v as a Wide.
func NewWide(v uint64) Wide {
	var w Wide
	w.n.SetUint64(v)
	return w
}

// Product returns a*b. Two 64-bit operands never overflow 256 bits.
func Product(a, b uint64) Wide {
	var w Wide
	w.n.Mul(uint256.NewInt(a), uint256.NewInt(b))
	return w
}

// ParseWide parses a base-10 string. Values above 2^256-1 are rejected.
func ParseWide(s string) (Wide, error) {
	n, err := uint256.FromDecimal(s)
	if err != nil {
		return Wide{}, fmt.Errorf("fixed: invalid wide integer %q: %w", s, err)
	}
	return Wide{n: *n}, nil
}

// Cmp returns -1, 0 or +1.
func (w Wide) Cmp(o Wide) int { return w.n.Cmp(&o.n) }

// IsZero reports whether w == 0.
func (w Wide) IsZero() bool { return w.n.IsZero() }

// String returns the base-10 representation.
func (w Wide) String() string { return w.n.Dec() }

// MarshalJSON encodes w as a decimal string, since JSON numbers lose precision
// beyond 2^53.
func (w Wide) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.String())
}

// UnmarshalJSON accepts a decimal string or a bare JSON number.
func (w *Wide) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}
	v, err := ParseWide(s)
	if err != nil {
		return err
	}
	*w = v
	return nil
}

// WeightedAverage returns (a*aw + b*bw) / (aw+bw), truncated. The
// intermediate sums are carried in 256 bits.
func WeightedAverage(a, aw, b, bw uint64) (uint64, error) {
	var sum, weight, tmp uint256.Int
	sum.Mul(uint256.NewInt(a), uint256.NewInt(aw))
	tmp.Mul(uint256.NewInt(b), uint256.NewInt(bw))
	sum.Add(&sum, &tmp)
	weight.Add(uint256.NewInt(aw), uint256.NewInt(bw))
	if weight.IsZero() {
		return 0, nil
	}
	sum.Div(&sum, &weight)
	if !sum.IsUint64() {
		return 0, errs.ErrArithmeticOverflow
	}
	return sum.Uint64(), nil
}
