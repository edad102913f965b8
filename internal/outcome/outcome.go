// Package outcome identifies the tradable outcomes of a market and parses
// their ticker form.
package outcome

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// MaxOutcomes is the largest number of outcomes a market may declare.
const MaxOutcomes = 6

// tickerRegex matches: {marketID}:{index}
// Example: worlds-2026-final:1
var tickerRegex = regexp.MustCompile(`^([A-Za-z0-9_-]{1,64}):([0-9])$`)

var marketIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

var (
	ErrInvalidTicker   = errors.New("outcome: invalid ticker format")
	ErrInvalidMarketID = errors.New("outcome: invalid market id")
	ErrIndexOutOfRange = errors.New("outcome: index out of range")
)

// Key addresses one outcome of one market. Pools, books and share records
// are all keyed by it.
type Key struct {
	MarketID string `json:"market_id"`
	Index    uint8  `json:"outcome_index"`
}

// String returns the ticker form of k.
func (k Key) String() string {
	return k.MarketID + ":" + strconv.Itoa(int(k.Index))
}

// NewKey validates the parts of a key.
func NewKey(marketID string, index uint8) (Key, error) {
	if !ValidMarketID(marketID) {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidMarketID, marketID)
	}
	if index >= MaxOutcomes {
		return Key{}, fmt.Errorf("%w: %d (max %d)", ErrIndexOutOfRange, index, MaxOutcomes-1)
	}
	return Key{MarketID: marketID, Index: index}, nil
}

// ParseTicker parses and validates a ticker of the form {marketID}:{index}.
func ParseTicker(ticker string) (Key, error) {
	m := tickerRegex.FindStringSubmatch(ticker)
	if m == nil {
		return Key{}, fmt.Errorf("%w: %s (expected {market}:{index})", ErrInvalidTicker, ticker)
	}
	idx, _ := strconv.Atoi(m[2])
	return NewKey(m[1], uint8(idx))
}

// ValidMarketID reports whether id can be used in tickers and account names.
func ValidMarketID(id string) bool {
	return marketIDRegex.MatchString(id)
}
