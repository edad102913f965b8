// Package custody models balance movements between named accounts as
// postings. A batch of postings is applied all-or-nothing: every debit must
// be covered at the moment it is applied, in order, or nothing changes.
//
// An empty From mints and an empty To burns.
package custody

import (
	"context"
	"fmt"
	"strconv"

	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/fixed"
	"github.com/atmx/outcome-engine/internal/outcome"
)

// Asset names a fungible balance.
type Asset string

// Native is the native currency, in lamports.
const Native Asset = "native"

// ShareAsset is the share token of an outcome.
func ShareAsset(k outcome.Key) Asset { return Asset("share:" + k.String()) }

// LPAsset is the LP token of an outcome's pool.
func LPAsset(k outcome.Key) Asset { return Asset("lp:" + k.String()) }

// Protocol receives trading and protocol fees.
const Protocol = "protocol"

// User is the wallet account of an owner.
func User(owner string) string { return "user:" + owner }

// Pool is the vault holding a pool's reserves.
func Pool(k outcome.Key) string { return "pool:" + k.String() }

// OrderEscrow holds the escrow of a single resting order.
func OrderEscrow(k outcome.Key, orderID uint64) string {
	return "escrow:order:" + k.String() + ":" + strconv.FormatUint(orderID, 10)
}

// MarketEscrow holds native currency paid in through direct share purchases
// and pays out sales and redemptions.
func MarketEscrow(marketID string) string { return "escrow:market:" + marketID }

// Posting moves Amount of Asset from one account to another.
type Posting struct {
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Asset  Asset  `json:"asset"`
	Amount uint64 `json:"amount"`
}

// Transfer moves amount between two accounts.
func Transfer(from, to string, asset Asset, amount uint64) Posting {
	return Posting{From: from, To: to, Asset: asset, Amount: amount}
}

// Mint creates amount in account to.
func Mint(to string, asset Asset, amount uint64) Posting {
	return Posting{To: to, Asset: asset, Amount: amount}
}

// Burn destroys amount held by account from.
func Burn(from string, asset Asset, amount uint64) Posting {
	return Posting{From: from, Asset: asset, Amount: amount}
}

// Holding addresses one balance.
type Holding struct {
	Account string
	Asset   Asset
}

// Reader exposes current balances.
type Reader interface {
	Available(ctx context.Context, account string, asset Asset) (uint64, error)
}

// Require fails with ErrInsufficientFunds unless account holds at least amount.
func Require(ctx context.Context, r Reader, account string, asset Asset, amount uint64) error {
	have, err := r.Available(ctx, account, asset)
	if err != nil {
		return err
	}
	if have < amount {
		return fmt.Errorf("%w: %s holds %d %s, needs %d", errs.ErrInsufficientFunds, account, have, asset, amount)
	}
	return nil
}

// Validate rejects postings that neither debit nor credit an account.
func (p Posting) Validate() error {
	if p.From == "" && p.To == "" {
		return fmt.Errorf("%w: posting without accounts", errs.ErrInvalidConfiguration)
	}
	if p.Asset == "" {
		return fmt.Errorf("%w: posting without asset", errs.ErrInvalidConfiguration)
	}
	return nil
}

// Book is an in-memory balance sheet.
type Book map[Holding]uint64

// Apply applies postings in order. On error the book is unchanged.
func (b Book) Apply(postings []Posting) error {
	next, err := b.Plan(postings)
	if err != nil {
		return err
	}
	for h, v := range next {
		if v == 0 {
			delete(b, h)
			continue
		}
		b[h] = v
	}
	return nil
}

// Plan returns the resulting balance of every holding the postings touch,
// without modifying the book.
func (b Book) Plan(postings []Posting) (map[Holding]uint64, error) {
	scratch := make(map[Holding]uint64)
	get := func(h Holding) uint64 {
		if v, ok := scratch[h]; ok {
			return v
		}
		return b[h]
	}
	for _, p := range postings {
		if p.Amount == 0 {
			continue
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if p.From != "" {
			h := Holding{p.From, p.Asset}
			have := get(h)
			if have < p.Amount {
				return nil, fmt.Errorf("%w: %s holds %d %s, needs %d",
					errs.ErrInsufficientFunds, p.From, have, p.Asset, p.Amount)
			}
			scratch[h] = have - p.Amount
		}
		if p.To != "" {
			h := Holding{p.To, p.Asset}
			v, err := fixed.Add(get(h), p.Amount)
			if err != nil {
				return nil, err
			}
			scratch[h] = v
		}
	}
	return scratch, nil
}

// Available implements Reader.
func (b Book) Available(_ context.Context, account string, asset Asset) (uint64, error) {
	return b[Holding{account, asset}], nil
}
