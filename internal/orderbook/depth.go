package orderbook

import (
	"github.com/google/btree"

	"github.com/atmx/outcome-engine/internal/fixed"
	"github.com/atmx/outcome-engine/internal/model"
)

// Level aggregates the displayed size resting at one price.
type Level struct {
	Price  uint64 `json:"price"`
	Size   uint64 `json:"size"`
	Orders uint64 `json:"orders"`
}

// Depth indexes active orders by price level. Both sides iterate from the
// best price outward.
type Depth struct {
	bids *btree.BTreeG[*Level]
	asks *btree.BTreeG[*Level]
}

func lessBid(a, b *Level) bool { return a.Price > b.Price }
func lessAsk(a, b *Level) bool { return a.Price < b.Price }

// NewDepth builds a depth index from orders. Inactive orders are skipped and
// iceberg orders contribute only their visible size.
func NewDepth(orders []model.Order) *Depth {
	d := &Depth{
		bids: btree.NewG(2, lessBid),
		asks: btree.NewG(2, lessAsk),
	}
	for _, o := range orders {
		d.Add(o)
	}
	return d
}

// Add inserts an active order into its price level.
func (d *Depth) Add(o model.Order) {
	if !o.IsActive() {
		return
	}
	tree := d.asks
	if o.Side == model.Buy {
		tree = d.bids
	}
	lvl, ok := tree.Get(&Level{Price: o.Price})
	if !ok {
		lvl = &Level{Price: o.Price}
		tree.ReplaceOrInsert(lvl)
	}
	lvl.Size = fixed.SatAdd(lvl.Size, o.DisplayedSize())
	lvl.Orders++
}

// BestBid returns the highest resting buy price, or 0.
func (d *Depth) BestBid() uint64 {
	if lvl, ok := d.bids.Min(); ok {
		return lvl.Price
	}
	return 0
}

// BestAsk returns the lowest resting sell price, or 0.
func (d *Depth) BestAsk() uint64 {
	if lvl, ok := d.asks.Min(); ok {
		return lvl.Price
	}
	return 0
}

// Snapshot returns up to n levels per side, best first. n <= 0 returns
// every level.
func (d *Depth) Snapshot(n int) (bids, asks []Level) {
	return collect(d.bids, n), collect(d.asks, n)
}

func collect(tree *btree.BTreeG[*Level], n int) []Level {
	out := make([]Level, 0, tree.Len())
	tree.Ascend(func(l *Level) bool {
		out = append(out, *l)
		return n <= 0 || len(out) < n
	})
	return out
}

// Refresh recomputes the book's quotes from its resting orders. A crossed
// book awaiting settlement reports a zero spread.
func Refresh(b model.OrderBook, resting []model.Order) model.OrderBook {
	d := NewDepth(resting)
	b.BestBid = d.BestBid()
	b.BestAsk = d.BestAsk()
	b.Spread = 0
	b.MidPrice = 0
	if b.BestBid > 0 && b.BestAsk > 0 {
		b.Spread = fixed.SatSub(b.BestAsk, b.BestBid)
		b.MidPrice = b.BestBid/2 + b.BestAsk/2 + (b.BestBid%2+b.BestAsk%2)/2
	}
	return b
}
