// Package orderbook implements the order lifecycle of an outcome's limit
// order book and the validation and settlement of externally proposed
// matches. The book never searches for matches itself.
//
// Like the amm package, every function takes records by value and returns
// updated copies; nothing is mutated in place.
package orderbook

import (
	"fmt"

	"github.com/atmx/outcome-engine/internal/custody"
	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/fixed"
	"github.com/atmx/outcome-engine/internal/model"
	"github.com/atmx/outcome-engine/internal/outcome"
)

// StatsWindow is the rolling statistics window in seconds.
const StatsWindow int64 = 86_400

// PlaceParams describes a new order.
type PlaceParams struct {
	Owner        string
	Side         model.Side
	Type         model.OrderType
	Price        uint64
	Size         uint64
	ExpiresAt    int64 // 0 = never
	StopPrice    *uint64
	VisibleSize  *uint64
	TWAPInterval *int64
}

// NewBook returns an empty book for key.
func NewBook(key outcome.Key, now int64) model.OrderBook {
	return model.OrderBook{Outcome: key, CreatedAt: now, LastTradeAt: now}
}

// Validate checks p against the rules for its side and type.
func (p PlaceParams) Validate(now int64) error {
	if p.Side != model.Buy && p.Side != model.Sell {
		return fmt.Errorf("%w: unknown side %q", errs.ErrInvalidConfiguration, p.Side)
	}
	if p.Price == 0 {
		return fmt.Errorf("%w: price must be positive", errs.ErrInvalidAmount)
	}
	if p.Size == 0 {
		return fmt.Errorf("%w: size must be positive", errs.ErrInvalidAmount)
	}
	if p.ExpiresAt != 0 && p.ExpiresAt <= now {
		return fmt.Errorf("%w: expires_at %d is not in the future", errs.ErrInvalidConfiguration, p.ExpiresAt)
	}

	switch p.Type {
	case model.Limit:
	case model.StopLoss:
		if p.StopPrice == nil || *p.StopPrice == 0 {
			return fmt.Errorf("%w: stop_loss requires a positive stop_price", errs.ErrInvalidConfiguration)
		}
	case model.Iceberg:
		if p.VisibleSize == nil || *p.VisibleSize == 0 || *p.VisibleSize > p.Size {
			return fmt.Errorf("%w: iceberg requires 0 < visible_size <= size", errs.ErrInvalidConfiguration)
		}
	case model.TWAP:
		if p.TWAPInterval == nil || *p.TWAPInterval <= 0 {
			return fmt.Errorf("%w: twap requires a positive twap_interval", errs.ErrInvalidConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown order type %q", errs.ErrInvalidConfiguration, p.Type)
	}

	if p.StopPrice != nil && p.Type != model.StopLoss {
		return fmt.Errorf("%w: stop_price only applies to stop_loss orders", errs.ErrInvalidConfiguration)
	}
	if p.VisibleSize != nil && p.Type != model.Iceberg {
		return fmt.Errorf("%w: visible_size only applies to iceberg orders", errs.ErrInvalidConfiguration)
	}
	if p.TWAPInterval != nil && p.Type != model.TWAP {
		return fmt.Errorf("%w: twap_interval only applies to twap orders", errs.ErrInvalidConfiguration)
	}
	return nil
}

// EscrowAmount is what an order locks: price*size native for buys, size
// shares for sells.
func EscrowAmount(side model.Side, price, size uint64) (uint64, error) {
	if side == model.Buy {
		return fixed.Mul(price, size)
	}
	return size, nil
}

// Place validates p and returns the new order along with the book holding
// the advanced order counter and aggregates. Quotes are refreshed
// separately from the resting orders.
func Place(b model.OrderBook, p PlaceParams, now int64) (model.OrderBook, model.Order, error) {
	if err := p.Validate(now); err != nil {
		return b, model.Order{}, err
	}
	if _, err := EscrowAmount(p.Side, p.Price, p.Size); err != nil {
		return b, model.Order{}, err
	}
	nextID, err := fixed.Add(b.NextOrderID, 1)
	if err != nil {
		return b, model.Order{}, err
	}

	o := model.Order{
		ID:            b.NextOrderID,
		Owner:         p.Owner,
		Outcome:       b.Outcome,
		Side:          p.Side,
		Type:          p.Type,
		Price:         p.Price,
		Size:          p.Size,
		RemainingSize: p.Size,
		Status:        model.Open,
		StopPrice:     copyU64(p.StopPrice),
		VisibleSize:   copyU64(p.VisibleSize),
		CreatedAt:     now,
		ExpiresAt:     p.ExpiresAt,
		UpdatedAt:     now,
	}
	if p.TWAPInterval != nil {
		interval, last := *p.TWAPInterval, now
		o.TWAPInterval = &interval
		o.TWAPLastExecution = &last
	}

	b.NextOrderID = nextID
	b.ActiveOrders = fixed.SatAdd(b.ActiveOrders, 1)
	if p.Side == model.Buy {
		b.TotalBuyOrders = fixed.SatAdd(b.TotalBuyOrders, 1)
	} else {
		b.TotalSellOrders = fixed.SatAdd(b.TotalSellOrders, 1)
	}
	return b, o, nil
}

// Cancel cancels an active order on behalf of caller and returns the
// escrow to refund.
func Cancel(b model.OrderBook, o model.Order, caller string, now int64) (model.OrderBook, model.Order, uint64, error) {
	if o.Owner != caller {
		return b, o, 0, fmt.Errorf("%w: order %d belongs to another owner", errs.ErrUnauthorized, o.ID)
	}
	return closeOrder(b, o, model.Cancelled, now)
}

// Expire closes an active order whose expiry has passed and returns the
// escrow to refund. Anyone may expire an order.
func Expire(b model.OrderBook, o model.Order, now int64) (model.OrderBook, model.Order, uint64, error) {
	if !o.IsExpired(now) {
		return b, o, 0, fmt.Errorf("%w: order %d has not expired", errs.ErrInvalidConfiguration, o.ID)
	}
	return closeOrder(b, o, model.Expired, now)
}

func closeOrder(b model.OrderBook, o model.Order, status model.OrderStatus, now int64) (model.OrderBook, model.Order, uint64, error) {
	if !o.IsActive() {
		return b, o, 0, fmt.Errorf("%w: order %d is %s", errs.ErrInvalidConfiguration, o.ID, o.Status)
	}
	refund, err := EscrowAmount(o.Side, o.Price, o.RemainingSize)
	if err != nil {
		return b, o, 0, err
	}
	o.Status = status
	o.UpdatedAt = now
	return retire(b, o.Side), o, refund, nil
}

// retire removes one active order of side from the aggregates.
func retire(b model.OrderBook, side model.Side) model.OrderBook {
	b.ActiveOrders = fixed.SatSub(b.ActiveOrders, 1)
	if side == model.Buy {
		b.TotalBuyOrders = fixed.SatSub(b.TotalBuyOrders, 1)
	} else {
		b.TotalSellOrders = fixed.SatSub(b.TotalSellOrders, 1)
	}
	return b
}

// ApplyFill records a fill of size at price:
//
//	avg_fill_price = (avg*prev_filled + price*size) / filled
//
// The order becomes Filled exactly when nothing remains.
func ApplyFill(o model.Order, size, price, fee uint64, now int64) (model.Order, error) {
	if size == 0 || size > o.RemainingSize {
		return o, fmt.Errorf("%w: fill of %d against remaining %d", errs.ErrInvalidAmount, size, o.RemainingSize)
	}
	filled, err := fixed.Add(o.FilledSize, size)
	if err != nil {
		return o, err
	}
	avg, err := fixed.WeightedAverage(o.AvgFillPrice, o.FilledSize, price, size)
	if err != nil {
		return o, err
	}
	fees, err := fixed.Add(o.FeesPaid, fee)
	if err != nil {
		return o, err
	}

	o.FilledSize = filled
	o.RemainingSize -= size
	o.AvgFillPrice = avg
	o.FeesPaid = fees
	o.UpdatedAt = now
	if o.RemainingSize == 0 {
		o.Status = model.Filled
	} else {
		o.Status = model.PartiallyFilled
	}
	return o, nil
}

func copyU64(v *uint64) *uint64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// EscrowAsset is the asset an order of side locks.
func EscrowAsset(o model.Order) custody.Asset {
	if o.Side == model.Buy {
		return custody.Native
	}
	return custody.ShareAsset(o.Outcome)
}

// LockPostings moves a new order's escrow out of the owner's wallet.
func LockPostings(o model.Order) ([]custody.Posting, error) {
	amount, err := EscrowAmount(o.Side, o.Price, o.Size)
	if err != nil {
		return nil, err
	}
	return []custody.Posting{
		custody.Transfer(custody.User(o.Owner), custody.OrderEscrow(o.Outcome, o.ID), EscrowAsset(o), amount),
	}, nil
}

// RefundPostings returns refund from a closed order's escrow to its owner.
func RefundPostings(o model.Order, refund uint64) []custody.Posting {
	if refund == 0 {
		return nil
	}
	return []custody.Posting{
		custody.Transfer(custody.OrderEscrow(o.Outcome, o.ID), custody.User(o.Owner), EscrowAsset(o), refund),
	}
}
