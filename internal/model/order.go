package model

import (
	"math"

	"github.com/atmx/outcome-engine/internal/fixed"
	"github.com/atmx/outcome-engine/internal/outcome"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderType selects the order's execution semantics.
type OrderType string

const (
	Limit    OrderType = "limit"
	StopLoss OrderType = "stop_loss"
	Iceberg  OrderType = "iceberg"
	TWAP     OrderType = "twap"
)

// OrderStatus is the lifecycle state of an order. Filled, Cancelled and
// Expired are terminal.
type OrderStatus string

const (
	Open            OrderStatus = "open"
	PartiallyFilled OrderStatus = "partially_filled"
	Filled          OrderStatus = "filled"
	Cancelled       OrderStatus = "cancelled"
	Expired         OrderStatus = "expired"
)

// Order is a resting order on an outcome's book. Order prices are native
// base units per share base unit, not 1e9-scaled.
type Order struct {
	ID                uint64      `json:"order_id" db:"order_id"`
	Owner             string      `json:"owner" db:"owner"`
	Outcome           outcome.Key `json:"outcome"`
	Side              Side        `json:"side" db:"side"`
	Type              OrderType   `json:"order_type" db:"order_type"`
	Price             uint64      `json:"price" db:"price"`
	Size              uint64      `json:"size" db:"size"`
	RemainingSize     uint64      `json:"remaining_size" db:"remaining_size"`
	FilledSize        uint64      `json:"filled_size" db:"filled_size"`
	AvgFillPrice      uint64      `json:"avg_fill_price" db:"avg_fill_price"`
	Status            OrderStatus `json:"status" db:"status"`
	StopPrice         *uint64     `json:"stop_price,omitempty" db:"stop_price"`
	VisibleSize       *uint64     `json:"visible_size,omitempty" db:"visible_size"`
	TWAPInterval      *int64      `json:"twap_interval,omitempty" db:"twap_interval"`
	TWAPLastExecution *int64      `json:"twap_last_execution,omitempty" db:"twap_last_execution"`
	FeesPaid          uint64      `json:"fees_paid" db:"fees_paid"`
	CreatedAt         int64       `json:"created_at" db:"created_at"`
	ExpiresAt         int64       `json:"expires_at" db:"expires_at"` // 0 = never
	UpdatedAt         int64       `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the order can still be filled or cancelled.
func (o *Order) IsActive() bool {
	return o.Status == Open || o.Status == PartiallyFilled
}

// IsExpired reports whether the order has an expiry at or before now.
func (o *Order) IsExpired(now int64) bool {
	return o.ExpiresAt > 0 && now >= o.ExpiresAt
}

// IsStopTriggered reports whether a stop order's trigger has been crossed.
// Buy stops trigger at or above the stop price, sell stops at or below.
func (o *Order) IsStopTriggered(currentPrice uint64) bool {
	if o.StopPrice == nil {
		return false
	}
	if o.Side == Buy {
		return currentPrice >= *o.StopPrice
	}
	return currentPrice <= *o.StopPrice
}

// DisplayedSize returns the size disclosed to the book: the iceberg slice
// capped at the remaining size, or the full remaining size.
func (o *Order) DisplayedSize() uint64 {
	if o.VisibleSize == nil {
		return o.RemainingSize
	}
	return min(*o.VisibleSize, o.RemainingSize)
}

// ShouldExecuteTWAP reports whether the next TWAP slice is due.
func (o *Order) ShouldExecuteTWAP(now int64) bool {
	if o.TWAPInterval == nil || o.TWAPLastExecution == nil {
		return false
	}
	last, interval := *o.TWAPLastExecution, *o.TWAPInterval
	// A due time past MaxInt64 is never reached.
	if last > 0 && interval > math.MaxInt64-last {
		return false
	}
	return now >= last+interval
}

// FillPercentage returns filled/size as a whole percentage.
func (o *Order) FillPercentage() uint8 {
	if o.Size == 0 {
		return 0
	}
	p, err := fixed.MulDiv(o.FilledSize, 100, o.Size)
	if err != nil || p > 100 {
		return 100
	}
	return uint8(p)
}

// OrderBook holds the per-outcome aggregates and counters of the book.
type OrderBook struct {
	Outcome         outcome.Key `json:"outcome"`
	NextOrderID     uint64      `json:"next_order_id" db:"next_order_id"`
	ActiveOrders    uint64      `json:"active_orders" db:"active_orders"`
	TotalBuyOrders  uint64      `json:"total_buy_orders" db:"total_buy_orders"`
	TotalSellOrders uint64      `json:"total_sell_orders" db:"total_sell_orders"`
	BestBid         uint64      `json:"best_bid" db:"best_bid"`
	BestAsk         uint64      `json:"best_ask" db:"best_ask"`
	Spread          uint64      `json:"spread" db:"spread"`
	MidPrice        uint64      `json:"mid_price" db:"mid_price"`
	LastTradePrice  uint64      `json:"last_trade_price" db:"last_trade_price"`
	Volume24h       uint64      `json:"volume_24h" db:"volume_24h"`
	TradeCount      uint64      `json:"trade_count" db:"trade_count"`
	LastTradeAt     int64       `json:"last_trade_at" db:"last_trade_at"`
	High24h         uint64      `json:"high_24h" db:"high_24h"`
	Low24h          uint64      `json:"low_24h" db:"low_24h"`
	Price24hAgo     uint64      `json:"price_24h_ago" db:"price_24h_ago"`
	CreatedAt       int64       `json:"created_at" db:"created_at"`
}

// Trade is an immutable record of one settled match.
type Trade struct {
	ID          uint64      `json:"trade_id" db:"trade_id"`
	Outcome     outcome.Key `json:"outcome"`
	BuyOrderID  uint64      `json:"buy_order_id" db:"buy_order_id"`
	SellOrderID uint64      `json:"sell_order_id" db:"sell_order_id"`
	Buyer       string      `json:"buyer" db:"buyer"`
	Seller      string      `json:"seller" db:"seller"`
	Price       uint64      `json:"price" db:"price"`
	Size        uint64      `json:"size" db:"size"`
	BuyerFee    uint64      `json:"buyer_fee" db:"buyer_fee"`
	SellerFee   uint64      `json:"seller_fee" db:"seller_fee"`
	ExecutedAt  int64       `json:"executed_at" db:"executed_at"`
}
