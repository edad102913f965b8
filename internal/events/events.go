// Package events carries notifications of committed state changes to
// subscribers: WebSocket clients and, when configured, a Redis stream.
//
// Events are published after a commit succeeds. Delivery is best effort
// and never fails the operation that produced the event.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Type names an event.
type Type string

const (
	ShareBought      Type = "share_bought"
	ShareSold        Type = "share_sold"
	SharesRedeemed   Type = "shares_redeemed"
	SwapExecuted     Type = "swap_executed"
	LiquidityAdded   Type = "liquidity_added"
	LiquidityRemoved Type = "liquidity_removed"
	OrderPlaced      Type = "order_placed"
	OrderCancelled   Type = "order_cancelled"
	OrderExpired     Type = "order_expired"
	TradeSettled     Type = "trade_settled"
	MarketCreated    Type = "market_created"
	MarketResolved   Type = "market_resolved"
)

// Event is one notification.
type Event struct {
	ID       string `json:"id"`
	Type     Type   `json:"type"`
	Ticker   string `json:"ticker,omitempty"`
	MarketID string `json:"market_id"`
	Payload  any    `json:"payload,omitempty"`
	At       int64  `json:"at"`
}

// New returns an event with a fresh id.
func New(t Type, marketID, ticker string, payload any, at int64) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     t,
		Ticker:   ticker,
		MarketID: marketID,
		Payload:  payload,
		At:       at,
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi fans an event out to every publisher. A failing publisher does not
// stop delivery to the rest.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			slog.Warn("event publish failed", "type", e.Type, "id", e.ID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of what has been published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the types of the published events, in order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
