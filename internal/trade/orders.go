package trade

import (
	"context"
	"log/slog"

	"github.com/atmx/outcome-engine/internal/events"
	"github.com/atmx/outcome-engine/internal/fixed"
	"github.com/atmx/outcome-engine/internal/ledger"
	"github.com/atmx/outcome-engine/internal/metrics"
	"github.com/atmx/outcome-engine/internal/model"
	"github.com/atmx/outcome-engine/internal/orderbook"
	"github.com/atmx/outcome-engine/internal/outcome"
	"github.com/atmx/outcome-engine/internal/store"
)

// OrderClose is the result of cancelling or expiring an order.
type OrderClose struct {
	Order  model.Order `json:"order"`
	Refund uint64      `json:"refund"`
}

// PlaceOrder rests a new order on the outcome's book and moves its escrow
// out of the owner's wallet.
func (e *Engine) PlaceOrder(ctx context.Context, key outcome.Key, p orderbook.PlaceParams) (model.Order, error) {
	var placed model.Order
	err := e.mutate(ctx, "place_order", func(now int64, b *store.Batch) ([]events.Event, error) {
		if _, err := e.openMarket(ctx, key); err != nil {
			return nil, err
		}
		if _, err := e.share(ctx, key); err != nil {
			return nil, err
		}
		book, err := e.book(ctx, key, now)
		if err != nil {
			return nil, err
		}
		book, o, err := orderbook.Place(book, p, now)
		if err != nil {
			return nil, err
		}
		lock, err := orderbook.LockPostings(o)
		if err != nil {
			return nil, err
		}
		if book, err = e.requote(ctx, book, o); err != nil {
			return nil, err
		}

		b.PutBook(book)
		b.PutOrder(o)
		b.Post(lock...)
		placed = o
		return []events.Event{events.New(events.OrderPlaced, key.MarketID, key.String(), o, now)}, nil
	})
	if err != nil {
		return model.Order{}, err
	}

	metrics.OrdersTotal.WithLabelValues("placed", string(placed.Side)).Inc()
	slog.Info("order placed", "ticker", key.String(), "order_id", placed.ID, "owner", placed.Owner,
		"side", placed.Side, "type", placed.Type, "price", placed.Price, "size", placed.Size)
	return placed, nil
}

// CancelOrder closes caller's order and refunds its remaining escrow.
// Cancellation stays open after resolution so escrow can be recovered.
func (e *Engine) CancelOrder(ctx context.Context, key outcome.Key, id uint64, caller string) (OrderClose, error) {
	return e.closeOrder(ctx, "cancel_order", events.OrderCancelled, key, id,
		func(b model.OrderBook, o model.Order, now int64) (model.OrderBook, model.Order, uint64, error) {
			return orderbook.Cancel(b, o, caller, now)
		})
}

// ExpireOrder closes an order whose expiry has passed. Anyone may call it.
func (e *Engine) ExpireOrder(ctx context.Context, key outcome.Key, id uint64) (OrderClose, error) {
	return e.closeOrder(ctx, "expire_order", events.OrderExpired, key, id, orderbook.Expire)
}

type closeFunc func(b model.OrderBook, o model.Order, now int64) (model.OrderBook, model.Order, uint64, error)

func (e *Engine) closeOrder(ctx context.Context, op string, evType events.Type, key outcome.Key, id uint64, fn closeFunc) (OrderClose, error) {
	var res OrderClose
	err := e.mutate(ctx, op, func(now int64, b *store.Batch) ([]events.Event, error) {
		if _, err := e.market(ctx, key); err != nil {
			return nil, err
		}
		book, err := e.book(ctx, key, now)
		if err != nil {
			return nil, err
		}
		o, err := e.order(ctx, key, id)
		if err != nil {
			return nil, err
		}
		book, o, refund, err := fn(book, o, now)
		if err != nil {
			return nil, err
		}
		if book, err = e.requote(ctx, book, o); err != nil {
			return nil, err
		}

		b.PutBook(book)
		b.PutOrder(o)
		b.Post(orderbook.RefundPostings(o, refund)...)
		res = OrderClose{Order: o, Refund: refund}
		return []events.Event{events.New(evType, key.MarketID, key.String(), res, now)}, nil
	})
	if err != nil {
		return OrderClose{}, err
	}

	metrics.OrdersTotal.WithLabelValues(string(res.Order.Status), string(res.Order.Side)).Inc()
	slog.Info("order closed", "ticker", key.String(), "order_id", id,
		"status", res.Order.Status, "refund", res.Refund)
	return res, nil
}

// SettleMatch executes a proposed match between a resting buy and sell.
// Both owners' ledger positions move at the match price.
func (e *Engine) SettleMatch(ctx context.Context, key outcome.Key, m orderbook.Match) (model.Trade, error) {
	var trade model.Trade
	var total uint64
	err := e.mutate(ctx, "settle_match", func(now int64, b *store.Batch) ([]events.Event, error) {
		if _, err := e.openMarket(ctx, key); err != nil {
			return nil, err
		}
		book, err := e.book(ctx, key, now)
		if err != nil {
			return nil, err
		}
		buy, err := e.order(ctx, key, m.BuyOrderID)
		if err != nil {
			return nil, err
		}
		sell, err := e.order(ctx, key, m.SellOrderID)
		if err != nil {
			return nil, err
		}
		s, err := orderbook.Settle(book, buy, sell, m, now)
		if err != nil {
			return nil, err
		}
		if err := e.checkLimit(ctx, s.Buy.Owner, key, m.Size); err != nil {
			return nil, err
		}

		// Book prices are unscaled; the ledger keeps 1e9-scaled prices.
		price, err := fixed.Mul(m.Price, fixed.Scale)
		if err != nil {
			return nil, err
		}
		buyerBal, err := e.balance(ctx, s.Buy.Owner, key)
		if err != nil {
			return nil, err
		}
		sellerBal, err := e.balance(ctx, s.Sell.Owner, key)
		if err != nil {
			return nil, err
		}
		if s.Buy.Owner == s.Sell.Owner {
			// Self-trade: both legs apply to one record.
			if buyerBal, _, err = ledger.Sell(buyerBal, m.Size, price, now); err != nil {
				return nil, err
			}
			if buyerBal, err = ledger.Buy(buyerBal, m.Size, price, now); err != nil {
				return nil, err
			}
			b.PutBalance(buyerBal)
		} else {
			if sellerBal, _, err = ledger.Sell(sellerBal, m.Size, price, now); err != nil {
				return nil, err
			}
			if buyerBal, err = ledger.Buy(buyerBal, m.Size, price, now); err != nil {
				return nil, err
			}
			b.PutBalance(sellerBal)
			b.PutBalance(buyerBal)
		}

		st, err := e.share(ctx, key)
		if err != nil {
			return nil, err
		}
		st = ledger.AddVolume(ledger.UpdatePriceStats(st, price, now), s.Total)

		next, err := e.requote(ctx, s.Book, s.Buy, s.Sell)
		if err != nil {
			return nil, err
		}
		b.PutBook(next)
		b.PutShare(st)
		b.PutOrder(s.Buy)
		b.PutOrder(s.Sell)
		b.AddTrade(s.Trade)
		b.Post(s.Postings()...)

		trade, total = s.Trade, s.Total
		return []events.Event{events.New(events.TradeSettled, key.MarketID, key.String(), s.Trade, now)}, nil
	})
	if err != nil {
		return model.Trade{}, err
	}

	metrics.TradesTotal.Inc()
	metrics.MarketVolume.WithLabelValues(key.MarketID, "book").Add(float64(total))
	slog.Info("trade settled", "ticker", key.String(), "trade_id", trade.ID,
		"buy_order", trade.BuyOrderID, "sell_order", trade.SellOrderID,
		"price", trade.Price, "size", trade.Size, "buyer_fee", trade.BuyerFee, "seller_fee", trade.SellerFee)
	return trade, nil
}

// requote refreshes the book's quotes from its resting orders, with
// changed standing in for their stored versions.
func (e *Engine) requote(ctx context.Context, book model.OrderBook, changed ...model.Order) (model.OrderBook, error) {
	resting, err := e.store.ListActiveOrders(ctx, book.Outcome)
	if err != nil {
		return book, err
	}
	byID := make(map[uint64]model.Order, len(changed))
	for _, o := range changed {
		byID[o.ID] = o
	}
	for i, o := range resting {
		if c, ok := byID[o.ID]; ok {
			resting[i] = c
			delete(byID, o.ID)
		}
	}
	for _, o := range changed {
		if _, ok := byID[o.ID]; ok {
			resting = append(resting, o)
		}
	}
	return orderbook.Refresh(book, resting), nil
}
