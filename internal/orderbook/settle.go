package orderbook

import (
	"fmt"

	"github.com/atmx/outcome-engine/internal/custody"
	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/fixed"
	"github.com/atmx/outcome-engine/internal/model"
)

// MaxMatchFeeBps caps the fee charged to each side of a match.
const MaxMatchFeeBps uint64 = 1_000

// Match is a proposed pairing of a resting buy and sell.
type Match struct {
	BuyOrderID  uint64 `json:"buy_order_id"`
	SellOrderID uint64 `json:"sell_order_id"`
	Size        uint64 `json:"match_size"`
	Price       uint64 `json:"match_price"`
	FeeBps      uint64 `json:"fee_bps"`
}

// Settlement is the outcome of a successful match.
type Settlement struct {
	Book  model.OrderBook
	Buy   model.Order
	Sell  model.Order
	Trade model.Trade

	// Reserved is the part of the buyer's escrow released by this match.
	Reserved uint64
	// Total is match_price*match_size.
	Total uint64
}

// Settle validates m against the two resting orders and applies it. The
// book's trade counter becomes the trade id.
func Settle(b model.OrderBook, buy, sell model.Order, m Match, now int64) (Settlement, error) {
	if err := checkMatch(b, buy, sell, m, now); err != nil {
		return Settlement{}, err
	}

	total, err := fixed.Mul(m.Price, m.Size)
	if err != nil {
		return Settlement{}, err
	}
	reserved, err := fixed.Mul(buy.Price, m.Size)
	if err != nil {
		return Settlement{}, err
	}
	fee, err := fixed.Bps(total, m.FeeBps)
	if err != nil {
		return Settlement{}, err
	}

	filledBuy, err := ApplyFill(buy, m.Size, m.Price, fee, now)
	if err != nil {
		return Settlement{}, err
	}
	filledSell, err := ApplyFill(sell, m.Size, m.Price, fee, now)
	if err != nil {
		return Settlement{}, err
	}
	filledBuy = markTWAP(filledBuy, now)
	filledSell = markTWAP(filledSell, now)

	trade := model.Trade{
		ID:          b.TradeCount,
		Outcome:     b.Outcome,
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		Buyer:       buy.Owner,
		Seller:      sell.Owner,
		Price:       m.Price,
		Size:        m.Size,
		BuyerFee:    fee,
		SellerFee:   fee,
		ExecutedAt:  now,
	}

	next := recordTrade(b, m.Price, total, now)
	if filledBuy.Status == model.Filled {
		next = retire(next, model.Buy)
	}
	if filledSell.Status == model.Filled {
		next = retire(next, model.Sell)
	}

	return Settlement{
		Book:     next,
		Buy:      filledBuy,
		Sell:     filledSell,
		Trade:    trade,
		Reserved: reserved,
		Total:    total,
	}, nil
}

func checkMatch(b model.OrderBook, buy, sell model.Order, m Match, now int64) error {
	if buy.Side != model.Buy || sell.Side != model.Sell {
		return fmt.Errorf("%w: match needs a buy and a sell", errs.ErrInvalidConfiguration)
	}
	if buy.Outcome != b.Outcome || sell.Outcome != b.Outcome {
		return fmt.Errorf("%w: orders belong to another book", errs.ErrInvalidConfiguration)
	}
	for _, o := range []model.Order{buy, sell} {
		if !o.IsActive() {
			return fmt.Errorf("%w: order %d is %s", errs.ErrInvalidConfiguration, o.ID, o.Status)
		}
		if o.IsExpired(now) {
			return fmt.Errorf("%w: order %d has expired", errs.ErrInvalidConfiguration, o.ID)
		}
	}
	if m.Size == 0 || m.Size > buy.RemainingSize || m.Size > sell.RemainingSize {
		return fmt.Errorf("%w: match size %d exceeds remaining %d/%d",
			errs.ErrInvalidAmount, m.Size, buy.RemainingSize, sell.RemainingSize)
	}
	if m.Price == 0 || m.Price > buy.Price || m.Price < sell.Price {
		return fmt.Errorf("%w: match price %d outside [%d, %d]",
			errs.ErrInvalidConfiguration, m.Price, sell.Price, buy.Price)
	}
	if m.FeeBps > MaxMatchFeeBps {
		return fmt.Errorf("%w: fee_bps %d exceeds %d", errs.ErrInvalidConfiguration, m.FeeBps, MaxMatchFeeBps)
	}
	return nil
}

func markTWAP(o model.Order, now int64) model.Order {
	if o.Type == model.TWAP {
		last := now
		o.TWAPLastExecution = &last
	}
	return o
}

// recordTrade updates the book's rolling statistics. The window resets when
// more than StatsWindow has passed since the previous trade.
func recordTrade(b model.OrderBook, price, volume uint64, now int64) model.OrderBook {
	if now-b.LastTradeAt > StatsWindow || b.TradeCount == 0 {
		b.Volume24h = volume
		b.High24h = price
		b.Low24h = price
		b.Price24hAgo = b.LastTradePrice
		if b.Price24hAgo == 0 {
			b.Price24hAgo = price
		}
	} else {
		b.Volume24h = fixed.SatAdd(b.Volume24h, volume)
		b.High24h = max(b.High24h, price)
		if b.Low24h == 0 || price < b.Low24h {
			b.Low24h = price
		}
	}
	b.TradeCount = fixed.SatAdd(b.TradeCount, 1)
	b.LastTradePrice = price
	b.LastTradeAt = now
	return b
}

// PriceChange24h returns the move of the last trade price over the window
// in basis points.
func PriceChange24h(b model.OrderBook) int64 {
	c, err := fixed.ChangeBps(b.LastTradePrice, b.Price24hAgo)
	if err != nil {
		return 0
	}
	return c
}

// Postings moves the custody of a settlement:
//
//   - the sell escrow delivers match_size shares to the buyer
//   - the buy escrow releases buy.price*match_size: the seller receives
//     total minus seller_fee, the protocol both fees, and any price
//     improvement left after the buyer fee goes back to the buyer
//   - a buyer fee larger than the improvement is debited from the buyer
func (s Settlement) Postings() []custody.Posting {
	key := s.Book.Outcome
	buyEscrow := custody.OrderEscrow(key, s.Buy.ID)
	sellEscrow := custody.OrderEscrow(key, s.Sell.ID)
	buyer, seller := custody.User(s.Buy.Owner), custody.User(s.Sell.Owner)
	share := custody.ShareAsset(key)

	improvement := s.Reserved - s.Total
	feeFromEscrow := min(s.Trade.BuyerFee, improvement)

	ps := []custody.Posting{
		custody.Transfer(sellEscrow, buyer, share, s.Trade.Size),
		custody.Transfer(buyEscrow, seller, custody.Native, s.Total-s.Trade.SellerFee),
		custody.Transfer(buyEscrow, custody.Protocol, custody.Native, s.Trade.SellerFee+feeFromEscrow),
	}
	if rest := improvement - feeFromEscrow; rest > 0 {
		ps = append(ps, custody.Transfer(buyEscrow, buyer, custody.Native, rest))
	}
	if owed := s.Trade.BuyerFee - feeFromEscrow; owed > 0 {
		ps = append(ps, custody.Transfer(buyer, custody.Protocol, custody.Native, owed))
	}
	return ps
}
