package orderbook

import (
	"context"
	"errors"
	"testing"

	"pgregory.net/rapid"

	"github.com/atmx/outcome-engine/internal/custody"
	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/model"
	"github.com/atmx/outcome-engine/internal/outcome"
)

var key = outcome.Key{MarketID: "m1", Index: 0}

func u64(v uint64) *uint64 { return &v }
func i64(v int64) *int64   { return &v }

func place(t *testing.T, b model.OrderBook, p PlaceParams) (model.OrderBook, model.Order) {
	t.Helper()
	b, o, err := Place(b, p, 100)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	return b, o
}

// --- Placement ---

func TestPlace_AssignsSequentialIDs(t *testing.T) {
	b := NewBook(key, 0)
	b, first := place(t, b, PlaceParams{Owner: "alice", Side: model.Buy, Type: model.Limit, Price: 100, Size: 10})
	b, second := place(t, b, PlaceParams{Owner: "bob", Side: model.Sell, Type: model.Limit, Price: 110, Size: 5})

	if first.ID != 0 || second.ID != 1 {
		t.Errorf("ids = %d, %d, want 0, 1", first.ID, second.ID)
	}
	if b.NextOrderID != 2 || b.ActiveOrders != 2 || b.TotalBuyOrders != 1 || b.TotalSellOrders != 1 {
		t.Errorf("unexpected aggregates: %+v", b)
	}
	if first.Status != model.Open || first.RemainingSize != 10 {
		t.Errorf("unexpected order: %+v", first)
	}
}

func TestPlace_Validation(t *testing.T) {
	cases := []struct {
		name string
		p    PlaceParams
		want error
	}{
		{"zero price", PlaceParams{Side: model.Buy, Type: model.Limit, Size: 1}, errs.ErrInvalidAmount},
		{"zero size", PlaceParams{Side: model.Buy, Type: model.Limit, Price: 1}, errs.ErrInvalidAmount},
		{"past expiry", PlaceParams{Side: model.Buy, Type: model.Limit, Price: 1, Size: 1, ExpiresAt: 100}, errs.ErrInvalidConfiguration},
		{"stop without price", PlaceParams{Side: model.Sell, Type: model.StopLoss, Price: 1, Size: 1}, errs.ErrInvalidConfiguration},
		{"iceberg visible too large", PlaceParams{Side: model.Sell, Type: model.Iceberg, Price: 1, Size: 5, VisibleSize: u64(6)}, errs.ErrInvalidConfiguration},
		{"iceberg visible zero", PlaceParams{Side: model.Sell, Type: model.Iceberg, Price: 1, Size: 5, VisibleSize: u64(0)}, errs.ErrInvalidConfiguration},
		{"twap without interval", PlaceParams{Side: model.Buy, Type: model.TWAP, Price: 1, Size: 1}, errs.ErrInvalidConfiguration},
		{"stray stop price", PlaceParams{Side: model.Buy, Type: model.Limit, Price: 1, Size: 1, StopPrice: u64(1)}, errs.ErrInvalidConfiguration},
		{"unknown type", PlaceParams{Side: model.Buy, Type: "market", Price: 1, Size: 1}, errs.ErrInvalidConfiguration},
		{"escrow overflow", PlaceParams{Side: model.Buy, Type: model.Limit, Price: 1 << 40, Size: 1 << 40}, errs.ErrArithmeticOverflow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Place(NewBook(key, 0), tc.p, 100)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestPlace_TWAPStartsClock(t *testing.T) {
	_, o := place(t, NewBook(key, 0), PlaceParams{Owner: "a", Side: model.Buy, Type: model.TWAP, Price: 5, Size: 10, TWAPInterval: i64(60)})
	if o.TWAPLastExecution == nil || *o.TWAPLastExecution != 100 {
		t.Fatalf("twap_last_execution = %v", o.TWAPLastExecution)
	}
	if o.ShouldExecuteTWAP(159) || !o.ShouldExecuteTWAP(160) {
		t.Error("twap slice timing wrong")
	}
}

func TestLockPostings(t *testing.T) {
	_, buy := place(t, NewBook(key, 0), PlaceParams{Owner: "a", Side: model.Buy, Type: model.Limit, Price: 100, Size: 50})
	ps, err := LockPostings(buy)
	if err != nil {
		t.Fatal(err)
	}
	want := custody.Transfer("user:a", "escrow:order:m1:0:0", custody.Native, 5000)
	if len(ps) != 1 || ps[0] != want {
		t.Errorf("postings = %+v, want %+v", ps, want)
	}
}

// --- Cancel and expire ---

func TestCancel_PartiallyFilledRefundsRemaining(t *testing.T) {
	b, o := place(t, NewBook(key, 0), PlaceParams{Owner: "alice", Side: model.Buy, Type: model.Limit, Price: 100, Size: 50})
	o, err := ApplyFill(o, 20, 95, 0, 150)
	if err != nil {
		t.Fatal(err)
	}

	b, o, refund, err := Cancel(b, o, "alice", 200)
	if err != nil {
		t.Fatal(err)
	}
	if refund != 3000 {
		t.Errorf("refund = %d, want 3000", refund)
	}
	if o.Status != model.Cancelled || b.ActiveOrders != 0 || b.TotalBuyOrders != 0 {
		t.Errorf("order %s, book %+v", o.Status, b)
	}

	if _, _, _, err := Cancel(b, o, "alice", 201); !errors.Is(err, errs.ErrInvalidConfiguration) {
		t.Errorf("second cancel err = %v", err)
	}
}

func TestCancel_RequiresOwner(t *testing.T) {
	b, o := place(t, NewBook(key, 0), PlaceParams{Owner: "alice", Side: model.Sell, Type: model.Limit, Price: 100, Size: 5})
	if _, _, _, err := Cancel(b, o, "mallory", 200); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("err = %v, want unauthorized", err)
	}
}

func TestExpire(t *testing.T) {
	b, o := place(t, NewBook(key, 0), PlaceParams{Owner: "alice", Side: model.Sell, Type: model.Limit, Price: 100, Size: 5, ExpiresAt: 500})

	if _, _, _, err := Expire(b, o, 499); !errors.Is(err, errs.ErrInvalidConfiguration) {
		t.Errorf("early expire err = %v", err)
	}
	b, o, refund, err := Expire(b, o, 500)
	if err != nil {
		t.Fatal(err)
	}
	if refund != 5 || o.Status != model.Expired || b.ActiveOrders != 0 {
		t.Errorf("refund %d status %s active %d", refund, o.Status, b.ActiveOrders)
	}
	ps := RefundPostings(o, refund)
	if len(ps) != 1 || ps[0].Asset != custody.ShareAsset(key) || ps[0].To != "user:alice" {
		t.Errorf("refund postings = %+v", ps)
	}
}

// --- Settlement ---

func crossedPair(t *testing.T) (model.OrderBook, model.Order, model.Order) {
	t.Helper()
	b := NewBook(key, 0)
	b, buy := place(t, b, PlaceParams{Owner: "buyer", Side: model.Buy, Type: model.Limit, Price: 100, Size: 50})
	b, sell := place(t, b, PlaceParams{Owner: "seller", Side: model.Sell, Type: model.Limit, Price: 90, Size: 50})
	return b, buy, sell
}

func TestSettle_FullMatch(t *testing.T) {
	b, buy, sell := crossedPair(t)

	s, err := Settle(b, buy, sell, Match{BuyOrderID: buy.ID, SellOrderID: sell.ID, Size: 50, Price: 95, FeeBps: 30}, 200)
	if err != nil {
		t.Fatal(err)
	}
	if s.Trade.ID != 0 || s.Trade.BuyerFee != 14 || s.Trade.SellerFee != 14 {
		t.Errorf("trade = %+v", s.Trade)
	}
	if s.Buy.Status != model.Filled || s.Sell.Status != model.Filled {
		t.Errorf("statuses %s/%s", s.Buy.Status, s.Sell.Status)
	}
	if s.Buy.AvgFillPrice != 95 || s.Buy.FeesPaid != 14 {
		t.Errorf("buy fill = %+v", s.Buy)
	}
	if s.Book.TradeCount != 1 || s.Book.LastTradePrice != 95 || s.Book.Volume24h != 4750 || s.Book.ActiveOrders != 0 {
		t.Errorf("book = %+v", s.Book)
	}

	// escrow 5000 = seller 4736 + protocol 28 + buyer 236
	var fromEscrow, toBuyer uint64
	for _, p := range s.Postings() {
		if p.From == custody.OrderEscrow(key, buy.ID) {
			fromEscrow += p.Amount
		}
		if p.To == "user:buyer" && p.Asset == custody.Native {
			toBuyer += p.Amount
		}
	}
	if fromEscrow != 5000 || toBuyer != 236 {
		t.Errorf("escrow release %d, refund %d", fromEscrow, toBuyer)
	}
}

func TestSettle_BuyerFeeBeyondImprovementIsDebited(t *testing.T) {
	b, buy, sell := crossedPair(t)

	s, err := Settle(b, buy, sell, Match{Size: 50, Price: 100, FeeBps: 30}, 200)
	if err != nil {
		t.Fatal(err)
	}
	ps := s.Postings()
	last := ps[len(ps)-1]
	want := custody.Transfer("user:buyer", custody.Protocol, custody.Native, 15)
	if last != want {
		t.Errorf("last posting = %+v, want %+v", last, want)
	}
}

func TestSettle_Rejections(t *testing.T) {
	b, buy, sell := crossedPair(t)
	cases := []struct {
		name string
		m    Match
		want error
	}{
		{"oversize", Match{Size: 51, Price: 95}, errs.ErrInvalidAmount},
		{"zero size", Match{Size: 0, Price: 95}, errs.ErrInvalidAmount},
		{"above bid", Match{Size: 1, Price: 101}, errs.ErrInvalidConfiguration},
		{"below ask", Match{Size: 1, Price: 89}, errs.ErrInvalidConfiguration},
		{"fee too high", Match{Size: 1, Price: 95, FeeBps: 1001}, errs.ErrInvalidConfiguration},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Settle(b, buy, sell, tc.m, 200); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}

	if _, err := Settle(b, sell, buy, Match{Size: 1, Price: 95}, 200); !errors.Is(err, errs.ErrInvalidConfiguration) {
		t.Errorf("swapped sides err = %v", err)
	}
	cancelled := buy
	cancelled.Status = model.Cancelled
	if _, err := Settle(b, cancelled, sell, Match{Size: 1, Price: 95}, 200); !errors.Is(err, errs.ErrInvalidConfiguration) {
		t.Errorf("inactive order err = %v", err)
	}
}

func TestSettle_PartialKeepsOrdersActive(t *testing.T) {
	b, buy, sell := crossedPair(t)
	s, err := Settle(b, buy, sell, Match{Size: 20, Price: 95}, 200)
	if err != nil {
		t.Fatal(err)
	}
	if s.Buy.Status != model.PartiallyFilled || s.Buy.RemainingSize != 30 || s.Book.ActiveOrders != 2 {
		t.Errorf("buy %+v book %+v", s.Buy, s.Book)
	}
	s2, err := Settle(s.Book, s.Buy, s.Sell, Match{Size: 30, Price: 91}, 300)
	if err != nil {
		t.Fatal(err)
	}
	if s2.Trade.ID != 1 || s2.Buy.AvgFillPrice != 92 || s2.Book.Low24h != 91 || s2.Book.High24h != 95 {
		t.Errorf("trade %+v buy avg %d book %+v", s2.Trade, s2.Buy.AvgFillPrice, s2.Book)
	}
}

func TestSettle_WindowReset(t *testing.T) {
	b, buy, sell := crossedPair(t)
	s, _ := Settle(b, buy, sell, Match{Size: 10, Price: 95}, 1_000)
	s, err := Settle(s.Book, s.Buy, s.Sell, Match{Size: 10, Price: 92}, 1_000+StatsWindow+1)
	if err != nil {
		t.Fatal(err)
	}
	if s.Book.Volume24h != 920 || s.Book.Price24hAgo != 95 || s.Book.High24h != 92 {
		t.Errorf("book = %+v", s.Book)
	}
	if got := PriceChange24h(s.Book); got != -315 {
		t.Errorf("change = %d, want -315", got)
	}
}

// --- Quotes and depth ---

func TestRefresh_QuotesAndIcebergDepth(t *testing.T) {
	b := NewBook(key, 0)
	var orders []model.Order
	for _, p := range []PlaceParams{
		{Owner: "a", Side: model.Buy, Type: model.Limit, Price: 40, Size: 10},
		{Owner: "b", Side: model.Buy, Type: model.Limit, Price: 45, Size: 3},
		{Owner: "c", Side: model.Sell, Type: model.Iceberg, Price: 55, Size: 100, VisibleSize: u64(5)},
		{Owner: "d", Side: model.Sell, Type: model.Limit, Price: 55, Size: 2},
		{Owner: "e", Side: model.Sell, Type: model.Limit, Price: 60, Size: 1},
	} {
		var o model.Order
		b, o = place(t, b, p)
		orders = append(orders, o)
	}

	b = Refresh(b, orders)
	if b.BestBid != 45 || b.BestAsk != 55 || b.Spread != 10 || b.MidPrice != 50 {
		t.Errorf("quotes = %d/%d spread %d mid %d", b.BestBid, b.BestAsk, b.Spread, b.MidPrice)
	}

	bids, asks := NewDepth(orders).Snapshot(1)
	if len(bids) != 1 || bids[0] != (Level{Price: 45, Size: 3, Orders: 1}) {
		t.Errorf("bids = %+v", bids)
	}
	if len(asks) != 1 || asks[0] != (Level{Price: 55, Size: 7, Orders: 2}) {
		t.Errorf("asks = %+v", asks)
	}
}

func TestRefresh_CrossedAndEmpty(t *testing.T) {
	b, buy, sell := crossedPair(t)
	b = Refresh(b, []model.Order{buy, sell})
	if b.Spread != 0 || b.MidPrice != 95 {
		t.Errorf("crossed spread %d mid %d", b.Spread, b.MidPrice)
	}
	b = Refresh(b, nil)
	if b.BestBid != 0 || b.BestAsk != 0 || b.MidPrice != 0 {
		t.Errorf("empty book quotes %+v", b)
	}
}

// --- Properties ---

func TestFillAccounting_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.Uint64Range(1, 1_000_000).Draw(t, "size")
		o := model.Order{Side: model.Buy, Price: 1_000, Size: size, RemainingSize: size, Status: model.Open}
		for o.IsActive() {
			fill := rapid.Uint64Range(1, o.RemainingSize).Draw(t, "fill")
			price := rapid.Uint64Range(1, 1_000).Draw(t, "price")
			var err error
			if o, err = ApplyFill(o, fill, price, 0, 1); err != nil {
				t.Fatal(err)
			}
			if o.FilledSize+o.RemainingSize != o.Size {
				t.Fatalf("filled %d + remaining %d != size %d", o.FilledSize, o.RemainingSize, o.Size)
			}
			if o.AvgFillPrice == 0 || o.AvgFillPrice > 1_000 {
				t.Fatalf("avg fill price %d out of range", o.AvgFillPrice)
			}
		}
		if o.Status != model.Filled {
			t.Fatalf("status = %s", o.Status)
		}
	})
}

func TestSettlementConservesEscrow_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bid := rapid.Uint64Range(2, 10_000).Draw(t, "bid")
		ask := rapid.Uint64Range(1, bid).Draw(t, "ask")
		price := rapid.Uint64Range(ask, bid).Draw(t, "price")
		size := rapid.Uint64Range(1, 10_000).Draw(t, "size")
		fee := rapid.Uint64Range(0, MaxMatchFeeBps).Draw(t, "fee")

		b := NewBook(key, 0)
		b, buy, _ := Place(b, PlaceParams{Owner: "b", Side: model.Buy, Type: model.Limit, Price: bid, Size: size}, 1)
		b, sell, _ := Place(b, PlaceParams{Owner: "s", Side: model.Sell, Type: model.Limit, Price: ask, Size: size}, 1)

		ledger := custody.Book{
			{Account: custody.OrderEscrow(key, buy.ID), Asset: custody.Native}:         bid * size,
			{Account: custody.OrderEscrow(key, sell.ID), Asset: custody.ShareAsset(key)}: size,
			{Account: "user:b", Asset: custody.Native}:                                   1_000_000_000,
		}
		s, err := Settle(b, buy, sell, Match{Size: size, Price: price, FeeBps: fee}, 2)
		if err != nil {
			t.Fatal(err)
		}
		if err := ledger.Apply(s.Postings()); err != nil {
			t.Fatalf("postings do not apply: %v", err)
		}
		if left, _ := ledger.Available(context.Background(), custody.OrderEscrow(key, buy.ID), custody.Native); left != 0 {
			t.Fatalf("buy escrow retains %d", left)
		}
		if got, _ := ledger.Available(context.Background(), custody.Protocol, custody.Native); got != 2*s.Trade.BuyerFee {
			t.Fatalf("protocol received %d, want %d", got, 2*s.Trade.BuyerFee)
		}
	})
}
