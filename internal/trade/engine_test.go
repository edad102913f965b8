package trade_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/outcome-engine/internal/custody"
	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/events"
	"github.com/atmx/outcome-engine/internal/lifecycle"
	"github.com/atmx/outcome-engine/internal/limits"
	"github.com/atmx/outcome-engine/internal/model"
	"github.com/atmx/outcome-engine/internal/orderbook"
	"github.com/atmx/outcome-engine/internal/outcome"
	"github.com/atmx/outcome-engine/internal/store"
	"github.com/atmx/outcome-engine/internal/trade"
)

const (
	sol  uint64 = 1_000_000_000
	half uint64 = 500_000_000
)

var (
	ctx  = context.Background()
	yes  = outcome.Key{MarketID: "worlds", Index: 0}
	no   = outcome.Key{MarketID: "worlds", Index: 1}
	zero = outcome.Key{MarketID: "worlds", Index: 2}
)

type env struct {
	engine *trade.Engine
	store  *store.MemoryStore
	events *events.Recorder
	clock  *lifecycle.FixedClock
}

// newEnv returns an engine over a two-outcome market priced at 0.5 with
// funded wallets for alice and bob.
func newEnv(t *testing.T, limiter *limits.PositionLimiter) *env {
	t.Helper()
	e := &env{
		store:  store.NewMemoryStore(),
		events: &events.Recorder{},
		clock:  &lifecycle.FixedClock{T: 1_700_000_000},
	}
	e.engine = trade.NewEngine(e.store, e.clock, limiter, e.events)

	_, err := e.engine.CreateMarket(ctx, "worlds", 2)
	require.NoError(t, err)
	for _, k := range []outcome.Key{yes, no} {
		_, err := e.engine.CreateOutcome(ctx, k, half)
		require.NoError(t, err)
	}
	for _, owner := range []string{"alice", "bob"} {
		_, err := e.engine.Deposit(ctx, owner, 10*sol)
		require.NoError(t, err)
	}
	return e
}

func (e *env) available(t *testing.T, account string, asset custody.Asset) uint64 {
	t.Helper()
	v, err := e.store.Available(ctx, account, asset)
	require.NoError(t, err)
	return v
}

// --- Markets ---

func TestCreateMarket_Validation(t *testing.T) {
	e := newEnv(t, nil)

	_, err := e.engine.CreateMarket(ctx, "worlds", 2)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration, "duplicate id")

	_, err = e.engine.CreateMarket(ctx, "big", 7)
	assert.ErrorIs(t, err, errs.ErrTooManyOutcomes)

	m, err := e.engine.CreateMarket(ctx, "", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, e.clock.T, m.CreatedAt)
}

func TestCreateOutcome_Validation(t *testing.T) {
	e := newEnv(t, nil)

	_, err := e.engine.CreateOutcome(ctx, yes, half)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration, "duplicate outcome")

	_, err = e.engine.CreateOutcome(ctx, outcome.Key{MarketID: "worlds", Index: 4}, half)
	assert.ErrorIs(t, err, errs.ErrInvalidOutcome)

	_, err = e.engine.CreateOutcome(ctx, outcome.Key{MarketID: "missing", Index: 0}, half)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = e.engine.CreateMarket(ctx, "three", 3)
	require.NoError(t, err)
	_, err = e.engine.CreateOutcome(ctx, outcome.Key{MarketID: "three", Index: 2}, 5_000_000)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration, "price below 0.01")
}

func TestDeposit(t *testing.T) {
	e := newEnv(t, nil)

	bal, err := e.engine.Deposit(ctx, "alice", 5)
	require.NoError(t, err)
	assert.Equal(t, 10*sol+5, bal)
	assert.Equal(t, 10*sol+5, e.available(t, custody.User("alice"), custody.Native))

	_, err = e.engine.Deposit(ctx, "alice", 0)
	assert.ErrorIs(t, err, errs.ErrInvalidAmount)
}

// --- Direct buy/sell and redemption ---

func TestBuyAndSellShares(t *testing.T) {
	e := newEnv(t, nil)

	bought, err := e.engine.BuyShares(ctx, "alice", yes, 1_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), bought.Value)
	assert.Equal(t, uint64(1_000), bought.Position.Balance)
	assert.Equal(t, half, bought.Position.AvgCostBasis)

	sold, err := e.engine.SellShares(ctx, "alice", yes, 400)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), sold.Value)
	assert.Equal(t, int64(0), sold.Realized)
	assert.Equal(t, uint64(600), sold.Position.Balance)

	share, err := e.store.GetShare(ctx, yes)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), share.TotalSupply)
	assert.Equal(t, uint64(2), share.TradeCount)
	assert.Equal(t, uint64(700), share.Volume24h)

	assert.Equal(t, 10*sol-300, e.available(t, custody.User("alice"), custody.Native))
	assert.Equal(t, uint64(600), e.available(t, custody.User("alice"), custody.ShareAsset(yes)))
	assert.Equal(t, uint64(300), e.available(t, custody.MarketEscrow("worlds"), custody.Native))

	assert.Equal(t, []events.Type{events.MarketCreated, events.ShareBought, events.ShareSold}, e.events.Types())
}

func TestBuyShares_Rejections(t *testing.T) {
	e := newEnv(t, nil)

	_, err := e.engine.BuyShares(ctx, "alice", yes, 1)
	assert.ErrorIs(t, err, errs.ErrInvalidAmount, "cost rounds to zero")

	_, err = e.engine.BuyShares(ctx, "carol", yes, 1_000)
	assert.ErrorIs(t, err, errs.ErrInsufficientFunds)
	_, err = e.store.GetBalance(ctx, "carol", yes)
	assert.ErrorIs(t, err, errs.ErrNotFound, "failed commit must not record a position")

	_, err = e.engine.BuyShares(ctx, "alice", zero, 1_000)
	assert.ErrorIs(t, err, errs.ErrInvalidOutcome)

	_, err = e.engine.SellShares(ctx, "alice", yes, 10)
	assert.ErrorIs(t, err, errs.ErrInsufficientShares)
}

func TestPositionLimits(t *testing.T) {
	e := newEnv(t, limits.NewPositionLimiter(100, 150))

	_, err := e.engine.BuyShares(ctx, "alice", yes, 80)
	require.NoError(t, err)

	_, err = e.engine.BuyShares(ctx, "alice", yes, 30)
	assert.ErrorIs(t, err, limits.ErrPerOutcomeLimitExceeded)
	assert.ErrorIs(t, err, errs.ErrInvalidAmount)

	_, err = e.engine.BuyShares(ctx, "alice", no, 80)
	assert.ErrorIs(t, err, limits.ErrPerMarketLimitExceeded)

	_, err = e.engine.BuyShares(ctx, "alice", no, 70)
	assert.NoError(t, err)
}

func TestRedeemShares(t *testing.T) {
	e := newEnv(t, nil)

	_, err := e.engine.BuyShares(ctx, "alice", yes, 600)
	require.NoError(t, err)
	_, err = e.engine.BuyShares(ctx, "bob", no, 1_000)
	require.NoError(t, err)

	_, err = e.engine.RedeemShares(ctx, "alice", yes, 600)
	assert.ErrorIs(t, err, errs.ErrNotResolved)

	_, err = e.engine.ResolveMarket(ctx, "worlds", 0)
	require.NoError(t, err)

	_, err = e.engine.RedeemShares(ctx, "bob", no, 1_000)
	assert.ErrorIs(t, err, errs.ErrNotWinner)

	res, err := e.engine.RedeemShares(ctx, "alice", yes, 600)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), res.Value)
	assert.Equal(t, int64(300), res.Realized)
	assert.Equal(t, uint64(0), res.Position.Balance)
	assert.Equal(t, int64(300), res.Position.RealizedPnL)

	// 300 + 500 paid in, 600 paid out.
	assert.Equal(t, uint64(200), e.available(t, custody.MarketEscrow("worlds"), custody.Native))
}

func TestResolvedMarketRejectsTrading(t *testing.T) {
	e := newEnv(t, nil)
	o, err := e.engine.PlaceOrder(ctx, yes, orderbook.PlaceParams{
		Owner: "alice", Side: model.Buy, Type: model.Limit, Price: 10, Size: 10,
	})
	require.NoError(t, err)

	_, err = e.engine.ResolveMarket(ctx, "worlds", 1)
	require.NoError(t, err)

	_, err = e.engine.ResolveMarket(ctx, "worlds", 0)
	assert.ErrorIs(t, err, errs.ErrAlreadyResolved)
	_, err = e.engine.BuyShares(ctx, "alice", yes, 1_000)
	assert.ErrorIs(t, err, errs.ErrAlreadyResolved)
	_, err = e.engine.PlaceOrder(ctx, yes, orderbook.PlaceParams{
		Owner: "alice", Side: model.Buy, Type: model.Limit, Price: 10, Size: 10,
	})
	assert.ErrorIs(t, err, errs.ErrAlreadyResolved)

	// Escrow can still be recovered.
	res, err := e.engine.CancelOrder(ctx, yes, o.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), res.Refund)
}

// --- AMM ---

func TestPoolLifecycle(t *testing.T) {
	e := newEnv(t, nil)

	_, err := e.engine.InitPool(ctx, yes, 30, 5)
	require.NoError(t, err)
	_, err = e.engine.InitPool(ctx, yes, 30, 5)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)

	_, err = e.engine.BuyShares(ctx, "alice", yes, 1_000_000)
	require.NoError(t, err)
	added, err := e.engine.AddLiquidity(ctx, "alice", yes, 1_000_000, sol, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(31_622_776), added.LPTokens)
	assert.Equal(t, added.LPTokens, e.available(t, custody.User("alice"), custody.LPAsset(yes)))

	pos, err := e.store.GetBalance(ctx, "alice", yes)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), pos.Balance, "deposited shares leave the ledger position")

	// Bob sells 10_000 shares into the pool.
	_, err = e.engine.BuyShares(ctx, "bob", yes, 10_000)
	require.NoError(t, err)

	q, err := e.engine.Quote(ctx, yes, 10_000, model.TokenToSol)
	require.NoError(t, err)
	assert.Equal(t, uint64(9_871_580), q.AmountOut)

	_, err = e.engine.Swap(ctx, "bob", yes, 10_000, model.TokenToSol, 10_000_000)
	assert.ErrorIs(t, err, errs.ErrSlippageToleranceExceeded)
	assert.Equal(t, uint64(10_000), e.available(t, custody.User("bob"), custody.ShareAsset(yes)))

	res, err := e.engine.Swap(ctx, "bob", yes, 10_000, model.TokenToSol, 9_800_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(9_871_580), res.Swap.AmountOut)
	assert.Equal(t, uint64(5), res.Swap.ProtocolFee)
	assert.Equal(t, uint64(0), res.Position.Balance)

	assert.Equal(t, uint64(1_009_995), e.available(t, custody.Pool(yes), custody.ShareAsset(yes)))
	assert.Equal(t, sol-9_871_580, e.available(t, custody.Pool(yes), custody.Native))
	assert.Equal(t, uint64(5), e.available(t, custody.Protocol, custody.ShareAsset(yes)))
	assert.Equal(t, 10*sol-5_000+9_871_580, e.available(t, custody.User("bob"), custody.Native))

	swaps, err := e.store.ListSwaps(ctx, yes, 0, 0)
	require.NoError(t, err)
	require.Len(t, swaps, 1)
	assert.Equal(t, "bob", swaps[0].Trader)

	// Alice withdraws everything.
	removed, err := e.engine.RemoveLiquidity(ctx, "alice", yes, added.LPTokens, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_009_995), removed.TokenAmount)
	assert.Equal(t, sol-9_871_580, removed.SolAmount)
	assert.Equal(t, uint64(0), e.available(t, custody.Pool(yes), custody.Native))
	assert.Equal(t, uint64(0), e.available(t, custody.User("alice"), custody.LPAsset(yes)))

	pos, err = e.store.GetBalance(ctx, "alice", yes)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_009_995), pos.Balance)

	assert.Equal(t, []events.Type{
		events.MarketCreated, events.ShareBought, events.LiquidityAdded,
		events.ShareBought, events.SwapExecuted, events.LiquidityRemoved,
	}, e.events.Types())
}

func TestSwap_SolToTokenUpdatesLedger(t *testing.T) {
	e := newEnv(t, limits.NewPositionLimiter(2_000_000, 0))

	_, err := e.engine.InitPool(ctx, yes, 30, 0)
	require.NoError(t, err)
	_, err = e.engine.BuyShares(ctx, "alice", yes, 1_000_000)
	require.NoError(t, err)
	_, err = e.engine.AddLiquidity(ctx, "alice", yes, 1_000_000, sol, 0)
	require.NoError(t, err)

	res, err := e.engine.Swap(ctx, "bob", yes, 10_000_000, model.SolToToken, 0)
	require.NoError(t, err)
	assert.Positive(t, res.Swap.AmountOut)
	assert.Equal(t, res.Swap.AmountOut, res.Position.Balance)
	assert.InDelta(t, 10_000_000, res.Position.TotalInvested, 1)
	assert.Equal(t, res.Swap.AmountOut, e.available(t, custody.User("bob"), custody.ShareAsset(yes)))

	_, err = e.engine.Swap(ctx, "bob", yes, 10_000_000, "sideways", 0)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
}

func TestSwap_RecordsLastPriceOnShare(t *testing.T) {
	e := newEnv(t, nil)

	_, err := e.engine.InitPool(ctx, yes, 30, 0)
	require.NoError(t, err)
	_, err = e.engine.BuyShares(ctx, "alice", yes, 1_000_000)
	require.NoError(t, err)
	_, err = e.engine.AddLiquidity(ctx, "alice", yes, 1_000_000, sol, 0)
	require.NoError(t, err)

	res, err := e.engine.Swap(ctx, "bob", yes, 10_000_000, model.SolToToken, 0)
	require.NoError(t, err)
	require.Greater(t, res.Swap.PriceAfter, half)

	share, err := e.store.GetShare(ctx, yes)
	require.NoError(t, err)
	assert.Equal(t, res.Swap.PriceAfter, share.CurrentPrice)
	assert.Equal(t, res.Swap.PriceAfter, share.High24h)
	assert.Equal(t, half, share.Low24h)
	assert.Equal(t, uint64(2), share.TradeCount)
	assert.Equal(t, uint64(500_000+10_000_000), share.Volume24h, "swap volume counted once in native units")

	// The direct path now quotes the pool's last price.
	bought, err := e.engine.BuyShares(ctx, "bob", yes, 1_000)
	require.NoError(t, err)
	assert.Equal(t, 1_000*res.Swap.PriceAfter/sol, bought.Value)

	// Selling shares back counts the native amount received.
	back, err := e.engine.Swap(ctx, "bob", yes, 1_000, model.TokenToSol, 0)
	require.NoError(t, err)
	share, err = e.store.GetShare(ctx, yes)
	require.NoError(t, err)
	assert.Equal(t, back.Swap.PriceAfter, share.CurrentPrice)
	assert.Equal(t, uint64(4), share.TradeCount)
	assert.Equal(t, uint64(500_000+10_000_000)+bought.Value+back.Swap.AmountOut, share.Volume24h)
}

// staleCache serves pools from a frozen snapshot while commits reach the
// memory store, like a read cache holding an entry that missed invalidation.
type staleCache struct {
	*store.MemoryStore
	pools map[outcome.Key]model.AMMPool
}

func (s *staleCache) GetPool(ctx context.Context, key outcome.Key) (*model.AMMPool, error) {
	if p, ok := s.pools[key]; ok {
		return &p, nil
	}
	return s.MemoryStore.GetPool(ctx, key)
}

func (s *staleCache) Primary() store.Store { return s.MemoryStore }

func TestSwap_ReadsPrimaryBehindCache(t *testing.T) {
	seed := func(t *testing.T) *env {
		e := newEnv(t, nil)
		_, err := e.engine.InitPool(ctx, yes, 30, 0)
		require.NoError(t, err)
		_, err = e.engine.BuyShares(ctx, "alice", yes, 1_000_000)
		require.NoError(t, err)
		_, err = e.engine.AddLiquidity(ctx, "alice", yes, 1_000_000, sol, 0)
		require.NoError(t, err)
		return e
	}
	swapTwice := func(t *testing.T, eng *trade.Engine) {
		for i := 0; i < 2; i++ {
			_, err := eng.Swap(ctx, "bob", yes, 10_000_000, model.SolToToken, 0)
			require.NoError(t, err)
		}
	}

	want := seed(t)
	swapTwice(t, want.engine)
	wantPool, err := want.store.GetPool(ctx, yes)
	require.NoError(t, err)

	e := seed(t)
	snapshot, err := e.store.GetPool(ctx, yes)
	require.NoError(t, err)
	cache := &staleCache{MemoryStore: e.store, pools: map[outcome.Key]model.AMMPool{yes: *snapshot}}
	eng := trade.NewEngine(cache, e.clock, nil, nil)
	swapTwice(t, eng)

	got, err := e.store.GetPool(ctx, yes)
	require.NoError(t, err)
	assert.Equal(t, wantPool.SolReserve, got.SolReserve)
	assert.Equal(t, wantPool.TokenReserve, got.TokenReserve)
	assert.Equal(t, wantPool.K, got.K)
	assert.Equal(t, want.available(t, custody.Pool(yes), custody.Native), e.available(t, custody.Pool(yes), custody.Native))

	// Views still go through the cache.
	viewed, err := eng.Store().GetPool(ctx, yes)
	require.NoError(t, err)
	assert.Equal(t, snapshot.SolReserve, viewed.SolReserve)
}

func TestRemoveLiquidity_WithoutPosition(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.engine.InitPool(ctx, yes, 30, 0)
	require.NoError(t, err)

	_, err = e.engine.RemoveLiquidity(ctx, "bob", yes, 10, 0, 0)
	assert.ErrorIs(t, err, errs.ErrInsufficientLiquidity)
}

// --- Order book ---

func TestSettleMatch(t *testing.T) {
	e := newEnv(t, nil)

	_, err := e.engine.BuyShares(ctx, "bob", yes, 100)
	require.NoError(t, err)

	sell, err := e.engine.PlaceOrder(ctx, yes, orderbook.PlaceParams{
		Owner: "bob", Side: model.Sell, Type: model.Limit, Price: 90, Size: 50,
	})
	require.NoError(t, err)
	buy, err := e.engine.PlaceOrder(ctx, yes, orderbook.PlaceParams{
		Owner: "alice", Side: model.Buy, Type: model.Limit, Price: 100, Size: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), sell.ID)
	assert.Equal(t, uint64(1), buy.ID)

	book, err := e.engine.OrderBook(ctx, yes, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), book.BestBid)
	assert.Equal(t, uint64(90), book.BestAsk)
	assert.Equal(t, uint64(0), book.Spread, "crossed book")
	require.Len(t, book.Bids, 1)
	require.Len(t, book.Asks, 1)

	tr, err := e.engine.SettleMatch(ctx, yes, orderbook.Match{
		BuyOrderID: buy.ID, SellOrderID: sell.ID, Size: 50, Price: 95, FeeBps: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), tr.ID)
	assert.Equal(t, uint64(14), tr.BuyerFee)
	assert.Equal(t, uint64(14), tr.SellerFee)

	// Alice paid 4750 + 14 fee; bob got 4750 - 14 after paying 50 for shares.
	assert.Equal(t, 10*sol-4_764, e.available(t, custody.User("alice"), custody.Native))
	assert.Equal(t, 10*sol-50+4_736, e.available(t, custody.User("bob"), custody.Native))
	assert.Equal(t, uint64(28), e.available(t, custody.Protocol, custody.Native))
	assert.Equal(t, uint64(50), e.available(t, custody.User("alice"), custody.ShareAsset(yes)))
	assert.Equal(t, uint64(0), e.available(t, custody.OrderEscrow(yes, buy.ID), custody.Native))
	assert.Equal(t, uint64(0), e.available(t, custody.OrderEscrow(yes, sell.ID), custody.ShareAsset(yes)))

	alice, err := e.store.GetBalance(ctx, "alice", yes)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), alice.Balance)
	assert.Equal(t, uint64(4_750), alice.TotalInvested)
	bob, err := e.store.GetBalance(ctx, "bob", yes)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), bob.Balance)
	assert.Equal(t, int64(4_725), bob.RealizedPnL)

	book, err = e.engine.OrderBook(ctx, yes, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), book.TradeCount)
	assert.Equal(t, uint64(0), book.ActiveOrders)
	assert.Equal(t, uint64(0), book.BestBid)
	assert.Empty(t, book.Bids)

	got, err := e.store.GetOrder(ctx, yes, buy.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Filled, got.Status)

	trades, err := e.store.ListTrades(ctx, yes, 10, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	// The settlement becomes the share's last trade: 95 per share, 4750 volume.
	share, err := e.store.GetShare(ctx, yes)
	require.NoError(t, err)
	assert.Equal(t, 95*sol, share.CurrentPrice)
	assert.Equal(t, 95*sol, share.High24h)
	assert.Equal(t, uint64(2), share.TradeCount)
	assert.Equal(t, uint64(50+4_750), share.Volume24h)

	_, err = e.engine.SettleMatch(ctx, yes, orderbook.Match{
		BuyOrderID: buy.ID, SellOrderID: sell.ID, Size: 1, Price: 95,
	})
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration, "filled orders cannot match again")
}

func TestPlaceOrder_RequiresEscrow(t *testing.T) {
	e := newEnv(t, nil)

	_, err := e.engine.PlaceOrder(ctx, yes, orderbook.PlaceParams{
		Owner: "bob", Side: model.Sell, Type: model.Limit, Price: 90, Size: 50,
	})
	assert.ErrorIs(t, err, errs.ErrInsufficientFunds)

	_, err = e.store.GetBook(ctx, yes)
	assert.ErrorIs(t, err, errs.ErrNotFound, "rejected placement must not create the book")

	_, err = e.engine.PlaceOrder(ctx, yes, orderbook.PlaceParams{
		Owner: "alice", Side: model.Buy, Type: model.Iceberg, Price: 90, Size: 50,
	})
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration, "iceberg without visible size")
}

func TestCancelAndExpireOrder(t *testing.T) {
	e := newEnv(t, nil)

	o, err := e.engine.PlaceOrder(ctx, yes, orderbook.PlaceParams{
		Owner: "alice", Side: model.Buy, Type: model.Limit, Price: 100, Size: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 10*sol-1_000, e.available(t, custody.User("alice"), custody.Native))

	_, err = e.engine.CancelOrder(ctx, yes, o.ID, "bob")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	res, err := e.engine.CancelOrder(ctx, yes, o.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), res.Refund)
	assert.Equal(t, model.Cancelled, res.Order.Status)
	assert.Equal(t, 10*sol, e.available(t, custody.User("alice"), custody.Native))

	_, err = e.engine.CancelOrder(ctx, yes, o.ID, "alice")
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration, "already cancelled")

	timed, err := e.engine.PlaceOrder(ctx, yes, orderbook.PlaceParams{
		Owner: "alice", Side: model.Buy, Type: model.Limit, Price: 100, Size: 10, ExpiresAt: e.clock.T + 10,
	})
	require.NoError(t, err)

	_, err = e.engine.ExpireOrder(ctx, yes, timed.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)

	e.clock.Advance(10)
	res, err = e.engine.ExpireOrder(ctx, yes, timed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Expired, res.Order.Status)
	assert.Equal(t, 10*sol, e.available(t, custody.User("alice"), custody.Native))

	_, err = e.engine.CancelOrder(ctx, yes, 99, "alice")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

// --- Views ---

func TestPortfolio(t *testing.T) {
	e := newEnv(t, nil)

	_, err := e.engine.BuyShares(ctx, "alice", yes, 2_000)
	require.NoError(t, err)
	_, err = e.engine.InitPool(ctx, no, 30, 0)
	require.NoError(t, err)
	_, err = e.engine.BuyShares(ctx, "alice", no, 1_000_000)
	require.NoError(t, err)
	_, err = e.engine.AddLiquidity(ctx, "alice", no, 1_000_000, sol, 0)
	require.NoError(t, err)
	_, err = e.engine.PlaceOrder(ctx, yes, orderbook.PlaceParams{
		Owner: "alice", Side: model.Sell, Type: model.Limit, Price: 1, Size: 500,
	})
	require.NoError(t, err)

	pf, err := e.engine.Portfolio(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", pf.Owner)
	require.Len(t, pf.Holdings, 2)
	assert.Equal(t, yes, pf.Holdings[0].Outcome)
	assert.Equal(t, int64(0), pf.Holdings[0].UnrealizedPnL)
	require.Len(t, pf.Liquidity, 1)
	assert.Equal(t, 2*sol, pf.Liquidity[0].Value)
	assert.Equal(t, int64(0), pf.Liquidity[0].ImpermanentLoss)
	require.Len(t, pf.OpenOrders, 1)
	assert.Equal(t, uint64(1_500), pf.Assets[custody.ShareAsset(yes)])
	assert.Equal(t, 10*sol-1_000-500_000-sol, pf.NativeBalance)
	assert.True(t, decimal.RequireFromString("8.999499").Equal(pf.NativeBalanceSOL), pf.NativeBalanceSOL.String())
}
