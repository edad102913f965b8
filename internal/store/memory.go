package store

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"sync"

	"github.com/atmx/outcome-engine/internal/custody"
	"github.com/atmx/outcome-engine/internal/model"
	"github.com/atmx/outcome-engine/internal/outcome"
)

type ownerKey struct {
	owner string
	key   outcome.Key
}

type orderKey struct {
	key outcome.Key
	id  uint64
}

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	markets   map[string]model.Market
	shares    map[outcome.Key]model.OutcomeShare
	balances  map[ownerKey]model.ShareBalance
	pools     map[outcome.Key]model.AMMPool
	positions map[ownerKey]model.LiquidityPosition
	books     map[outcome.Key]model.OrderBook
	orders    map[orderKey]model.Order
	trades    map[outcome.Key][]model.Trade
	swaps     map[outcome.Key][]model.Swap
	custody   custody.Book
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:   make(map[string]model.Market),
		shares:    make(map[outcome.Key]model.OutcomeShare),
		balances:  make(map[ownerKey]model.ShareBalance),
		pools:     make(map[outcome.Key]model.AMMPool),
		positions: make(map[ownerKey]model.LiquidityPosition),
		books:     make(map[outcome.Key]model.OrderBook),
		orders:    make(map[orderKey]model.Order),
		trades:    make(map[outcome.Key][]model.Trade),
		swaps:     make(map[outcome.Key][]model.Swap),
		custody:   make(custody.Book),
	}
}

func (s *MemoryStore) Commit(_ context.Context, b *Batch) error {
	if err := b.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Apply leaves the book untouched on failure, so nothing below runs
	// unless every debit is covered.
	if err := s.custody.Apply(b.Postings); err != nil {
		return err
	}
	for _, m := range b.Markets {
		s.markets[m.ID] = m
	}
	for _, v := range b.Shares {
		s.shares[v.Outcome] = v
	}
	for _, v := range b.Balances {
		s.balances[ownerKey{v.Owner, v.Outcome}] = v
	}
	for _, v := range b.Pools {
		s.pools[v.Outcome] = v
	}
	for _, v := range b.Positions {
		s.positions[ownerKey{v.Owner, v.Outcome}] = v
	}
	for _, v := range b.Books {
		s.books[v.Outcome] = v
	}
	for _, v := range b.Orders {
		s.orders[orderKey{v.Outcome, v.ID}] = cloneOrder(v)
	}
	for _, v := range b.Trades {
		s.trades[v.Outcome] = append(s.trades[v.Outcome], v)
	}
	for _, v := range b.Swaps {
		s.swaps[v.Outcome] = append(s.swaps[v.Outcome], v)
	}
	return nil
}

// --- Markets ---

func (s *MemoryStore) GetMarket(_ context.Context, id string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, notFound("market", id)
	}
	if m.WinningOutcome != nil {
		w := *m.WinningOutcome
		m.WinningOutcome = &w
	}
	return &m, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, m)
	}
	slices.SortFunc(markets, func(a, b model.Market) int {
		if c := cmp.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return markets, nil
}

// --- Shares ---

func (s *MemoryStore) GetShare(_ context.Context, key outcome.Key) (*model.OutcomeShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.shares[key]
	if !ok {
		return nil, notFound("outcome", key.String())
	}
	return &v, nil
}

func (s *MemoryStore) ListShares(_ context.Context, marketID string) ([]model.OutcomeShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.OutcomeShare
	for k, v := range s.shares {
		if k.MarketID == marketID {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b model.OutcomeShare) int { return int(a.Outcome.Index) - int(b.Outcome.Index) })
	return out, nil
}

func (s *MemoryStore) GetBalance(_ context.Context, owner string, key outcome.Key) (*model.ShareBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.balances[ownerKey{owner, key}]
	if !ok {
		return nil, notFound("balance", owner+"/"+key.String())
	}
	return &v, nil
}

func (s *MemoryStore) ListBalances(_ context.Context, owner string) ([]model.ShareBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.ShareBalance
	for k, v := range s.balances {
		if k.owner == owner {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b model.ShareBalance) int { return compareKeys(a.Outcome, b.Outcome) })
	return out, nil
}

// --- Pools ---

func (s *MemoryStore) GetPool(_ context.Context, key outcome.Key) (*model.AMMPool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.pools[key]
	if !ok {
		return nil, notFound("pool", key.String())
	}
	return &v, nil
}

func (s *MemoryStore) GetPosition(_ context.Context, owner string, key outcome.Key) (*model.LiquidityPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.positions[ownerKey{owner, key}]
	if !ok {
		return nil, notFound("position", owner+"/"+key.String())
	}
	return &v, nil
}

func (s *MemoryStore) ListPositions(_ context.Context, owner string) ([]model.LiquidityPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.LiquidityPosition
	for k, v := range s.positions {
		if k.owner == owner {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b model.LiquidityPosition) int { return compareKeys(a.Outcome, b.Outcome) })
	return out, nil
}

func (s *MemoryStore) ListSwaps(_ context.Context, key outcome.Key, limit, offset int) ([]model.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := slices.Clone(s.swaps[key])
	slices.Reverse(out)
	return page(out, limit, offset), nil
}

// --- Order books ---

func (s *MemoryStore) GetBook(_ context.Context, key outcome.Key) (*model.OrderBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.books[key]
	if !ok {
		return nil, notFound("order book", key.String())
	}
	return &v, nil
}

func (s *MemoryStore) GetOrder(_ context.Context, key outcome.Key, id uint64) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.orders[orderKey{key, id}]
	if !ok {
		return nil, notFound("order", key.String()+"/"+strconv.FormatUint(id, 10))
	}
	o := cloneOrder(v)
	return &o, nil
}

func (s *MemoryStore) ListActiveOrders(_ context.Context, key outcome.Key) ([]model.Order, error) {
	return s.filterOrders(func(o *model.Order) bool { return o.Outcome == key && o.IsActive() }), nil
}

func (s *MemoryStore) ListOrdersByOwner(_ context.Context, owner string) ([]model.Order, error) {
	return s.filterOrders(func(o *model.Order) bool { return o.Owner == owner }), nil
}

func (s *MemoryStore) filterOrders(keep func(*model.Order) bool) []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Order
	for _, v := range s.orders {
		if keep(&v) {
			out = append(out, cloneOrder(v))
		}
	}
	slices.SortFunc(out, func(a, b model.Order) int {
		if c := compareKeys(a.Outcome, b.Outcome); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (s *MemoryStore) ListTrades(_ context.Context, key outcome.Key, limit, offset int) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := slices.Clone(s.trades[key])
	slices.Reverse(out)
	return page(out, limit, offset), nil
}

// --- Custody ---

func (s *MemoryStore) Available(ctx context.Context, account string, asset custody.Asset) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.custody.Available(ctx, account, asset)
}

func (s *MemoryStore) Balances(_ context.Context, account string) (map[custody.Asset]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[custody.Asset]uint64)
	for h, v := range s.custody {
		if h.Account == account && v > 0 {
			out[h.Asset] = v
		}
	}
	return out, nil
}

// --- Helpers ---

func cloneOrder(o model.Order) model.Order {
	if o.StopPrice != nil {
		v := *o.StopPrice
		o.StopPrice = &v
	}
	if o.VisibleSize != nil {
		v := *o.VisibleSize
		o.VisibleSize = &v
	}
	if o.TWAPInterval != nil {
		v := *o.TWAPInterval
		o.TWAPInterval = &v
	}
	if o.TWAPLastExecution != nil {
		v := *o.TWAPLastExecution
		o.TWAPLastExecution = &v
	}
	return o
}

func compareKeys(a, b outcome.Key) int {
	if c := cmp.Compare(a.MarketID, b.MarketID); c != 0 {
		return c
	}
	return int(a.Index) - int(b.Index)
}

var _ Store = (*MemoryStore)(nil)
