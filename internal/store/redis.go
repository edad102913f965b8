package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/outcome-engine/internal/custody"
	"github.com/atmx/outcome-engine/internal/model"
	"github.com/atmx/outcome-engine/internal/outcome"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Commits go to the primary store and then invalidate every cached
// record the batch touched; reads check Redis first then fall back to the
// primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// Primary returns the store behind the cache.
func (s *CachedStore) Primary() Store { return s.primary }

// Unwrap returns the primary store behind st's read cache, or st itself
// when it has none. Read-modify-write paths use it so a stale cache entry
// never feeds a commit.
func Unwrap(st Store) Store {
	if c, ok := st.(interface{ Primary() Store }); ok {
		return c.Primary()
	}
	return st
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) Commit(ctx context.Context, b *Batch) error {
	if err := s.primary.Commit(ctx, b); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	if keys := invalidations(b); len(keys) > 0 {
		if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
			slog.Warn("cache invalidation failed", "keys", len(keys), "error", err)
		}
	}
	return nil
}

func invalidations(b *Batch) []string {
	seen := make(map[string]struct{})
	add := func(k string) { seen[k] = struct{}{} }
	for _, m := range b.Markets {
		add(marketKey(m.ID))
	}
	for _, v := range b.Shares {
		add(shareKey(v.Outcome))
	}
	for _, v := range b.Pools {
		add(poolKey(v.Outcome))
	}
	for _, v := range b.Books {
		add(bookKey(v.Outcome))
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	return keys
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	return readThrough(ctx, s, marketKey(id), func() (*model.Market, error) {
		return s.primary.GetMarket(ctx, id)
	})
}

func (s *CachedStore) GetShare(ctx context.Context, key outcome.Key) (*model.OutcomeShare, error) {
	return readThrough(ctx, s, shareKey(key), func() (*model.OutcomeShare, error) {
		return s.primary.GetShare(ctx, key)
	})
}

func (s *CachedStore) GetPool(ctx context.Context, key outcome.Key) (*model.AMMPool, error) {
	return readThrough(ctx, s, poolKey(key), func() (*model.AMMPool, error) {
		return s.primary.GetPool(ctx, key)
	})
}

func (s *CachedStore) GetBook(ctx context.Context, key outcome.Key) (*model.OrderBook, error) {
	return readThrough(ctx, s, bookKey(key), func() (*model.OrderBook, error) {
		return s.primary.GetBook(ctx, key)
	})
}

func readThrough[T any](ctx context.Context, s *CachedStore, key string, load func() (*T, error)) (*T, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var v T
		if json.Unmarshal(data, &v) == nil {
			return &v, nil
		}
	}

	// Cache miss: read from primary.
	v, err := load()
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return v, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) ListShares(ctx context.Context, marketID string) ([]model.OutcomeShare, error) {
	return s.primary.ListShares(ctx, marketID)
}

func (s *CachedStore) GetBalance(ctx context.Context, owner string, key outcome.Key) (*model.ShareBalance, error) {
	return s.primary.GetBalance(ctx, owner, key)
}

func (s *CachedStore) ListBalances(ctx context.Context, owner string) ([]model.ShareBalance, error) {
	return s.primary.ListBalances(ctx, owner)
}

func (s *CachedStore) GetPosition(ctx context.Context, owner string, key outcome.Key) (*model.LiquidityPosition, error) {
	return s.primary.GetPosition(ctx, owner, key)
}

func (s *CachedStore) ListPositions(ctx context.Context, owner string) ([]model.LiquidityPosition, error) {
	return s.primary.ListPositions(ctx, owner)
}

func (s *CachedStore) ListSwaps(ctx context.Context, key outcome.Key, limit, offset int) ([]model.Swap, error) {
	return s.primary.ListSwaps(ctx, key, limit, offset)
}

func (s *CachedStore) GetOrder(ctx context.Context, key outcome.Key, id uint64) (*model.Order, error) {
	return s.primary.GetOrder(ctx, key, id)
}

func (s *CachedStore) ListActiveOrders(ctx context.Context, key outcome.Key) ([]model.Order, error) {
	return s.primary.ListActiveOrders(ctx, key)
}

func (s *CachedStore) ListOrdersByOwner(ctx context.Context, owner string) ([]model.Order, error) {
	return s.primary.ListOrdersByOwner(ctx, owner)
}

func (s *CachedStore) ListTrades(ctx context.Context, key outcome.Key, limit, offset int) ([]model.Trade, error) {
	return s.primary.ListTrades(ctx, key, limit, offset)
}

// Balances are never cached: every debit is checked against them.
func (s *CachedStore) Available(ctx context.Context, account string, asset custody.Asset) (uint64, error) {
	return s.primary.Available(ctx, account, asset)
}

func (s *CachedStore) Balances(ctx context.Context, account string) (map[custody.Asset]uint64, error) {
	return s.primary.Balances(ctx, account)
}

// --- Cache helpers ---

func marketKey(id string) string { return fmt.Sprintf("market:%s", id) }
func shareKey(k outcome.Key) string { return fmt.Sprintf("share:%s", k) }
func poolKey(k outcome.Key) string { return fmt.Sprintf("pool:%s", k) }
func bookKey(k outcome.Key) string { return fmt.Sprintf("book:%s", k) }

var _ Store = (*CachedStore)(nil)
