package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/atmx/outcome-engine/internal/custody"
	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/fixed"
	"github.com/atmx/outcome-engine/internal/model"
	"github.com/atmx/outcome-engine/internal/outcome"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Unsigned amounts are stored as NUMERIC(20,0) and travel as text so that
// the full uint64 range survives the round trip.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate brings the schema up to date.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// --- Commit ---

func (s *PostgresStore) Commit(ctx context.Context, b *Batch) error {
	if err := b.Validate(); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, m := range b.Markets {
			if err := upsertMarket(ctx, tx, m); err != nil {
				return err
			}
		}
		for _, v := range b.Shares {
			if err := upsertShare(ctx, tx, v); err != nil {
				return err
			}
		}
		for _, v := range b.Pools {
			if err := upsertPool(ctx, tx, v); err != nil {
				return err
			}
		}
		for _, v := range b.Books {
			if err := upsertBook(ctx, tx, v); err != nil {
				return err
			}
		}
		for _, v := range b.Positions {
			if err := upsertPosition(ctx, tx, v); err != nil {
				return err
			}
		}
		for _, v := range b.Balances {
			if err := upsertBalance(ctx, tx, v); err != nil {
				return err
			}
		}
		for _, v := range b.Orders {
			if err := upsertOrder(ctx, tx, v); err != nil {
				return err
			}
		}
		for _, v := range b.Trades {
			if err := insertTrade(ctx, tx, v); err != nil {
				return err
			}
		}
		for _, v := range b.Swaps {
			if err := insertSwap(ctx, tx, v); err != nil {
				return err
			}
		}
		for _, p := range b.Postings {
			if err := applyPosting(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// applyPosting debits with a guarded UPDATE so a concurrent writer can never
// drive a balance negative, then credits with an upsert.
func applyPosting(ctx context.Context, tx pgx.Tx, p custody.Posting) error {
	if p.Amount == 0 {
		return nil
	}
	amount := num(p.Amount)
	if p.From != "" {
		tag, err := tx.Exec(ctx,
			`UPDATE custody_balances SET amount = amount - $3::NUMERIC
			 WHERE account = $1 AND asset = $2 AND amount >= $3::NUMERIC`,
			p.From, string(p.Asset), amount)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("%w: %s cannot cover %d %s", errs.ErrInsufficientFunds, p.From, p.Amount, p.Asset)
		}
	}
	if p.To != "" {
		_, err := tx.Exec(ctx,
			`INSERT INTO custody_balances (account, asset, amount) VALUES ($1, $2, $3::NUMERIC)
			 ON CONFLICT (account, asset) DO UPDATE SET amount = custody_balances.amount + EXCLUDED.amount`,
			p.To, string(p.Asset), amount)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			return fmt.Errorf("%w: credit to %s %s", errs.ErrArithmeticOverflow, p.To, p.Asset)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func upsertMarket(ctx context.Context, tx pgx.Tx, m model.Market) error {
	var winning *int16
	if m.WinningOutcome != nil {
		w := int16(*m.WinningOutcome)
		winning = &w
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO markets (id, outcome_count, resolved, winning_outcome, created_at, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   resolved = EXCLUDED.resolved, winning_outcome = EXCLUDED.winning_outcome,
		   resolved_at = EXCLUDED.resolved_at`,
		m.ID, int16(m.OutcomeCount), m.Resolved, winning, m.CreatedAt, m.ResolvedAt)
	return err
}

func upsertShare(ctx context.Context, tx pgx.Tx, v model.OutcomeShare) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO outcome_shares (market_id, outcome_index, total_supply, current_price, volume_24h,
		   trade_count, last_trade_at, high_24h, low_24h, price_24h_ago, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11)
		 ON CONFLICT (market_id, outcome_index) DO UPDATE SET
		   total_supply = EXCLUDED.total_supply, current_price = EXCLUDED.current_price,
		   volume_24h = EXCLUDED.volume_24h, trade_count = EXCLUDED.trade_count,
		   last_trade_at = EXCLUDED.last_trade_at, high_24h = EXCLUDED.high_24h,
		   low_24h = EXCLUDED.low_24h, price_24h_ago = EXCLUDED.price_24h_ago`,
		v.Outcome.MarketID, int16(v.Outcome.Index), num(v.TotalSupply), num(v.CurrentPrice), num(v.Volume24h),
		num(v.TradeCount), v.LastTradeAt, num(v.High24h), num(v.Low24h), num(v.Price24hAgo), v.CreatedAt)
	return err
}

func upsertBalance(ctx context.Context, tx pgx.Tx, v model.ShareBalance) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO share_balances (owner, market_id, outcome_index, balance, avg_cost_basis,
		   total_invested, realized_pnl, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, $8)
		 ON CONFLICT (owner, market_id, outcome_index) DO UPDATE SET
		   balance = EXCLUDED.balance, avg_cost_basis = EXCLUDED.avg_cost_basis,
		   total_invested = EXCLUDED.total_invested, realized_pnl = EXCLUDED.realized_pnl,
		   updated_at = EXCLUDED.updated_at`,
		v.Owner, v.Outcome.MarketID, int16(v.Outcome.Index), num(v.Balance), num(v.AvgCostBasis),
		num(v.TotalInvested), v.RealizedPnL, v.UpdatedAt)
	return err
}

func upsertPool(ctx context.Context, tx pgx.Tx, v model.AMMPool) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO amm_pools (market_id, outcome_index, token_reserve, sol_reserve, k, total_lp_tokens,
		   fee_bps, protocol_fee_bps, fees_collected, protocol_fees_token, protocol_fees_sol,
		   volume_24h, swap_count, last_price, price_24h_ago, last_swap_at, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC,
		   $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12::NUMERIC, $13::NUMERIC, $14::NUMERIC, $15::NUMERIC, $16, $17)
		 ON CONFLICT (market_id, outcome_index) DO UPDATE SET
		   token_reserve = EXCLUDED.token_reserve, sol_reserve = EXCLUDED.sol_reserve, k = EXCLUDED.k,
		   total_lp_tokens = EXCLUDED.total_lp_tokens, fees_collected = EXCLUDED.fees_collected,
		   protocol_fees_token = EXCLUDED.protocol_fees_token, protocol_fees_sol = EXCLUDED.protocol_fees_sol,
		   volume_24h = EXCLUDED.volume_24h, swap_count = EXCLUDED.swap_count,
		   last_price = EXCLUDED.last_price, price_24h_ago = EXCLUDED.price_24h_ago,
		   last_swap_at = EXCLUDED.last_swap_at`,
		v.Outcome.MarketID, int16(v.Outcome.Index), num(v.TokenReserve), num(v.SolReserve), v.K.String(),
		num(v.TotalLPTokens), num(v.FeeBps), num(v.ProtocolFeeBps), num(v.FeesCollected),
		num(v.ProtocolFeesToken), num(v.ProtocolFeesSol), num(v.Volume24h), num(v.SwapCount),
		num(v.LastPrice), num(v.Price24hAgo), v.LastSwapAt, v.CreatedAt)
	return err
}

func upsertPosition(ctx context.Context, tx pgx.Tx, v model.LiquidityPosition) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO liquidity_positions (owner, market_id, outcome_index, lp_tokens, tokens_deposited,
		   sol_deposited, fees_earned, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9)
		 ON CONFLICT (owner, market_id, outcome_index) DO UPDATE SET
		   lp_tokens = EXCLUDED.lp_tokens, tokens_deposited = EXCLUDED.tokens_deposited,
		   sol_deposited = EXCLUDED.sol_deposited, fees_earned = EXCLUDED.fees_earned,
		   updated_at = EXCLUDED.updated_at`,
		v.Owner, v.Outcome.MarketID, int16(v.Outcome.Index), num(v.LPTokens), num(v.TokensDeposited),
		num(v.SolDeposited), num(v.FeesEarned), v.CreatedAt, v.UpdatedAt)
	return err
}

func upsertBook(ctx context.Context, tx pgx.Tx, v model.OrderBook) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO order_books (market_id, outcome_index, next_order_id, active_orders, total_buy_orders,
		   total_sell_orders, best_bid, best_ask, spread, mid_price, last_trade_price, volume_24h,
		   trade_count, last_trade_at, high_24h, low_24h, price_24h_ago, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC,
		   $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12::NUMERIC, $13::NUMERIC, $14, $15::NUMERIC,
		   $16::NUMERIC, $17::NUMERIC, $18)
		 ON CONFLICT (market_id, outcome_index) DO UPDATE SET
		   next_order_id = EXCLUDED.next_order_id, active_orders = EXCLUDED.active_orders,
		   total_buy_orders = EXCLUDED.total_buy_orders, total_sell_orders = EXCLUDED.total_sell_orders,
		   best_bid = EXCLUDED.best_bid, best_ask = EXCLUDED.best_ask, spread = EXCLUDED.spread,
		   mid_price = EXCLUDED.mid_price, last_trade_price = EXCLUDED.last_trade_price,
		   volume_24h = EXCLUDED.volume_24h, trade_count = EXCLUDED.trade_count,
		   last_trade_at = EXCLUDED.last_trade_at, high_24h = EXCLUDED.high_24h,
		   low_24h = EXCLUDED.low_24h, price_24h_ago = EXCLUDED.price_24h_ago`,
		v.Outcome.MarketID, int16(v.Outcome.Index), num(v.NextOrderID), num(v.ActiveOrders),
		num(v.TotalBuyOrders), num(v.TotalSellOrders), num(v.BestBid), num(v.BestAsk), num(v.Spread),
		num(v.MidPrice), num(v.LastTradePrice), num(v.Volume24h), num(v.TradeCount), v.LastTradeAt,
		num(v.High24h), num(v.Low24h), num(v.Price24hAgo), v.CreatedAt)
	return err
}

func upsertOrder(ctx context.Context, tx pgx.Tx, v model.Order) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO orders (market_id, outcome_index, order_id, owner, side, order_type, price, size,
		   remaining_size, filled_size, avg_fill_price, status, stop_price, visible_size, twap_interval,
		   twap_last_execution, fees_paid, created_at, expires_at, updated_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC,
		   $11::NUMERIC, $12, $13::NUMERIC, $14::NUMERIC, $15, $16, $17::NUMERIC, $18, $19, $20)
		 ON CONFLICT (market_id, outcome_index, order_id) DO UPDATE SET
		   remaining_size = EXCLUDED.remaining_size, filled_size = EXCLUDED.filled_size,
		   avg_fill_price = EXCLUDED.avg_fill_price, status = EXCLUDED.status,
		   twap_last_execution = EXCLUDED.twap_last_execution, fees_paid = EXCLUDED.fees_paid,
		   updated_at = EXCLUDED.updated_at`,
		v.Outcome.MarketID, int16(v.Outcome.Index), num(v.ID), v.Owner, string(v.Side), string(v.Type),
		num(v.Price), num(v.Size), num(v.RemainingSize), num(v.FilledSize), num(v.AvgFillPrice),
		string(v.Status), optNum(v.StopPrice), optNum(v.VisibleSize), v.TWAPInterval, v.TWAPLastExecution,
		num(v.FeesPaid), v.CreatedAt, v.ExpiresAt, v.UpdatedAt)
	return err
}

func insertTrade(ctx context.Context, tx pgx.Tx, v model.Trade) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO trades (market_id, outcome_index, trade_id, buy_order_id, sell_order_id, buyer, seller,
		   price, size, buyer_fee, seller_fee, executed_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6, $7, $8::NUMERIC, $9::NUMERIC,
		   $10::NUMERIC, $11::NUMERIC, $12)`,
		v.Outcome.MarketID, int16(v.Outcome.Index), num(v.ID), num(v.BuyOrderID), num(v.SellOrderID),
		v.Buyer, v.Seller, num(v.Price), num(v.Size), num(v.BuyerFee), num(v.SellerFee), v.ExecutedAt)
	return err
}

func insertSwap(ctx context.Context, tx pgx.Tx, v model.Swap) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO swaps (id, market_id, outcome_index, trader, direction, amount_in, amount_out,
		   fee_amount, protocol_fee, price_after, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11)`,
		v.ID, v.Outcome.MarketID, int16(v.Outcome.Index), v.Trader, string(v.Direction), num(v.AmountIn),
		num(v.AmountOut), num(v.FeeAmount), num(v.ProtocolFee), num(v.PriceAfter), v.ExecutedAt)
	return err
}

// --- Markets ---

const marketColumns = `id, outcome_count, resolved, winning_outcome, created_at, resolved_at`

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = $1`, id))
	if err != nil {
		return nil, wrapNotFound(err, "market", id)
	}
	return &m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+marketColumns+` FROM markets ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanMarket)
}

func scanMarket(row pgx.Row) (model.Market, error) {
	var m model.Market
	var count int16
	var winning *int16
	if err := row.Scan(&m.ID, &count, &m.Resolved, &winning, &m.CreatedAt, &m.ResolvedAt); err != nil {
		return m, err
	}
	m.OutcomeCount = uint8(count)
	if winning != nil {
		w := uint8(*winning)
		m.WinningOutcome = &w
	}
	return m, nil
}

// --- Shares ---

const shareColumns = `market_id, outcome_index, total_supply::TEXT, current_price::TEXT, volume_24h::TEXT,
	trade_count::TEXT, last_trade_at, high_24h::TEXT, low_24h::TEXT, price_24h_ago::TEXT, created_at`

func (s *PostgresStore) GetShare(ctx context.Context, key outcome.Key) (*model.OutcomeShare, error) {
	v, err := scanShare(s.pool.QueryRow(ctx,
		`SELECT `+shareColumns+` FROM outcome_shares WHERE market_id = $1 AND outcome_index = $2`,
		key.MarketID, int16(key.Index)))
	if err != nil {
		return nil, wrapNotFound(err, "outcome", key.String())
	}
	return &v, nil
}

func (s *PostgresStore) ListShares(ctx context.Context, marketID string) ([]model.OutcomeShare, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+shareColumns+` FROM outcome_shares WHERE market_id = $1 ORDER BY outcome_index`, marketID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanShare)
}

func scanShare(row pgx.Row) (model.OutcomeShare, error) {
	var v model.OutcomeShare
	var n numScanner
	err := row.Scan(&v.Outcome.MarketID, n.index(&v.Outcome.Index), n.u(&v.TotalSupply), n.u(&v.CurrentPrice),
		n.u(&v.Volume24h), n.u(&v.TradeCount), &v.LastTradeAt, n.u(&v.High24h), n.u(&v.Low24h),
		n.u(&v.Price24hAgo), &v.CreatedAt)
	if err != nil {
		return v, err
	}
	return v, n.finish()
}

const balanceColumns = `owner, market_id, outcome_index, balance::TEXT, avg_cost_basis::TEXT,
	total_invested::TEXT, realized_pnl, updated_at`

func (s *PostgresStore) GetBalance(ctx context.Context, owner string, key outcome.Key) (*model.ShareBalance, error) {
	v, err := scanBalance(s.pool.QueryRow(ctx,
		`SELECT `+balanceColumns+` FROM share_balances WHERE owner = $1 AND market_id = $2 AND outcome_index = $3`,
		owner, key.MarketID, int16(key.Index)))
	if err != nil {
		return nil, wrapNotFound(err, "balance", owner+"/"+key.String())
	}
	return &v, nil
}

func (s *PostgresStore) ListBalances(ctx context.Context, owner string) ([]model.ShareBalance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+balanceColumns+` FROM share_balances WHERE owner = $1 ORDER BY market_id, outcome_index`, owner)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanBalance)
}

func scanBalance(row pgx.Row) (model.ShareBalance, error) {
	var v model.ShareBalance
	var n numScanner
	err := row.Scan(&v.Owner, &v.Outcome.MarketID, n.index(&v.Outcome.Index), n.u(&v.Balance),
		n.u(&v.AvgCostBasis), n.u(&v.TotalInvested), &v.RealizedPnL, &v.UpdatedAt)
	if err != nil {
		return v, err
	}
	return v, n.finish()
}

// --- Pools ---

const poolColumns = `market_id, outcome_index, token_reserve::TEXT, sol_reserve::TEXT, k::TEXT,
	total_lp_tokens::TEXT, fee_bps::TEXT, protocol_fee_bps::TEXT, fees_collected::TEXT,
	protocol_fees_token::TEXT, protocol_fees_sol::TEXT, volume_24h::TEXT, swap_count::TEXT,
	last_price::TEXT, price_24h_ago::TEXT, last_swap_at, created_at`

func (s *PostgresStore) GetPool(ctx context.Context, key outcome.Key) (*model.AMMPool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+poolColumns+` FROM amm_pools WHERE market_id = $1 AND outcome_index = $2`,
		key.MarketID, int16(key.Index))
	var v model.AMMPool
	var n numScanner
	var k string
	err := row.Scan(&v.Outcome.MarketID, n.index(&v.Outcome.Index), n.u(&v.TokenReserve), n.u(&v.SolReserve), &k,
		n.u(&v.TotalLPTokens), n.u(&v.FeeBps), n.u(&v.ProtocolFeeBps), n.u(&v.FeesCollected),
		n.u(&v.ProtocolFeesToken), n.u(&v.ProtocolFeesSol), n.u(&v.Volume24h), n.u(&v.SwapCount),
		n.u(&v.LastPrice), n.u(&v.Price24hAgo), &v.LastSwapAt, &v.CreatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "pool", key.String())
	}
	if err := n.finish(); err != nil {
		return nil, err
	}
	if v.K, err = fixed.ParseWide(k); err != nil {
		return nil, err
	}
	return &v, nil
}

const positionColumns = `owner, market_id, outcome_index, lp_tokens::TEXT, tokens_deposited::TEXT,
	sol_deposited::TEXT, fees_earned::TEXT, created_at, updated_at`

func (s *PostgresStore) GetPosition(ctx context.Context, owner string, key outcome.Key) (*model.LiquidityPosition, error) {
	v, err := scanPosition(s.pool.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM liquidity_positions WHERE owner = $1 AND market_id = $2 AND outcome_index = $3`,
		owner, key.MarketID, int16(key.Index)))
	if err != nil {
		return nil, wrapNotFound(err, "position", owner+"/"+key.String())
	}
	return &v, nil
}

func (s *PostgresStore) ListPositions(ctx context.Context, owner string) ([]model.LiquidityPosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM liquidity_positions WHERE owner = $1 ORDER BY market_id, outcome_index`, owner)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPosition)
}

func scanPosition(row pgx.Row) (model.LiquidityPosition, error) {
	var v model.LiquidityPosition
	var n numScanner
	err := row.Scan(&v.Owner, &v.Outcome.MarketID, n.index(&v.Outcome.Index), n.u(&v.LPTokens),
		n.u(&v.TokensDeposited), n.u(&v.SolDeposited), n.u(&v.FeesEarned), &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return v, err
	}
	return v, n.finish()
}

func (s *PostgresStore) ListSwaps(ctx context.Context, key outcome.Key, limit, offset int) ([]model.Swap, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, market_id, outcome_index, trader, direction, amount_in::TEXT, amount_out::TEXT,
		        fee_amount::TEXT, protocol_fee::TEXT, price_after::TEXT, executed_at
		 FROM swaps WHERE market_id = $1 AND outcome_index = $2
		 ORDER BY seq DESC LIMIT NULLIF($3, 0) OFFSET $4`,
		key.MarketID, int16(key.Index), limit, max(offset, 0))
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (model.Swap, error) {
		var v model.Swap
		var n numScanner
		var dir string
		err := row.Scan(&v.ID, &v.Outcome.MarketID, n.index(&v.Outcome.Index), &v.Trader, &dir,
			n.u(&v.AmountIn), n.u(&v.AmountOut), n.u(&v.FeeAmount), n.u(&v.ProtocolFee),
			n.u(&v.PriceAfter), &v.ExecutedAt)
		if err != nil {
			return v, err
		}
		v.Direction = model.SwapDirection(dir)
		return v, n.finish()
	})
}

// --- Order books ---

const bookColumns = `market_id, outcome_index, next_order_id::TEXT, active_orders::TEXT,
	total_buy_orders::TEXT, total_sell_orders::TEXT, best_bid::TEXT, best_ask::TEXT, spread::TEXT,
	mid_price::TEXT, last_trade_price::TEXT, volume_24h::TEXT, trade_count::TEXT, last_trade_at,
	high_24h::TEXT, low_24h::TEXT, price_24h_ago::TEXT, created_at`

func (s *PostgresStore) GetBook(ctx context.Context, key outcome.Key) (*model.OrderBook, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+bookColumns+` FROM order_books WHERE market_id = $1 AND outcome_index = $2`,
		key.MarketID, int16(key.Index))
	var v model.OrderBook
	var n numScanner
	err := row.Scan(&v.Outcome.MarketID, n.index(&v.Outcome.Index), n.u(&v.NextOrderID), n.u(&v.ActiveOrders),
		n.u(&v.TotalBuyOrders), n.u(&v.TotalSellOrders), n.u(&v.BestBid), n.u(&v.BestAsk), n.u(&v.Spread),
		n.u(&v.MidPrice), n.u(&v.LastTradePrice), n.u(&v.Volume24h), n.u(&v.TradeCount), &v.LastTradeAt,
		n.u(&v.High24h), n.u(&v.Low24h), n.u(&v.Price24hAgo), &v.CreatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "order book", key.String())
	}
	if err := n.finish(); err != nil {
		return nil, err
	}
	return &v, nil
}

const orderColumns = `market_id, outcome_index, order_id::TEXT, owner, side, order_type, price::TEXT,
	size::TEXT, remaining_size::TEXT, filled_size::TEXT, avg_fill_price::TEXT, status,
	stop_price::TEXT, visible_size::TEXT, twap_interval, twap_last_execution, fees_paid::TEXT,
	created_at, expires_at, updated_at`

func (s *PostgresStore) GetOrder(ctx context.Context, key outcome.Key, id uint64) (*model.Order, error) {
	v, err := scanOrder(s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE market_id = $1 AND outcome_index = $2 AND order_id = $3::NUMERIC`,
		key.MarketID, int16(key.Index), num(id)))
	if err != nil {
		return nil, wrapNotFound(err, "order", key.String()+"/"+num(id))
	}
	return &v, nil
}

func (s *PostgresStore) ListActiveOrders(ctx context.Context, key outcome.Key) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE market_id = $1 AND outcome_index = $2 AND status IN ('open', 'partially_filled')
		 ORDER BY order_id`,
		key.MarketID, int16(key.Index))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanOrder)
}

func (s *PostgresStore) ListOrdersByOwner(ctx context.Context, owner string) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE owner = $1 ORDER BY market_id, outcome_index, order_id`, owner)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanOrder)
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var v model.Order
	var n numScanner
	var side, typ, status string
	var stop, visible *string
	err := row.Scan(&v.Outcome.MarketID, n.index(&v.Outcome.Index), n.u(&v.ID), &v.Owner, &side, &typ,
		n.u(&v.Price), n.u(&v.Size), n.u(&v.RemainingSize), n.u(&v.FilledSize), n.u(&v.AvgFillPrice),
		&status, &stop, &visible, &v.TWAPInterval, &v.TWAPLastExecution, n.u(&v.FeesPaid),
		&v.CreatedAt, &v.ExpiresAt, &v.UpdatedAt)
	if err != nil {
		return v, err
	}
	if err := n.finish(); err != nil {
		return v, err
	}
	v.Side, v.Type, v.Status = model.Side(side), model.OrderType(typ), model.OrderStatus(status)
	if v.StopPrice, err = parseOptNum(stop); err != nil {
		return v, err
	}
	if v.VisibleSize, err = parseOptNum(visible); err != nil {
		return v, err
	}
	return v, nil
}

func (s *PostgresStore) ListTrades(ctx context.Context, key outcome.Key, limit, offset int) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT market_id, outcome_index, trade_id::TEXT, buy_order_id::TEXT, sell_order_id::TEXT, buyer,
		        seller, price::TEXT, size::TEXT, buyer_fee::TEXT, seller_fee::TEXT, executed_at
		 FROM trades WHERE market_id = $1 AND outcome_index = $2
		 ORDER BY trade_id DESC LIMIT NULLIF($3, 0) OFFSET $4`,
		key.MarketID, int16(key.Index), limit, max(offset, 0))
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (model.Trade, error) {
		var v model.Trade
		var n numScanner
		err := row.Scan(&v.Outcome.MarketID, n.index(&v.Outcome.Index), n.u(&v.ID), n.u(&v.BuyOrderID),
			n.u(&v.SellOrderID), &v.Buyer, &v.Seller, n.u(&v.Price), n.u(&v.Size), n.u(&v.BuyerFee),
			n.u(&v.SellerFee), &v.ExecutedAt)
		if err != nil {
			return v, err
		}
		return v, n.finish()
	})
}

// --- Custody ---

func (s *PostgresStore) Available(ctx context.Context, account string, asset custody.Asset) (uint64, error) {
	var amount string
	err := s.pool.QueryRow(ctx,
		`SELECT amount::TEXT FROM custody_balances WHERE account = $1 AND asset = $2`,
		account, string(asset)).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(amount, 10, 64)
}

func (s *PostgresStore) Balances(ctx context.Context, account string) (map[custody.Asset]uint64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT asset, amount::TEXT FROM custody_balances WHERE account = $1 AND amount > 0`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[custody.Asset]uint64)
	for rows.Next() {
		var asset, amount string
		if err := rows.Scan(&asset, &amount); err != nil {
			return nil, err
		}
		v, err := strconv.ParseUint(amount, 10, 64)
		if err != nil {
			return nil, err
		}
		out[custody.Asset(asset)] = v
	}
	return out, rows.Err()
}

// --- Helpers ---

func num(u uint64) string { return strconv.FormatUint(u, 10) }

func optNum(u *uint64) *string {
	if u == nil {
		return nil
	}
	s := num(*u)
	return &s
}

func parseOptNum(s *string) (*uint64, error) {
	if s == nil {
		return nil, nil
	}
	v, err := strconv.ParseUint(*s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// numScanner scans NUMERIC text columns and SMALLINT indexes, deferring
// the conversion until after Scan so that call sites stay one expression.
type numScanner struct {
	pending []func() error
}

func (n *numScanner) u(dst *uint64) *string {
	var s string
	n.pending = append(n.pending, func() error {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parse numeric %q: %w", s, err)
		}
		*dst = v
		return nil
	})
	return &s
}

func (n *numScanner) index(dst *uint8) *int16 {
	var i int16
	n.pending = append(n.pending, func() error {
		if i < 0 || i >= outcome.MaxOutcomes {
			return fmt.Errorf("outcome index %d out of range", i)
		}
		*dst = uint8(i)
		return nil
	})
	return &i
}

func (n *numScanner) finish() error {
	for _, f := range n.pending {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func wrapNotFound(err error, kind, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(kind, id)
	}
	return fmt.Errorf("get %s %s: %w", kind, id, err)
}

var _ Store = (*PostgresStore)(nil)
