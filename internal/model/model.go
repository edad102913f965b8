// Package model defines the core domain records shared across the trading
// engine. Amounts are unsigned base units (lamports for the native currency,
// base units for shares and LP tokens); prices on shares, pools and ledgers
// are fixed-point with scale 1e9. Timestamps are unix seconds.
package model

import (
	"github.com/atmx/outcome-engine/internal/fixed"
	"github.com/atmx/outcome-engine/internal/outcome"
)

// Market is the lifecycle record the trading core consults for outcome
// count and resolution.
type Market struct {
	ID             string `json:"id" db:"id"`
	OutcomeCount   uint8  `json:"outcome_count" db:"outcome_count"`
	Resolved       bool   `json:"resolved" db:"resolved"`
	WinningOutcome *uint8 `json:"winning_outcome,omitempty" db:"winning_outcome"`
	CreatedAt      int64  `json:"created_at" db:"created_at"`
	ResolvedAt     int64  `json:"resolved_at,omitempty" db:"resolved_at"`
}

// OutcomeShare is the single source of truth for an outcome's supply and
// last traded price. Supply only moves through mint and burn.
type OutcomeShare struct {
	Outcome      outcome.Key `json:"outcome"`
	TotalSupply  uint64      `json:"total_supply" db:"total_supply"`
	CurrentPrice uint64      `json:"current_price" db:"current_price"`
	Volume24h    uint64      `json:"volume_24h" db:"volume_24h"`
	TradeCount   uint64      `json:"trade_count" db:"trade_count"`
	LastTradeAt  int64       `json:"last_trade_at" db:"last_trade_at"`
	High24h      uint64      `json:"high_24h" db:"high_24h"`
	Low24h       uint64      `json:"low_24h" db:"low_24h"`
	Price24hAgo  uint64      `json:"price_24h_ago" db:"price_24h_ago"`
	CreatedAt    int64       `json:"created_at" db:"created_at"`
}

// ShareBalance tracks one owner's position and cost basis in one outcome.
type ShareBalance struct {
	Owner         string      `json:"owner" db:"owner"`
	Outcome       outcome.Key `json:"outcome"`
	Balance       uint64      `json:"balance" db:"balance"`
	AvgCostBasis  uint64      `json:"avg_cost_basis" db:"avg_cost_basis"`
	TotalInvested uint64      `json:"total_invested" db:"total_invested"`
	RealizedPnL   int64       `json:"realized_pnl" db:"realized_pnl"`
	UpdatedAt     int64       `json:"updated_at" db:"updated_at"`
}

// AMMPool is a constant-product pool between one outcome share and the
// native currency.
type AMMPool struct {
	Outcome           outcome.Key `json:"outcome"`
	TokenReserve      uint64      `json:"token_reserve" db:"token_reserve"`
	SolReserve        uint64      `json:"sol_reserve" db:"sol_reserve"`
	K                 fixed.Wide  `json:"k" db:"k"`
	TotalLPTokens     uint64      `json:"total_lp_tokens" db:"total_lp_tokens"`
	FeeBps            uint64      `json:"fee_bps" db:"fee_bps"`
	ProtocolFeeBps    uint64      `json:"protocol_fee_bps" db:"protocol_fee_bps"`
	FeesCollected     uint64      `json:"fees_collected" db:"fees_collected"`
	ProtocolFeesToken uint64      `json:"protocol_fees_token" db:"protocol_fees_token"`
	ProtocolFeesSol   uint64      `json:"protocol_fees_sol" db:"protocol_fees_sol"`
	Volume24h         uint64      `json:"volume_24h" db:"volume_24h"`
	SwapCount         uint64      `json:"swap_count" db:"swap_count"`
	LastPrice         uint64      `json:"last_price" db:"last_price"`
	Price24hAgo       uint64      `json:"price_24h_ago" db:"price_24h_ago"`
	LastSwapAt        int64       `json:"last_swap_at" db:"last_swap_at"`
	CreatedAt         int64       `json:"created_at" db:"created_at"`
}

// LiquidityPosition is one provider's share of a pool.
type LiquidityPosition struct {
	Owner           string      `json:"owner" db:"owner"`
	Outcome         outcome.Key `json:"outcome"`
	LPTokens        uint64      `json:"lp_tokens" db:"lp_tokens"`
	TokensDeposited uint64      `json:"tokens_deposited" db:"tokens_deposited"`
	SolDeposited    uint64      `json:"sol_deposited" db:"sol_deposited"`
	FeesEarned      uint64      `json:"fees_earned" db:"fees_earned"`
	CreatedAt       int64       `json:"created_at" db:"created_at"`
	UpdatedAt       int64       `json:"updated_at" db:"updated_at"`
}

// SwapDirection names the input asset of a swap.
type SwapDirection string

const (
	TokenToSol SwapDirection = "token_to_sol"
	SolToToken SwapDirection = "sol_to_token"
)

// Valid reports whether d is a known direction.
func (d SwapDirection) Valid() bool {
	return d == TokenToSol || d == SolToToken
}

// Swap is an immutable record of one pool swap.
type Swap struct {
	ID          string        `json:"id" db:"id"`
	Outcome     outcome.Key   `json:"outcome"`
	Trader      string        `json:"trader" db:"trader"`
	Direction   SwapDirection `json:"direction" db:"direction"`
	AmountIn    uint64        `json:"amount_in" db:"amount_in"`
	AmountOut   uint64        `json:"amount_out" db:"amount_out"`
	FeeAmount   uint64        `json:"fee_amount" db:"fee_amount"`
	ProtocolFee uint64        `json:"protocol_fee" db:"protocol_fee"`
	PriceAfter  uint64        `json:"price_after" db:"price_after"`
	ExecutedAt  int64         `json:"executed_at" db:"executed_at"`
}
