package trade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atmx/outcome-engine/internal/errs"
	"github.com/atmx/outcome-engine/internal/model"
	"github.com/atmx/outcome-engine/internal/orderbook"
	"github.com/atmx/outcome-engine/internal/outcome"
)

// Paging defaults for history endpoints.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
	DefaultDepth     = 20
)

// Service exposes the engine over HTTP.
type Service struct {
	engine   *Engine
	validate *validator.Validate
}

// NewService creates the HTTP layer for engine.
func NewService(engine *Engine) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Service{engine: engine, validate: v}
}

// Routes mounts every endpoint on r. Mutations pass through limit;
// administrative mutations additionally pass through admin.
func (s *Service) Routes(r chi.Router, limit, admin func(http.Handler) http.Handler) {
	// Reads.
	r.Get("/markets", s.ListMarkets)
	r.Get("/markets/{marketID}", s.GetMarket)
	r.Get("/outcomes/{ticker}", s.GetOutcome)
	r.Get("/pools/{ticker}", s.GetPool)
	r.Get("/pools/{ticker}/quote", s.GetQuote)
	r.Get("/pools/{ticker}/swaps", s.ListSwaps)
	r.Get("/orderbook/{ticker}", s.GetOrderBook)
	r.Get("/orders/{ticker}/{orderID}", s.GetOrder)
	r.Get("/trades/{ticker}", s.ListTrades)
	r.Get("/portfolio/{owner}", s.GetPortfolio)

	r.Group(func(r chi.Router) {
		r.Use(limit)

		r.Post("/shares/buy", s.BuyShares)
		r.Post("/shares/sell", s.SellShares)
		r.Post("/shares/redeem", s.RedeemShares)
		r.Post("/pools/{ticker}/liquidity/add", s.AddLiquidity)
		r.Post("/pools/{ticker}/liquidity/remove", s.RemoveLiquidity)
		r.Post("/pools/{ticker}/swap", s.Swap)
		r.Post("/orders", s.PlaceOrder)
		r.Post("/orders/{ticker}/{orderID}/cancel", s.CancelOrder)
		r.Post("/orders/{ticker}/{orderID}/expire", s.ExpireOrder)

		r.Group(func(r chi.Router) {
			r.Use(admin)

			r.Post("/markets", s.CreateMarket)
			r.Post("/markets/{marketID}/resolve", s.ResolveMarket)
			r.Post("/outcomes", s.CreateOutcome)
			r.Post("/accounts/{owner}/deposit", s.Deposit)
			r.Post("/pools", s.InitPool)
			r.Post("/matches", s.SettleMatch)
		})
	})
}

// --- Request types ---

// CreateMarketRequest is the JSON body for POST /markets. An empty id is
// generated.
type CreateMarketRequest struct {
	ID           string `json:"id" validate:"omitempty,max=64"`
	OutcomeCount uint8  `json:"outcome_count"`
}

// ResolveMarketRequest is the JSON body for POST /markets/{marketID}/resolve.
type ResolveMarketRequest struct {
	WinningOutcome *uint8 `json:"winning_outcome" validate:"required"`
}

// CreateOutcomeRequest is the JSON body for POST /outcomes.
type CreateOutcomeRequest struct {
	Ticker       string `json:"ticker" validate:"required"`
	InitialPrice uint64 `json:"initial_price"`
}

// DepositRequest is the JSON body for POST /accounts/{owner}/deposit.
type DepositRequest struct {
	Amount uint64 `json:"amount"`
}

// ShareRequest is the JSON body for the direct buy, sell and redeem routes.
type ShareRequest struct {
	Owner  string `json:"owner" validate:"required,max=128"`
	Ticker string `json:"ticker" validate:"required"`
	Amount uint64 `json:"amount"`
}

// InitPoolRequest is the JSON body for POST /pools.
type InitPoolRequest struct {
	Ticker         string `json:"ticker" validate:"required"`
	FeeBps         uint64 `json:"fee_bps"`
	ProtocolFeeBps uint64 `json:"protocol_fee_bps"`
}

// AddLiquidityRequest is the JSON body for POST /pools/{ticker}/liquidity/add.
type AddLiquidityRequest struct {
	Owner       string `json:"owner" validate:"required,max=128"`
	TokenAmount uint64 `json:"token_amount"`
	SolAmount   uint64 `json:"sol_amount"`
	MinLPTokens uint64 `json:"min_lp_tokens"`
}

// RemoveLiquidityRequest is the JSON body for POST /pools/{ticker}/liquidity/remove.
type RemoveLiquidityRequest struct {
	Owner          string `json:"owner" validate:"required,max=128"`
	LPTokens       uint64 `json:"lp_tokens"`
	MinTokenAmount uint64 `json:"min_token_amount"`
	MinSolAmount   uint64 `json:"min_sol_amount"`
}

// SwapRequest is the JSON body for POST /pools/{ticker}/swap.
type SwapRequest struct {
	Trader       string `json:"trader" validate:"required,max=128"`
	AmountIn     uint64 `json:"amount_in"`
	Direction    string `json:"direction" validate:"required,oneof=token_to_sol sol_to_token"`
	MinAmountOut uint64 `json:"min_amount_out"`
}

// PlaceOrderRequest is the JSON body for POST /orders.
type PlaceOrderRequest struct {
	Owner        string  `json:"owner" validate:"required,max=128"`
	Ticker       string  `json:"ticker" validate:"required"`
	Side         string  `json:"side" validate:"required,oneof=buy sell"`
	OrderType    string  `json:"order_type" validate:"required,oneof=limit stop_loss iceberg twap"`
	Price        uint64  `json:"price"`
	Size         uint64  `json:"size"`
	ExpiresAt    int64   `json:"expires_at" validate:"gte=0"`
	StopPrice    *uint64 `json:"stop_price,omitempty"`
	VisibleSize  *uint64 `json:"visible_size,omitempty"`
	TWAPInterval *int64  `json:"twap_interval,omitempty"`
}

// CancelOrderRequest is the JSON body for POST /orders/{ticker}/{orderID}/cancel.
type CancelOrderRequest struct {
	Owner string `json:"owner" validate:"required,max=128"`
}

// MatchRequest is the JSON body for POST /matches.
type MatchRequest struct {
	Ticker string `json:"ticker" validate:"required"`
	orderbook.Match
}

// --- Market handlers ---

// CreateMarket handles POST /api/v1/markets
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if !s.decode(w, r, &req) {
		return
	}
	m, err := s.engine.CreateMarket(r.Context(), req.ID, req.OutcomeCount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// ResolveMarket handles POST /api/v1/markets/{marketID}/resolve
func (s *Service) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	var req ResolveMarketRequest
	if !s.decode(w, r, &req) {
		return
	}
	m, err := s.engine.ResolveMarket(r.Context(), chi.URLParam(r, "marketID"), *req.WinningOutcome)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ListMarkets handles GET /api/v1/markets
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.engine.Store().ListMarkets(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}
	writeJSON(w, http.StatusOK, markets)
}

// GetMarket handles GET /api/v1/markets/{marketID}
// Returns the market with its outcome shares.
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, err := s.engine.Store().GetMarket(ctx, chi.URLParam(r, "marketID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	shares, err := s.engine.Store().ListShares(ctx, m.ID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if shares == nil {
		shares = []model.OutcomeShare{}
	}
	writeJSON(w, http.StatusOK, struct {
		*model.Market
		Outcomes []model.OutcomeShare `json:"outcomes"`
	}{m, shares})
}

// CreateOutcome handles POST /api/v1/outcomes
func (s *Service) CreateOutcome(w http.ResponseWriter, r *http.Request) {
	var req CreateOutcomeRequest
	if !s.decode(w, r, &req) {
		return
	}
	key, ok := parseTicker(w, req.Ticker)
	if !ok {
		return
	}
	share, err := s.engine.CreateOutcome(r.Context(), key, req.InitialPrice)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, share)
}

// GetOutcome handles GET /api/v1/outcomes/{ticker}
func (s *Service) GetOutcome(w http.ResponseWriter, r *http.Request) {
	key, ok := parseTicker(w, chi.URLParam(r, "ticker"))
	if !ok {
		return
	}
	v, err := s.engine.Outcome(r.Context(), key)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Deposit handles POST /api/v1/accounts/{owner}/deposit
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !s.decode(w, r, &req) {
		return
	}
	owner := chi.URLParam(r, "owner")
	balance, err := s.engine.Deposit(r.Context(), owner, req.Amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "native_balance": balance})
}

// --- Direct share handlers ---

// BuyShares handles POST /api/v1/shares/buy
func (s *Service) BuyShares(w http.ResponseWriter, r *http.Request) {
	s.shareOp(w, r, s.engine.BuyShares)
}

// SellShares handles POST /api/v1/shares/sell
func (s *Service) SellShares(w http.ResponseWriter, r *http.Request) {
	s.shareOp(w, r, s.engine.SellShares)
}

// RedeemShares handles POST /api/v1/shares/redeem
func (s *Service) RedeemShares(w http.ResponseWriter, r *http.Request) {
	s.shareOp(w, r, s.engine.RedeemShares)
}

type shareFunc func(ctx context.Context, owner string, key outcome.Key, amount uint64) (ShareTrade, error)

func (s *Service) shareOp(w http.ResponseWriter, r *http.Request, op shareFunc) {
	var req ShareRequest
	if !s.decode(w, r, &req) {
		return
	}
	key, ok := parseTicker(w, req.Ticker)
	if !ok {
		return
	}
	res, err := op(r.Context(), req.Owner, key, req.Amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Pool handlers ---

// InitPool handles POST /api/v1/pools
func (s *Service) InitPool(w http.ResponseWriter, r *http.Request) {
	var req InitPoolRequest
	if !s.decode(w, r, &req) {
		return
	}
	key, ok := parseTicker(w, req.Ticker)
	if !ok {
		return
	}
	p, err := s.engine.InitPool(r.Context(), key, req.FeeBps, req.ProtocolFeeBps)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetPool handles GET /api/v1/pools/{ticker}
func (s *Service) GetPool(w http.ResponseWriter, r *http.Request) {
	key, ok := parseTicker(w, chi.URLParam(r, "ticker"))
	if !ok {
		return
	}
	v, err := s.engine.Pool(r.Context(), key)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetQuote handles GET /api/v1/pools/{ticker}/quote?amount_in=&direction=
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	key, ok := parseTicker(w, chi.URLParam(r, "ticker"))
	if !ok {
		return
	}
	amountIn, err := strconv.ParseUint(r.URL.Query().Get("amount_in"), 10, 64)
	if err != nil {
		writeError(w, "amount_in must be an unsigned integer", "invalid_request", http.StatusBadRequest)
		return
	}
	q, err := s.engine.Quote(r.Context(), key, amountIn, model.SwapDirection(r.URL.Query().Get("direction")))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// ListSwaps handles GET /api/v1/pools/{ticker}/swaps?limit=&offset=
func (s *Service) ListSwaps(w http.ResponseWriter, r *http.Request) {
	key, ok := parseTicker(w, chi.URLParam(r, "ticker"))
	if !ok {
		return
	}
	limit, offset, ok := parsePage(w, r)
	if !ok {
		return
	}
	swaps, err := s.engine.Store().ListSwaps(r.Context(), key, limit, offset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if swaps == nil {
		swaps = []model.Swap{}
	}
	writeJSON(w, http.StatusOK, swaps)
}

// AddLiquidity handles POST /api/v1/pools/{ticker}/liquidity/add
func (s *Service) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	key, ok := parseTicker(w, chi.URLParam(r, "ticker"))
	if !ok {
		return
	}
	var req AddLiquidityRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.AddLiquidity(r.Context(), req.Owner, key, req.TokenAmount, req.SolAmount, req.MinLPTokens)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RemoveLiquidity handles POST /api/v1/pools/{ticker}/liquidity/remove
func (s *Service) RemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	key, ok := parseTicker(w, chi.URLParam(r, "ticker"))
	if !ok {
		return
	}
	var req RemoveLiquidityRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.RemoveLiquidity(r.Context(), req.Owner, key, req.LPTokens, req.MinTokenAmount, req.MinSolAmount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Swap handles POST /api/v1/pools/{ticker}/swap
func (s *Service) Swap(w http.ResponseWriter, r *http.Request) {
	key, ok := parseTicker(w, chi.URLParam(r, "ticker"))
	if !ok {
		return
	}
	var req SwapRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.Swap(r.Context(), req.Trader, key, req.AmountIn, model.SwapDirection(req.Direction), req.MinAmountOut)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Order book handlers ---

// PlaceOrder handles POST /api/v1/orders
func (s *Service) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if !s.decode(w, r, &req) {
		return
	}
	key, ok := parseTicker(w, req.Ticker)
	if !ok {
		return
	}
	o, err := s.engine.PlaceOrder(r.Context(), key, orderbook.PlaceParams{
		Owner:        req.Owner,
		Side:         model.Side(req.Side),
		Type:         model.OrderType(req.OrderType),
		Price:        req.Price,
		Size:         req.Size,
		ExpiresAt:    req.ExpiresAt,
		StopPrice:    req.StopPrice,
		VisibleSize:  req.VisibleSize,
		TWAPInterval: req.TWAPInterval,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// GetOrder handles GET /api/v1/orders/{ticker}/{orderID}
func (s *Service) GetOrder(w http.ResponseWriter, r *http.Request) {
	key, id, ok := parseOrderPath(w, r)
	if !ok {
		return
	}
	o, err := s.engine.Store().GetOrder(r.Context(), key, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*model.Order
		FillPercentage uint8 `json:"fill_percentage"`
	}{o, o.FillPercentage()})
}

// CancelOrder handles POST /api/v1/orders/{ticker}/{orderID}/cancel
func (s *Service) CancelOrder(w http.ResponseWriter, r *http.Request) {
	key, id, ok := parseOrderPath(w, r)
	if !ok {
		return
	}
	var req CancelOrderRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.CancelOrder(r.Context(), key, id, req.Owner)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ExpireOrder handles POST /api/v1/orders/{ticker}/{orderID}/expire
func (s *Service) ExpireOrder(w http.ResponseWriter, r *http.Request) {
	key, id, ok := parseOrderPath(w, r)
	if !ok {
		return
	}
	res, err := s.engine.ExpireOrder(r.Context(), key, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SettleMatch handles POST /api/v1/matches
func (s *Service) SettleMatch(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	key, ok := parseTicker(w, req.Ticker)
	if !ok {
		return
	}
	t, err := s.engine.SettleMatch(r.Context(), key, req.Match)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// GetOrderBook handles GET /api/v1/orderbook/{ticker}?depth=
func (s *Service) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	key, ok := parseTicker(w, chi.URLParam(r, "ticker"))
	if !ok {
		return
	}
	depth := DefaultDepth
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxPageLimit {
			writeError(w, fmt.Sprintf("depth must be between 1 and %d", MaxPageLimit), "invalid_request", http.StatusBadRequest)
			return
		}
		depth = n
	}
	v, err := s.engine.OrderBook(r.Context(), key, depth)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// ListTrades handles GET /api/v1/trades/{ticker}?limit=&offset=
func (s *Service) ListTrades(w http.ResponseWriter, r *http.Request) {
	key, ok := parseTicker(w, chi.URLParam(r, "ticker"))
	if !ok {
		return
	}
	limit, offset, ok := parsePage(w, r)
	if !ok {
		return
	}
	trades, err := s.engine.Store().ListTrades(r.Context(), key, limit, offset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetPortfolio handles GET /api/v1/portfolio/{owner}
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	pf, err := s.engine.Portfolio(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pf)
}

// --- Helpers ---

// decode reads and validates a JSON body, writing a 400 on failure.
func (s *Service) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "invalid request body", "invalid_request", http.StatusBadRequest)
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			writeError(w, strings.Join(msgs, "; "), "invalid_request", http.StatusBadRequest)
			return false
		}
		writeError(w, err.Error(), "invalid_request", http.StatusBadRequest)
		return false
	}
	return true
}

func parseTicker(w http.ResponseWriter, ticker string) (outcome.Key, bool) {
	key, err := outcome.ParseTicker(ticker)
	if err != nil {
		writeError(w, err.Error(), "invalid_ticker", http.StatusBadRequest)
		return outcome.Key{}, false
	}
	return key, true
}

func parseOrderPath(w http.ResponseWriter, r *http.Request) (outcome.Key, uint64, bool) {
	key, ok := parseTicker(w, chi.URLParam(r, "ticker"))
	if !ok {
		return outcome.Key{}, 0, false
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		writeError(w, "order id must be an unsigned integer", "invalid_request", http.StatusBadRequest)
		return outcome.Key{}, 0, false
	}
	return key, id, true
}

func parsePage(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit = DefaultPageLimit
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxPageLimit {
			writeError(w, fmt.Sprintf("limit must be between 1 and %d", MaxPageLimit), "invalid_request", http.StatusBadRequest)
			return 0, 0, false
		}
		limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, "offset must be a non-negative integer", "invalid_request", http.StatusBadRequest)
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrInvalidAmount),
		errors.Is(err, errs.ErrInvalidConfiguration),
		errors.Is(err, errs.ErrInvalidOutcome),
		errors.Is(err, errs.ErrTooManyOutcomes),
		errors.Is(err, errs.ErrArithmeticOverflow):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrInsufficientFunds),
		errors.Is(err, errs.ErrInsufficientLiquidity),
		errors.Is(err, errs.ErrInsufficientShares),
		errors.Is(err, errs.ErrInsufficientOutputAmount),
		errors.Is(err, errs.ErrInsufficientLiquidityMinted),
		errors.Is(err, errs.ErrSlippageToleranceExceeded),
		errors.Is(err, errs.ErrAlreadyResolved),
		errors.Is(err, errs.ErrNotResolved),
		errors.Is(err, errs.ErrNotWinner):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError writes err with the status and kind it maps to.
// Internal errors are not echoed to the client.
func writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		msg = "internal error"
	}
	writeError(w, msg, errs.Kind(err), status)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message, kind string, status int) {
	writeJSON(w, status, map[string]string{"error": message, "kind": kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
