// Package service provides the HTTP handlers consuming the accounting
// core: buy/sell/reset trades, account and portfolio views, token
// quotes, and trade history.
//
// The handlers validate only lexical form (JSON shape, number parsing);
// range and sign checks belong to the ledger, whose error taxonomy is
// mapped onto HTTP status codes here.
package service

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/suipaper/paper-engine/internal/ledger"
	"github.com/suipaper/paper-engine/internal/metrics"
	"github.com/suipaper/paper-engine/internal/model"
	"github.com/suipaper/paper-engine/internal/oracle"
	"github.com/suipaper/paper-engine/internal/store"
	"github.com/suipaper/paper-engine/internal/token"
	"github.com/suipaper/paper-engine/internal/valuation"
)

// Service wires the ledger, reporter, oracle, and store behind HTTP.
type Service struct {
	ledger   *ledger.Ledger
	reporter *valuation.Reporter
	oracle   *oracle.Oracle
	store    store.Store
	wsHub    *WSHub // optional WebSocket hub for real-time broadcasts
}

// New creates the service. Pass nil for hub if WebSocket broadcasting
// is not needed.
func New(l *ledger.Ledger, rep *valuation.Reporter, o *oracle.Oracle, st store.Store, hub *WSHub) *Service {
	return &Service{
		ledger:   l,
		reporter: rep,
		oracle:   o,
		store:    st,
		wsHub:    hub,
	}
}

// Routes mounts the service endpoints on a chi router.
func (s *Service) Routes(r chi.Router) {
	r.Get("/tokens", s.ListTokens)
	r.Get("/tokens/{symbol}/trades", s.GetTokenTrades)
	r.Post("/trades/buy", s.Buy)
	r.Post("/trades/sell", s.Sell)
	r.Get("/accounts/{userID}", s.GetAccount)
	r.Post("/accounts/{userID}/reset", s.Reset)
	r.Get("/accounts/{userID}/trades", s.GetTrades)
	r.Get("/portfolio/{userID}", s.GetPortfolio)
	if s.wsHub != nil {
		r.Get("/ws", s.wsHub.HandleWS)
	}
}

// --- Request/Response types ---

// BuyRequest is the JSON body for POST /trades/buy. Amount is the SUI
// to spend.
type BuyRequest struct {
	UserID string          `json:"user_id"`
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
}

// SellRequest is the JSON body for POST /trades/sell. Quantity is in
// units of the token.
type SellRequest struct {
	UserID   string          `json:"user_id"`
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
}

// TradeResponse is returned from both trade endpoints: the executed
// trade plus the account state it left behind.
type TradeResponse struct {
	Trade   model.Trade     `json:"trade"`
	Balance decimal.Decimal `json:"balance"`
	Holding *model.Holding  `json:"holding,omitempty"` // nil once fully sold
}

// --- HTTP Handlers ---

// ListTokens handles GET /api/v1/tokens with simulated market quotes.
func (s *Service) ListTokens(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.oracle.Quotes())
}

// Buy handles POST /api/v1/trades/buy.
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	trade, err := s.ledger.Buy(req.UserID, req.Symbol, req.Amount)
	if err != nil {
		s.rejectTrade(w, err)
		return
	}
	metrics.TradesTotal.WithLabelValues(model.SideBuy).Inc()
	metrics.TradeLatency.WithLabelValues(model.SideBuy).Observe(time.Since(start).Seconds())

	s.finishTrade(w, r, trade)
}

// Sell handles POST /api/v1/trades/sell.
func (s *Service) Sell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	trade, err := s.ledger.Sell(req.UserID, req.Symbol, req.Quantity)
	if err != nil {
		s.rejectTrade(w, err)
		return
	}
	metrics.TradesTotal.WithLabelValues(model.SideSell).Inc()
	metrics.TradeLatency.WithLabelValues(model.SideSell).Observe(time.Since(start).Seconds())

	s.finishTrade(w, r, trade)
}

// finishTrade persists, broadcasts, and responds after a successful
// ledger mutation. Persistence is restart recovery, not settlement: a
// store failure is logged, never unwound.
func (s *Service) finishTrade(w http.ResponseWriter, r *http.Request, trade *model.Trade) {
	acct := s.ledger.Account(trade.UserID)
	metrics.ActiveAccounts.Set(float64(s.ledger.Len()))

	ctx := r.Context()
	if err := s.store.InsertTrade(ctx, trade); err != nil {
		slog.Warn("trade log write failed", "trade_id", trade.ID, "err", err)
	}
	if err := s.store.SaveAccount(ctx, acct); err != nil {
		slog.Warn("account snapshot write failed", "user", trade.UserID, "err", err)
	}

	slog.Info("trade executed",
		"trade_id", trade.ID,
		"user", trade.UserID,
		"symbol", trade.Symbol,
		"side", trade.Side,
		"qty", trade.Quantity.String(),
		"price", trade.Price.String(),
		"amount", trade.Amount.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "trade_executed",
			Symbol:   trade.Symbol,
			Side:     trade.Side,
			Quantity: trade.Quantity.String(),
			Price:    trade.Price.String(),
		})
	}

	resp := TradeResponse{Trade: *trade, Balance: acct.Balance}
	if h, ok := acct.Holdings[trade.Symbol]; ok {
		resp.Holding = &h
	}
	writeJSON(w, http.StatusOK, resp)
}

// rejectTrade maps ledger validation failures onto HTTP status codes.
func (s *Service) rejectTrade(w http.ResponseWriter, err error) {
	var status int
	var reason string

	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		status, reason = http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, ledger.ErrInvalidToken):
		status, reason = http.StatusBadRequest, "invalid_token"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		status, reason = http.StatusConflict, "insufficient_balance"
	case errors.Is(err, ledger.ErrInsufficientHoldings):
		status, reason = http.StatusConflict, "insufficient_holdings"
	case errors.Is(err, token.ErrUnknownSymbol):
		status, reason = http.StatusNotFound, "unknown_symbol"
	default:
		status, reason = http.StatusInternalServerError, "internal"
	}

	metrics.TradeRejections.WithLabelValues(reason).Inc()
	writeError(w, err.Error(), status)
}

// GetAccount handles GET /api/v1/accounts/{userID}. Creates the seeded
// account on first reference.
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	acct := s.ledger.Account(userID)
	metrics.ActiveAccounts.Set(float64(s.ledger.Len()))
	writeJSON(w, http.StatusOK, acct)
}

// Reset handles POST /api/v1/accounts/{userID}/reset.
func (s *Service) Reset(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	acct := s.ledger.Reset(userID)
	metrics.AccountResets.Inc()
	metrics.ActiveAccounts.Set(float64(s.ledger.Len()))

	if err := s.store.SaveAccount(r.Context(), acct); err != nil {
		slog.Warn("account snapshot write failed", "user", userID, "err", err)
	}

	slog.Info("account reset", "user", userID)
	writeJSON(w, http.StatusOK, acct)
}

// GetTrades handles GET /api/v1/accounts/{userID}/trades.
func (s *Service) GetTrades(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	trades, err := s.store.GetTradesByUser(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to load trade history", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetTokenTrades handles GET /api/v1/tokens/{symbol}/trades: the trade
// history of a single token across all accounts.
func (s *Service) GetTokenTrades(w http.ResponseWriter, r *http.Request) {
	symbol := token.Normalize(chi.URLParam(r, "symbol"))

	trades, err := s.store.GetTradesBySymbol(r.Context(), symbol)
	if err != nil {
		writeError(w, "failed to load trade history", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetPortfolio handles GET /api/v1/portfolio/{userID}: balance,
// portfolio value, unrealized PnL, and the per-holding breakdown.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	report, err := s.reporter.Report(userID)
	if err != nil {
		writeError(w, "failed to build report", http.StatusInternalServerError)
		return
	}
	metrics.ActiveAccounts.Set(float64(s.ledger.Len()))
	writeJSON(w, http.StatusOK, report)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
