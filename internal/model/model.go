// Package model defines the core domain types shared across the paper engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Token describes one entry in the fixed token set. Loaded once at
// process start and read-only afterwards.
type Token struct {
	Symbol     string          `json:"symbol" db:"symbol"`
	Name       string          `json:"name" db:"name"`
	BasePrice  decimal.Decimal `json:"base_price" db:"base_price"`
	Settlement bool            `json:"settlement,omitempty" db:"settlement"` // unit of account, price never fluctuates
}

// Holding is a user's position in one tradable token. A holding exists
// only while Quantity > 0; selling down to exactly zero removes it.
type Holding struct {
	Symbol   string          `json:"symbol" db:"symbol"`
	Quantity decimal.Decimal `json:"quantity" db:"quantity"`
	AvgCost  decimal.Decimal `json:"avg_cost" db:"avg_cost"` // quantity-weighted, SUI per unit, recomputed on buys only
}

// Account is one user's paper-trading state: settlement balance plus at
// most one holding per token symbol. Mutated only through the ledger.
type Account struct {
	UserID        string             `json:"user_id" db:"user_id"`
	Balance       decimal.Decimal    `json:"balance" db:"balance"`
	ReferralBonus decimal.Decimal    `json:"referral_bonus" db:"referral_bonus"`
	Holdings      map[string]Holding `json:"holdings"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy so callers can read account state without
// holding ledger locks.
func (a *Account) Clone() *Account {
	c := *a
	c.Holdings = make(map[string]Holding, len(a.Holdings))
	for sym, h := range a.Holdings {
		c.Holdings[sym] = h
	}
	return &c
}

// Trade is an immutable record of one executed paper trade.
// Once created, these are never modified or deleted.
type Trade struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Symbol    string          `json:"symbol" db:"symbol"`
	Side      string          `json:"side" db:"side"` // "BUY" or "SELL"
	Quantity  decimal.Decimal `json:"quantity" db:"quantity"`
	Price     decimal.Decimal `json:"price" db:"price"`   // execution price, SUI per unit
	Amount    decimal.Decimal `json:"amount" db:"amount"` // SUI debited (buy) or credited (sell)
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// Quote is a simulated market view of one tradable token.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change_24h"` // percent
	Volume    decimal.Decimal `json:"volume"`     // SUI
}

// HoldingReport is the per-token breakdown in a portfolio report,
// priced from the report's single snapshot.
type HoldingReport struct {
	Symbol     string          `json:"symbol"`
	Quantity   decimal.Decimal `json:"quantity"`
	AvgCost    decimal.Decimal `json:"avg_cost"`
	Price      decimal.Decimal `json:"price"`
	Value      decimal.Decimal `json:"value"`
	PnL        decimal.Decimal `json:"pnl"`
	PnLPercent decimal.Decimal `json:"pnl_percent"`
}

// PortfolioReport aggregates balance, valuation, and PnL for one user.
// All figures derive from one price snapshot, so value and PnL are
// mutually consistent.
type PortfolioReport struct {
	UserID         string          `json:"user_id"`
	Balance        decimal.Decimal `json:"balance"`
	ReferralBonus  decimal.Decimal `json:"referral_bonus"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	UnrealizedPnL  decimal.Decimal `json:"unrealized_pnl"`
	PnLPercent     decimal.Decimal `json:"pnl_percent"`
	Holdings       []HoldingReport `json:"holdings"`
}
