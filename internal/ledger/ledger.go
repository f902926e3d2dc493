// Package ledger is the accounting core of the paper engine. It owns
// every user account — settlement balance plus at most one holding per
// token — and exposes the buy/sell/reset operations and read views.
//
// Operations are all-or-nothing: every precondition is checked before
// any mutation, so a failed call never leaves an account half-updated.
// Accounts are created lazily with the seeded starting state on first
// reference.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/suipaper/paper-engine/internal/model"
	"github.com/suipaper/paper-engine/internal/token"
)

var (
	// ErrInvalidToken is returned when a trade names a symbol that is
	// not a tradable token (unknown, or the settlement token itself).
	ErrInvalidToken = errors.New("ledger: not a tradable token")

	// ErrInvalidAmount is returned for non-positive amounts/quantities.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")

	// ErrInsufficientBalance is returned when a buy exceeds the
	// account's settlement balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrInsufficientHoldings is returned when a sell exceeds the held
	// quantity, or the user holds none of the symbol.
	ErrInsufficientHoldings = errors.New("ledger: insufficient holdings")

	// StartingBalance is the settlement balance every account seeds with.
	StartingBalance = decimal.NewFromInt(1000)

	// ReferralBonus is seeded alongside the balance. Reset restores it
	// too: a reset account is indistinguishable from a fresh one.
	ReferralBonus = decimal.NewFromInt(500)

	// QuantityScale is the number of decimal places for bought
	// quantities and average cost.
	QuantityScale int32 = 8
)

// PriceSource supplies the execution price for a symbol. Satisfied by
// *oracle.Oracle; tests inject a fixed stub.
type PriceSource interface {
	Price(symbol string) (decimal.Decimal, error)
}

// accountState pairs an account with its own lock. Operations on
// distinct users never contend; operations on one user serialize.
type accountState struct {
	mu   sync.Mutex
	acct model.Account
}

// Ledger owns the full account collection. Construct one per process
// and pass it by handle to the serving layer.
type Ledger struct {
	tokens *token.Registry
	prices PriceSource

	mu       sync.RWMutex
	accounts map[string]*accountState
}

// New creates an empty ledger over the given token set and price source.
func New(tokens *token.Registry, prices PriceSource) *Ledger {
	return &Ledger{
		tokens:   tokens,
		prices:   prices,
		accounts: make(map[string]*accountState),
	}
}

// seed returns a fresh account in the starting state.
func seed(userID string) model.Account {
	now := time.Now().UTC()
	return model.Account{
		UserID:        userID,
		Balance:       StartingBalance,
		ReferralBonus: ReferralBonus,
		Holdings:      make(map[string]model.Holding),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// getOrCreate returns the state for a user, creating the seeded account
// if absent. Creation is atomic: two racing first accesses resolve to
// the same account and neither resets the other.
func (l *Ledger) getOrCreate(userID string) *accountState {
	l.mu.RLock()
	st, ok := l.accounts[userID]
	l.mu.RUnlock()
	if ok {
		return st
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.accounts[userID]; ok {
		return st
	}
	st = &accountState{acct: seed(userID)}
	l.accounts[userID] = st
	return st
}

// Buy spends amount of settlement balance on a tradable token at the
// oracle's current price, creating or averaging into the holding.
// The balance is debited by exactly amount — no fee.
func (l *Ledger) Buy(userID, symbol string, amount decimal.Decimal) (*model.Trade, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidAmount, amount)
	}

	t, err := l.tokens.Get(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, symbol)
	}
	if t.Settlement {
		return nil, fmt.Errorf("%w: %s is the settlement token", ErrInvalidToken, t.Symbol)
	}

	st := l.getOrCreate(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if amount.GreaterThan(st.acct.Balance) {
		return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientBalance, amount, st.acct.Balance)
	}

	// One price per operation: the same draw prices the quantity and
	// the receipt.
	price, err := l.prices.Price(t.Symbol)
	if err != nil {
		return nil, err
	}
	quantity := amount.DivRound(price, QuantityScale)

	h, held := st.acct.Holdings[t.Symbol]
	if !held {
		h = model.Holding{Symbol: t.Symbol, Quantity: quantity, AvgCost: price}
	} else {
		// Quantity-weighted average cost, recomputed on every buy.
		newQty := h.Quantity.Add(quantity)
		h.AvgCost = h.Quantity.Mul(h.AvgCost).
			Add(quantity.Mul(price)).
			DivRound(newQty, QuantityScale)
		h.Quantity = newQty
	}
	st.acct.Holdings[t.Symbol] = h
	st.acct.Balance = st.acct.Balance.Sub(amount)
	st.acct.UpdatedAt = time.Now().UTC()

	return &model.Trade{
		ID:        uuid.New().String(),
		UserID:    userID,
		Symbol:    t.Symbol,
		Side:      model.SideBuy,
		Quantity:  quantity,
		Price:     price,
		Amount:    amount,
		Timestamp: st.acct.UpdatedAt,
	}, nil
}

// Sell converts quantity of a held token back to settlement balance at
// the oracle's current price. Average cost is untouched; a holding that
// reaches exactly zero quantity is removed.
func (l *Ledger) Sell(userID, symbol string, quantity decimal.Decimal) (*model.Trade, error) {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidAmount, quantity)
	}
	sym := token.Normalize(symbol)

	st := l.getOrCreate(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	h, held := st.acct.Holdings[sym]
	if !held {
		return nil, fmt.Errorf("%w: no %s held", ErrInsufficientHoldings, sym)
	}
	if quantity.GreaterThan(h.Quantity) {
		return nil, fmt.Errorf("%w: selling %s, holding %s", ErrInsufficientHoldings, quantity, h.Quantity)
	}

	price, err := l.prices.Price(sym)
	if err != nil {
		return nil, err
	}
	proceeds := quantity.Mul(price)

	h.Quantity = h.Quantity.Sub(quantity)
	if h.Quantity.IsZero() {
		delete(st.acct.Holdings, sym)
	} else {
		st.acct.Holdings[sym] = h
	}
	st.acct.Balance = st.acct.Balance.Add(proceeds)
	st.acct.UpdatedAt = time.Now().UTC()

	return &model.Trade{
		ID:        uuid.New().String(),
		UserID:    userID,
		Symbol:    sym,
		Side:      model.SideSell,
		Quantity:  quantity,
		Price:     price,
		Amount:    proceeds,
		Timestamp: st.acct.UpdatedAt,
	}, nil
}

// Reset unconditionally replaces the account with the seeded starting
// state, referral bonus included. Idempotent, never fails.
func (l *Ledger) Reset(userID string) *model.Account {
	st := l.getOrCreate(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	created := st.acct.CreatedAt
	st.acct = seed(userID)
	st.acct.CreatedAt = created
	return st.acct.Clone()
}

// Account returns a copy of the user's account, creating the seeded
// account if it does not yet exist.
func (l *Ledger) Account(userID string) *model.Account {
	st := l.getOrCreate(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.acct.Clone()
}

// Len reports how many accounts the ledger holds.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.accounts)
}

// Restore loads account snapshots into an empty ledger, typically from
// the store at startup. Existing in-memory accounts are not overwritten.
func (l *Ledger) Restore(accounts []model.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range accounts {
		if _, ok := l.accounts[a.UserID]; ok {
			continue
		}
		if a.Holdings == nil {
			a.Holdings = make(map[string]model.Holding)
		}
		l.accounts[a.UserID] = &accountState{acct: *a.Clone()}
	}
}
