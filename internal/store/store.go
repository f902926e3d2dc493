// Package store defines persistence for the paper engine: account
// snapshots (so the in-memory ledger survives restarts) and the
// immutable trade log. Implementations include PostgreSQL (source of
// truth), Redis (read-through cache), and in-memory (for testing).
package store

import (
	"context"

	"github.com/suipaper/paper-engine/internal/model"
)

// Store is the persistence interface. The ledger stays authoritative
// in-memory; the service layer writes through after each trade.
type Store interface {
	// --- Account snapshots ---

	// SaveAccount upserts the latest snapshot of an account.
	SaveAccount(ctx context.Context, acct *model.Account) error

	// GetAccount retrieves an account snapshot by user ID.
	GetAccount(ctx context.Context, userID string) (*model.Account, error)

	// ListAccounts returns all account snapshots, for ledger restore.
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// --- Immutable trade log ---

	// InsertTrade appends an immutable trade record.
	InsertTrade(ctx context.Context, trade *model.Trade) error

	// GetTradesByUser returns a user's trades, oldest first.
	GetTradesByUser(ctx context.Context, userID string) ([]model.Trade, error)

	// GetTradesBySymbol returns all trades in one token, oldest first.
	GetTradesBySymbol(ctx context.Context, symbol string) ([]model.Trade, error)
}
