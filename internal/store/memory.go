package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/suipaper/paper-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*model.Account
	trades   []model.Trade
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*model.Account),
	}
}

func (s *MemoryStore) SaveAccount(_ context.Context, acct *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	s.accounts[acct.UserID] = acct.Clone()
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, userID string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("account %s not found", userID)
	}
	return a.Clone(), nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, *a.Clone())
	}
	return accounts, nil
}

func (s *MemoryStore) InsertTrade(_ context.Context, trade *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, *trade)
	return nil
}

func (s *MemoryStore) GetTradesByUser(_ context.Context, userID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if t.UserID == userID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetTradesBySymbol(_ context.Context, symbol string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if t.Symbol == symbol {
			result = append(result, t)
		}
	}
	return result, nil
}
