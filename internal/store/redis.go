package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/suipaper/paper-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis
// read-through cache. Writes go to the primary store and invalidate the
// cache; reads check Redis first then fall back to the primary.
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

// --- Write-through (write to primary, refresh/invalidate cache) ---

func (s *CachedStore) SaveAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.SaveAccount(ctx, a); err != nil {
		return err
	}
	s.cacheAccount(ctx, a)
	return nil
}

func (s *CachedStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	if err := s.primary.InsertTrade(ctx, t); err != nil {
		return err
	}
	// Invalidate trade history for this user; next read re-populates.
	s.rdb.Del(ctx, tradesKey(t.UserID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, accountKey(userID)).Bytes()
	if err == nil {
		var a model.Account
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	// Cache miss: read from primary.
	a, err := s.primary.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.cacheAccount(ctx, a)
	return a, nil
}

func (s *CachedStore) GetTradesByUser(ctx context.Context, userID string) ([]model.Trade, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, tradesKey(userID)).Bytes()
	if err == nil {
		var trades []model.Trade
		if json.Unmarshal(data, &trades) == nil {
			return trades, nil
		}
	}

	// Cache miss.
	trades, err := s.primary.GetTradesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(trades); err == nil {
		s.rdb.Set(ctx, tradesKey(userID), data, s.ttl)
	}
	return trades, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.primary.ListAccounts(ctx)
}

func (s *CachedStore) GetTradesBySymbol(ctx context.Context, symbol string) ([]model.Trade, error) {
	return s.primary.GetTradesBySymbol(ctx, symbol)
}

// --- Cache helpers ---

func (s *CachedStore) cacheAccount(ctx context.Context, a *model.Account) {
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, accountKey(a.UserID), data, s.ttl)
	}
}

func accountKey(uid string) string { return fmt.Sprintf("account:%s", uid) }
func tradesKey(uid string) string  { return fmt.Sprintf("trades:%s", uid) }
