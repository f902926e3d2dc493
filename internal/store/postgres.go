package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/suipaper/paper-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// SaveAccount upserts the account row and replaces its holdings rows in
// one transaction, so a snapshot is never half-written.
func (s *PostgresStore) SaveAccount(ctx context.Context, a *model.Account) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("save account %s: %w", a.UserID, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO accounts (user_id, balance, referral_bonus, created_at, updated_at)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE
		 SET balance = EXCLUDED.balance,
		     referral_bonus = EXCLUDED.referral_bonus,
		     updated_at = EXCLUDED.updated_at`,
		a.UserID, a.Balance.String(), a.ReferralBonus.String(),
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save account %s: %w", a.UserID, err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM holdings WHERE user_id = $1`, a.UserID); err != nil {
		return fmt.Errorf("save account %s: %w", a.UserID, err)
	}

	for _, h := range a.Holdings {
		if _, err := tx.Exec(ctx,
			`INSERT INTO holdings (user_id, symbol, quantity, avg_cost)
			 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC)`,
			a.UserID, h.Symbol, h.Quantity.String(), h.AvgCost.String(),
		); err != nil {
			return fmt.Errorf("save holding %s/%s: %w", a.UserID, h.Symbol, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	var a model.Account
	var balance, bonus string

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, balance::TEXT, referral_bonus::TEXT, created_at, updated_at
		 FROM accounts WHERE user_id = $1`, userID).
		Scan(&a.UserID, &balance, &bonus, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", userID, err)
	}

	a.Balance, _ = decimal.NewFromString(balance)
	a.ReferralBonus, _ = decimal.NewFromString(bonus)

	a.Holdings, err = s.getHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) getHoldings(ctx context.Context, userID string) (map[string]model.Holding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, quantity::TEXT, avg_cost::TEXT
		 FROM holdings WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("get holdings %s: %w", userID, err)
	}
	defer rows.Close()

	holdings := make(map[string]model.Holding)
	for rows.Next() {
		var h model.Holding
		var qty, avg string
		if err := rows.Scan(&h.Symbol, &qty, &avg); err != nil {
			return nil, err
		}
		h.Quantity, _ = decimal.NewFromString(qty)
		h.AvgCost, _ = decimal.NewFromString(avg)
		holdings[h.Symbol] = h
	}
	return holdings, rows.Err()
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, balance::TEXT, referral_bonus::TEXT, created_at, updated_at
		 FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		var balance, bonus string
		if err := rows.Scan(&a.UserID, &balance, &bonus, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Balance, _ = decimal.NewFromString(balance)
		a.ReferralBonus, _ = decimal.NewFromString(bonus)
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range accounts {
		holdings, err := s.getHoldings(ctx, accounts[i].UserID)
		if err != nil {
			return nil, err
		}
		accounts[i].Holdings = holdings
	}
	return accounts, nil
}

func (s *PostgresStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (id, user_id, symbol, side, quantity, price, amount, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8)`,
		t.ID, t.UserID, t.Symbol, t.Side,
		t.Quantity.String(), t.Price.String(), t.Amount.String(),
		t.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetTradesByUser(ctx context.Context, userID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, symbol, side,
		        quantity::TEXT, price::TEXT, amount::TEXT, timestamp
		 FROM trades WHERE user_id = $1 ORDER BY timestamp`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *PostgresStore) GetTradesBySymbol(ctx context.Context, symbol string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, symbol, side,
		        quantity::TEXT, price::TEXT, amount::TEXT, timestamp
		 FROM trades WHERE symbol = $1 ORDER BY timestamp`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

// scanTrades reads pgx rows into Trade slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanTrades(rows pgxRows) ([]model.Trade, error) {
	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var qtyS, priceS, amountS string

		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Side,
			&qtyS, &priceS, &amountS, &t.Timestamp); err != nil {
			return nil, err
		}

		t.Quantity, _ = decimal.NewFromString(qtyS)
		t.Price, _ = decimal.NewFromString(priceS)
		t.Amount, _ = decimal.NewFromString(amountS)

		trades = append(trades, t)
	}
	return trades, rows.Err()
}
