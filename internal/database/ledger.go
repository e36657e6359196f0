// internal/database/ledger.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Ledger transaction kinds recorded against player accounts.
const (
	TxnBuyIn   = "buy_in"
	TxnCashOut = "cash_out"
)

// Account is a row in the club chip ledger.
type Account struct {
	ID      int64
	UserID  int64
	Balance int64
}

// GetAccountForUpdate fetches an account under a row-level lock. Must run
// inside the caller's transaction; the lock holds until commit/rollback.
func (s *Store) GetAccountForUpdate(ctx context.Context, tx pgx.Tx, accountID int64) (*Account, error) {
	var a Account
	err := tx.QueryRow(ctx,
		`SELECT id, user_id, balance FROM accounts WHERE id = $1 FOR UPDATE`, accountID).
		Scan(&a.ID, &a.UserID, &a.Balance)
	if err != nil {
		return nil, fmt.Errorf("lock account %d: %w", accountID, err)
	}
	return &a, nil
}

// CreateAccountTxn records a ledger movement and applies the delta to the
// account balance, inside the caller's transaction.
func (s *Store) CreateAccountTxn(ctx context.Context, tx pgx.Tx, accountID int64, kind string, delta int64) error {
	if _, err := tx.Exec(ctx,
		`INSERT INTO account_txns (account_id, kind, delta) VALUES ($1, $2, $3)`,
		accountID, kind, delta); err != nil {
		return fmt.Errorf("create account txn: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = balance + $1 WHERE id = $2`, delta, accountID); err != nil {
		return fmt.Errorf("apply account delta: %w", err)
	}
	return nil
}
