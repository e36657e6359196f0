// internal/database/store.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pokerhall/tableserv/internal/bus"
)

// Store owns the pool and the publish side of the bus. All data-access
// operations the engine core consumes hang off it; callers never touch SQL
// directly.
type Store struct {
	pool     *pgxpool.Pool
	notifier bus.Notifier
}

// NewStore wires the pool and notifier together.
func NewStore(pool *pgxpool.Pool, notifier bus.Notifier) *Store {
	return &Store{pool: pool, notifier: notifier}
}

// Pool exposes the underlying pool for components that manage their own
// connections (the bus listener).
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// WithTx runs fn inside a transaction. Two-step units (ledger + session
// state) go through here so both effects commit or roll back together.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
