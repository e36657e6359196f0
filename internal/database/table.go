// internal/database/table.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pokerhall/tableserv/internal/bus"
	"github.com/pokerhall/tableserv/internal/models"
)

const tableColumns = `id, name, table_type, seat_count, game_type, game_subtype,
	speed_type, buy_in_cost, min_players, action_timeout_sec, status,
	small_blind, big_blind, ante`

func scanTable(row pgx.Row) (*models.TableProfile, error) {
	var p models.TableProfile
	var timeoutSec int
	err := row.Scan(&p.ID, &p.Name, &p.TableType, &p.SeatCount, &p.GameType,
		&p.GameSubtype, &p.SpeedType, &p.BuyInCost, &p.MinPlayers, &timeoutSec, &p.Status,
		&p.SmallBlind, &p.BigBlind, &p.Ante)
	if err != nil {
		return nil, err
	}
	p.ActionTimeout = time.Duration(timeoutSec) * time.Second
	return &p, nil
}

// GetTable fetches a table profile by id.
func (s *Store) GetTable(ctx context.Context, id int64) (*models.TableProfile, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tableColumns+` FROM tables WHERE id = $1`, id)
	p, err := scanTable(row)
	if err != nil {
		return nil, fmt.Errorf("get table %d: %w", id, err)
	}
	return p, nil
}

// GetOpenTables returns every table the registry must own after a restart.
func (s *Store) GetOpenTables(ctx context.Context) ([]*models.TableProfile, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tableColumns+` FROM tables WHERE status = $1 ORDER BY id`, models.TableStatusOpen)
	if err != nil {
		return nil, fmt.Errorf("get open tables: %w", err)
	}
	defer rows.Close()

	var tables []*models.TableProfile
	for rows.Next() {
		p, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, p)
	}
	return tables, rows.Err()
}

// CloseTable marks a table closed and notifies listeners. Closed is terminal.
func (s *Store) CloseTable(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE tables SET status = $1 WHERE id = $2`, models.TableStatusClosed, id)
	if err != nil {
		return fmt.Errorf("close table %d: %w", id, err)
	}
	return s.notifier.Publish(ctx, bus.ChanTableClosed, id, id)
}

// CreateTableUser seats a user with their starting stack, inside the
// caller's buy-in transaction.
func (s *Store) CreateTableUser(ctx context.Context, tx pgx.Tx, tu *models.TableUser) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO table_users (table_id, user_id, seat, balance) VALUES ($1, $2, $3, $4)`,
		tu.TableID, tu.UserID, tu.Seat, tu.Balance)
	if err != nil {
		return fmt.Errorf("create table user %d@%d: %w", tu.UserID, tu.TableID, err)
	}
	return nil
}

// DeleteTableUser removes a seat row inside the caller's cash-out
// transaction.
func (s *Store) DeleteTableUser(ctx context.Context, tx pgx.Tx, tableID, userID int64) error {
	_, err := tx.Exec(ctx, `DELETE FROM table_users WHERE table_id = $1 AND user_id = $2`, tableID, userID)
	if err != nil {
		return fmt.Errorf("delete table user %d@%d: %w", userID, tableID, err)
	}
	return nil
}

// UpdateTableUserBalance mirrors a seat's running stack back to storage.
func (s *Store) UpdateTableUserBalance(ctx context.Context, tableID, userID, balance int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE table_users SET balance = $1 WHERE table_id = $2 AND user_id = $3`,
		balance, tableID, userID)
	if err != nil {
		return fmt.Errorf("update table user balance %d@%d: %w", userID, tableID, err)
	}
	return nil
}

// GetTableUsers hydrates a session's seats on startup.
func (s *Store) GetTableUsers(ctx context.Context, tableID int64) ([]*models.TableUser, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT table_id, user_id, seat, balance FROM table_users WHERE table_id = $1 ORDER BY seat`, tableID)
	if err != nil {
		return nil, fmt.Errorf("get table users %d: %w", tableID, err)
	}
	defer rows.Close()

	var users []*models.TableUser
	for rows.Next() {
		var tu models.TableUser
		if err := rows.Scan(&tu.TableID, &tu.UserID, &tu.Seat, &tu.Balance); err != nil {
			return nil, err
		}
		users = append(users, &tu)
	}
	return users, rows.Err()
}
