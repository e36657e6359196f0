// internal/database/cmdlog.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pokerhall/tableserv/internal/bus"
	"github.com/pokerhall/tableserv/internal/models"
)

// CreateTableCmd appends a command row and wakes the owning worker. The
// returned id is the command's position in the table's serial order.
func (s *Store) CreateTableCmd(ctx context.Context, tableID int64, clientID uuid.UUID, userID int64, cmdType models.CmdType, props map[string]any) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO table_cmds (table_id, client_id, user_id, cmd_type, props, processed)
		 VALUES ($1, $2, $3, $4, $5, false) RETURNING id`,
		tableID, clientID, userID, cmdType, props).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create table cmd: %w", err)
	}
	if err := s.notifier.Publish(ctx, bus.ChanTableCmd, tableID, id); err != nil {
		return id, err
	}
	return id, nil
}

// GetTableCmd fetches one command row by id.
func (s *Store) GetTableCmd(ctx context.Context, id int64) (*models.Command, error) {
	var c models.Command
	err := s.pool.QueryRow(ctx,
		`SELECT id, table_id, client_id, user_id, cmd_type, props, processed
		 FROM table_cmds WHERE id = $1`, id).
		Scan(&c.ID, &c.TableID, &c.ClientID, &c.UserID, &c.CmdType, &c.Props, &c.Processed)
	if err != nil {
		return nil, fmt.Errorf("get table cmd %d: %w", id, err)
	}
	return &c, nil
}

// SetTableCmdProcessed marks a command consumed. Processed commands are
// never reapplied, which makes duplicate notifications harmless.
func (s *Store) SetTableCmdProcessed(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE table_cmds SET processed = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark cmd %d processed: %w", id, err)
	}
	return nil
}

// GetUnprocessedCmds returns a table's command backlog in insertion order.
// The registry replays this during catch-up so a missed notification never
// loses a command.
func (s *Store) GetUnprocessedCmds(ctx context.Context, tableID int64) ([]*models.Command, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, table_id, client_id, user_id, cmd_type, props, processed
		 FROM table_cmds WHERE table_id = $1 AND NOT processed ORDER BY id`, tableID)
	if err != nil {
		return nil, fmt.Errorf("get unprocessed cmds for table %d: %w", tableID, err)
	}
	defer rows.Close()
	return scanCmds(rows)
}

func scanCmds(rows pgx.Rows) ([]*models.Command, error) {
	var cmds []*models.Command
	for rows.Next() {
		var c models.Command
		if err := rows.Scan(&c.ID, &c.TableID, &c.ClientID, &c.UserID, &c.CmdType, &c.Props, &c.Processed); err != nil {
			return nil, err
		}
		cmds = append(cmds, &c)
	}
	return cmds, rows.Err()
}
