// internal/database/msglog.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pokerhall/tableserv/internal/bus"
	"github.com/pokerhall/tableserv/internal/models"
)

const msgColumns = `id, table_id, game_id, user_id, cmd_id, client_id, msg_type, props`

// CreateTableMsg appends an event row and wakes the fan-out layer. The
// database-assigned id fixes the event's place in the table's causal order.
// The input message's ID field is ignored.
func (s *Store) CreateTableMsg(ctx context.Context, m *models.Message) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO table_msgs (table_id, game_id, user_id, cmd_id, client_id, msg_type, props)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		m.TableID, m.GameID, m.UserID, m.CmdID, m.ClientID, m.MsgType, m.Props).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create table msg: %w", err)
	}
	m.ID = id
	if err := s.notifier.Publish(ctx, bus.ChanTableMsg, m.TableID, id); err != nil {
		return id, err
	}
	return id, nil
}

// GetTableMsg fetches one event row by id.
func (s *Store) GetTableMsg(ctx context.Context, id int64) (*models.Message, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+msgColumns+` FROM table_msgs WHERE id = $1`, id)
	m, err := scanMsg(row)
	if err != nil {
		return nil, fmt.Errorf("get table msg %d: %w", id, err)
	}
	return m, nil
}

// GetTableMsgsAfter returns a table's events with id greater than afterID,
// in id order. Subscribers use it to replay from their cursor and to
// self-heal when they detect a gap.
func (s *Store) GetTableMsgsAfter(ctx context.Context, tableID, afterID int64) ([]*models.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+msgColumns+` FROM table_msgs WHERE table_id = $1 AND id > $2 ORDER BY id`,
		tableID, afterID)
	if err != nil {
		return nil, fmt.Errorf("get table msgs after %d for table %d: %w", afterID, tableID, err)
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		m, err := scanMsg(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func scanMsg(row pgx.Row) (*models.Message, error) {
	var m models.Message
	err := row.Scan(&m.ID, &m.TableID, &m.GameID, &m.UserID, &m.CmdID, &m.ClientID, &m.MsgType, &m.Props)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
