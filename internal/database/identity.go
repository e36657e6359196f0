// internal/database/identity.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pokerhall/tableserv/internal/models"
)

// GetUser resolves a user id to its identity record.
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, account_id FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.AccountID)
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &u, nil
}

// GetClientInfo resolves a connection id to its user and message cursor.
func (s *Store) GetClientInfo(ctx context.Context, clientID uuid.UUID) (*models.ClientInfo, error) {
	var ci models.ClientInfo
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, last_msg_id FROM clients WHERE id = $1`, clientID).
		Scan(&ci.UserID, &ci.LastMsgID)
	if err != nil {
		return nil, fmt.Errorf("get client info %s: %w", clientID, err)
	}
	return &ci, nil
}

// UpsertClient records a live connection. The cursor survives reconnects so
// a returning client can replay events it missed.
func (s *Store) UpsertClient(ctx context.Context, clientID uuid.UUID, userID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO clients (id, user_id, last_msg_id) VALUES ($1, $2, 0)
		 ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id`,
		clientID, userID)
	if err != nil {
		return fmt.Errorf("upsert client %s: %w", clientID, err)
	}
	return nil
}

// SetClientCursor persists the highest event id delivered to a connection.
func (s *Store) SetClientCursor(ctx context.Context, clientID uuid.UUID, lastMsgID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE clients SET last_msg_id = $1 WHERE id = $2 AND last_msg_id < $1`,
		lastMsgID, clientID)
	if err != nil {
		return fmt.Errorf("set client cursor %s: %w", clientID, err)
	}
	return nil
}
