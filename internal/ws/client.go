// internal/ws/client.go
package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pokerhall/tableserv/internal/models"
)

const (
	// sendQueueSize bounds the per-connection outbound queue. A consumer
	// that falls this far behind is closed rather than allowed to stall
	// fan-out for everyone else.
	sendQueueSize = 64
	writeTimeout  = 3 * time.Second
)

// Client is one live viewer connection: a websocket, the set of tables it
// watches and a private bounded outbound queue drained by a dedicated
// writer task.
type Client struct {
	ID     uuid.UUID
	UserID int64

	conn *websocket.Conn
	log  *logrus.Entry

	send   chan *models.Message
	cancel context.CancelFunc
	doneW  chan struct{}

	// tables and staging are guarded by the owning ClientsManager's lock.
	// staging holds live events that arrive for a table while its backlog
	// query is still running; they are flushed after the backlog.
	tables  map[int64]struct{}
	staging map[int64][]*models.Message
	closed  bool
}

// NewClient wraps an accepted connection.
func NewClient(id uuid.UUID, userID int64, conn *websocket.Conn, log *logrus.Logger) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		conn:   conn,
		log: log.WithFields(logrus.Fields{
			"client_id": id,
			"user_id":   userID,
		}),
		send:    make(chan *models.Message, sendQueueSize),
		doneW:   make(chan struct{}),
		tables:  make(map[int64]struct{}),
		staging: make(map[int64][]*models.Message),
	}
}

// writeLoop drains the outbound queue to the transport in order,
// persisting the message cursor after each successful write.
func (c *Client) writeLoop(ctx context.Context, store Store) {
	defer close(c.doneW)
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-c.send:
			data, err := json.Marshal(m)
			if err != nil {
				c.log.WithError(err).Warn("marshal outbound message failed")
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.log.WithError(err).Info("outbound write failed, stopping writer")
				return
			}
			if m.ID > 0 {
				if err := store.SetClientCursor(ctx, c.ID, m.ID); err != nil {
					c.log.WithError(err).Warn("cursor persist failed")
				}
			}
		}
	}
}
