// internal/ws/clients.go
package ws

import (
	"context"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pokerhall/tableserv/internal/bus"
	"github.com/pokerhall/tableserv/internal/models"
)

// Store is the data-access surface the gateway consumes. *database.Store
// satisfies it.
type Store interface {
	GetTableMsg(ctx context.Context, id int64) (*models.Message, error)
	GetTableMsgsAfter(ctx context.Context, tableID, afterID int64) ([]*models.Message, error)
	CreateTableCmd(ctx context.Context, tableID int64, clientID uuid.UUID, userID int64, cmdType models.CmdType, props map[string]any) (int64, error)
	UpsertClient(ctx context.Context, clientID uuid.UUID, userID int64) error
	GetClientInfo(ctx context.Context, clientID uuid.UUID) (*models.ClientInfo, error)
	SetClientCursor(ctx context.Context, clientID uuid.UUID, lastMsgID int64) error
}

// ClientsManager tracks live connections and fans table events out to
// their subscribers, redacted per recipient and in event-id order.
type ClientsManager struct {
	store Store
	log   *logrus.Logger

	mu      sync.Mutex
	clients map[uuid.UUID]*Client
	tables  map[int64]map[uuid.UUID]*Client
}

// NewClientsManager builds an empty manager.
func NewClientsManager(store Store, log *logrus.Logger) *ClientsManager {
	return &ClientsManager{
		store:   store,
		log:     log,
		clients: make(map[uuid.UUID]*Client),
		tables:  make(map[int64]map[uuid.UUID]*Client),
	}
}

// Register records the connection and starts its writer task.
func (cm *ClientsManager) Register(ctx context.Context, c *Client) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	cm.mu.Lock()
	cm.clients[c.ID] = c
	cm.mu.Unlock()

	go c.writeLoop(ctx, cm.store)
	cm.log.WithField("client_id", c.ID).Info("client registered")
}

// Unregister tears the connection down: cancels its writer, waits for it
// to exit, and clears every subscription before the client entry goes.
func (cm *ClientsManager) Unregister(c *Client) {
	cm.mu.Lock()
	if c.closed {
		cm.mu.Unlock()
		return
	}
	c.closed = true
	for tableID := range c.tables {
		if subs, ok := cm.tables[tableID]; ok {
			delete(subs, c.ID)
			if len(subs) == 0 {
				delete(cm.tables, tableID)
			}
		}
	}
	delete(cm.clients, c.ID)
	cm.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	<-c.doneW
	cm.log.WithField("client_id", c.ID).Info("client unregistered")
}

// Subscribe adds the connection to a table's subscriber set, then replays
// the events it missed since its cursor, in id order. The subscription is
// installed before the backlog query runs; live events arriving meanwhile
// are staged and flushed after the backlog, deduplicated by id, so an event
// landing mid-subscribe is never skipped.
func (cm *ClientsManager) Subscribe(ctx context.Context, c *Client, tableID int64) error {
	cm.mu.Lock()
	if c.closed {
		cm.mu.Unlock()
		return nil
	}
	if _, ok := c.tables[tableID]; ok {
		cm.mu.Unlock()
		return nil
	}
	cm.subscribeLocked(c, tableID)
	c.staging[tableID] = []*models.Message{}
	cm.mu.Unlock()

	info, err := cm.store.GetClientInfo(ctx, c.ID)
	var backlog []*models.Message
	if err == nil {
		backlog, err = cm.store.GetTableMsgsAfter(ctx, tableID, info.LastMsgID)
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	staged := c.staging[tableID]
	delete(c.staging, tableID)
	if err != nil {
		cm.unsubscribeLocked(c, tableID)
		return err
	}
	if c.closed {
		return nil
	}
	lastID := info.LastMsgID
	for _, m := range backlog {
		cm.enqueueLocked(c, m)
		if m.ID > lastID {
			lastID = m.ID
		}
	}
	for _, m := range staged {
		if m.ID > lastID {
			cm.enqueueLocked(c, m)
		}
	}
	return nil
}

// Unsubscribe removes the connection from a table's subscriber set.
func (cm *ClientsManager) Unsubscribe(c *Client, tableID int64) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.unsubscribeLocked(c, tableID)
}

func (cm *ClientsManager) subscribeLocked(c *Client, tableID int64) {
	subs, ok := cm.tables[tableID]
	if !ok {
		subs = make(map[uuid.UUID]*Client)
		cm.tables[tableID] = subs
	}
	subs[c.ID] = c
	c.tables[tableID] = struct{}{}
}

func (cm *ClientsManager) unsubscribeLocked(c *Client, tableID int64) {
	if subs, ok := cm.tables[tableID]; ok {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(cm.tables, tableID)
		}
	}
	delete(c.tables, tableID)
}

// Catchup replays, for every watched table, the events emitted while the
// bus connection was down. It runs on every listener (re)connect, before
// live notifications resume. Each table is queried once from its lowest
// subscriber cursor; per recipient, only events past that client's own
// cursor are enqueued. An event still queued but not yet written repeats,
// which the cursor contract allows; a skip it does not.
func (cm *ClientsManager) Catchup(ctx context.Context) error {
	cm.mu.Lock()
	watched := make(map[int64][]*Client, len(cm.tables))
	for tableID, subs := range cm.tables {
		for _, c := range subs {
			watched[tableID] = append(watched[tableID], c)
		}
	}
	cm.mu.Unlock()

	for tableID, subs := range watched {
		cursors := make(map[uuid.UUID]int64, len(subs))
		low := int64(-1)
		for _, c := range subs {
			info, err := cm.store.GetClientInfo(ctx, c.ID)
			if err != nil {
				return err
			}
			cursors[c.ID] = info.LastMsgID
			if low < 0 || info.LastMsgID < low {
				low = info.LastMsgID
			}
		}
		if low < 0 {
			continue
		}
		backlog, err := cm.store.GetTableMsgsAfter(ctx, tableID, low)
		if err != nil {
			return err
		}

		cm.mu.Lock()
		for _, m := range backlog {
			for _, c := range subs {
				if m.ID <= cursors[c.ID] {
					continue
				}
				cm.redirectLocked(c, m)
				cm.enqueueLocked(c, m)
			}
		}
		cm.mu.Unlock()
	}
	return nil
}

// OnTableMsg resolves a bus notification to its event row and fans it out.
// Failures are contained to this one notification.
func (cm *ClientsManager) OnTableMsg(ctx context.Context, n bus.Notification) {
	msg, err := cm.store.GetTableMsg(ctx, n.RowID)
	if err != nil {
		cm.log.WithError(err).WithField("msg_id", n.RowID).Warn("cannot load event row")
		return
	}
	cm.Deliver(msg)
}

// Deliver pushes one event to every subscriber of its table, redacted per
// recipient. A redirect event swaps each recipient's subscription in the
// same critical section, before the event is handed to the transport.
func (cm *ClientsManager) Deliver(msg *models.Message) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	// Directed delivery bypasses the subscriber set.
	if msg.ClientID != nil {
		if c, ok := cm.clients[*msg.ClientID]; ok {
			cm.redirectLocked(c, msg)
			cm.enqueueLocked(c, msg)
		}
		return
	}

	subs := cm.tables[msg.TableID]
	recipients := make([]*Client, 0, len(subs))
	for _, c := range subs {
		recipients = append(recipients, c)
	}
	for _, c := range recipients {
		cm.redirectLocked(c, msg)
		cm.enqueueLocked(c, msg)
	}
}

// redirectLocked applies a redirect event's subscription swap.
func (cm *ClientsManager) redirectLocked(c *Client, msg *models.Message) {
	if msg.MsgType != models.MsgRedirect {
		return
	}
	var props models.RedirectProps
	if err := models.DecodeProps(msg.Props, &props); err != nil {
		cm.log.WithError(err).Warn("malformed redirect props")
		return
	}
	cm.unsubscribeLocked(c, msg.TableID)
	cm.subscribeLocked(c, props.ToTableID)
}

// enqueueLocked places a redacted copy on the client's outbound queue. A
// full queue means the consumer is too slow; the connection is closed so
// it can reconnect and replay from its cursor.
func (cm *ClientsManager) enqueueLocked(c *Client, msg *models.Message) {
	if c.closed {
		return
	}
	if buf, ok := c.staging[msg.TableID]; ok {
		c.staging[msg.TableID] = append(buf, msg)
		return
	}
	redacted := RedactFor(c.UserID, msg)
	select {
	case c.send <- redacted:
	default:
		cm.log.WithFields(logrus.Fields{
			"client_id": c.ID,
			"msg_id":    msg.ID,
		}).Warn("outbound queue full, dropping client")
		if c.conn != nil {
			// Closing the transport surfaces in the read loop, which
			// unregisters the client. It can reconnect and replay from
			// its cursor.
			go func() {
				_ = c.conn.Close(websocket.StatusPolicyViolation, "consumer too slow")
			}()
		}
	}
}

// Len reports the number of registered clients.
func (cm *ClientsManager) Len() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.clients)
}
