// internal/ws/clients_test.go
package ws

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokerhall/tableserv/internal/models"
)

// fakeStore serves canned event rows and records cursor writes.
type fakeStore struct {
	msgs    map[int64]*models.Message
	byTable map[int64][]*models.Message
	cursors map[uuid.UUID]int64
	cmds    []models.Command

	// onMsgsAfter, when set, runs after GetTableMsgsAfter has taken its
	// result snapshot and before it returns.
	onMsgsAfter func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		msgs:    make(map[int64]*models.Message),
		byTable: make(map[int64][]*models.Message),
		cursors: make(map[uuid.UUID]int64),
	}
}

func (f *fakeStore) add(m *models.Message) {
	f.msgs[m.ID] = m
	f.byTable[m.TableID] = append(f.byTable[m.TableID], m)
}

func (f *fakeStore) GetTableMsg(_ context.Context, id int64) (*models.Message, error) {
	return f.msgs[id], nil
}

func (f *fakeStore) GetTableMsgsAfter(_ context.Context, tableID, afterID int64) ([]*models.Message, error) {
	var out []*models.Message
	for _, m := range f.byTable[tableID] {
		if m.ID > afterID {
			out = append(out, m)
		}
	}
	if f.onMsgsAfter != nil {
		f.onMsgsAfter()
	}
	return out, nil
}

func (f *fakeStore) CreateTableCmd(_ context.Context, tableID int64, clientID uuid.UUID, userID int64, cmdType models.CmdType, props map[string]any) (int64, error) {
	f.cmds = append(f.cmds, models.Command{
		TableID:  tableID,
		ClientID: clientID,
		UserID:   userID,
		CmdType:  cmdType,
		Props:    props,
	})
	return int64(len(f.cmds)), nil
}

func (f *fakeStore) UpsertClient(_ context.Context, _ uuid.UUID, _ int64) error {
	return nil
}

func (f *fakeStore) GetClientInfo(_ context.Context, clientID uuid.UUID) (*models.ClientInfo, error) {
	return &models.ClientInfo{LastMsgID: f.cursors[clientID]}, nil
}

func (f *fakeStore) SetClientCursor(_ context.Context, clientID uuid.UUID, lastMsgID int64) error {
	f.cursors[clientID] = lastMsgID
	return nil
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func testClient(userID int64) *Client {
	return NewClient(uuid.New(), userID, nil, quietLog())
}

func drain(c *Client) []*models.Message {
	var out []*models.Message
	for {
		select {
		case m := <-c.send:
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestSubscribeReplaysBacklogFromCursor(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	for id := int64(1); id <= 4; id++ {
		store.add(&models.Message{ID: id, TableID: 7, MsgType: models.MsgTableStatus})
	}
	cm := NewClientsManager(store, quietLog())

	c := testClient(101)
	store.cursors[c.ID] = 2

	require.NoError(t, cm.Subscribe(ctx, c, 7))

	got := drain(c)
	require.Len(t, got, 2, "only events past the cursor replay")
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, int64(4), got[1].ID)
}

func TestSubscribeDoesNotSkipConcurrentEvents(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	for id := int64(3); id <= 4; id++ {
		store.add(&models.Message{ID: id, TableID: 7, MsgType: models.MsgTableStatus})
	}
	cm := NewClientsManager(store, quietLog())

	c := testClient(101)
	store.cursors[c.ID] = 2

	// Events land while the backlog query is in flight: one the snapshot
	// already holds and one it missed.
	store.onMsgsAfter = func() {
		store.onMsgsAfter = nil
		cm.Deliver(store.msgs[4])
		live := &models.Message{ID: 5, TableID: 7, MsgType: models.MsgTableStatus}
		store.add(live)
		cm.Deliver(live)
	}

	require.NoError(t, cm.Subscribe(ctx, c, 7))
	cm.Deliver(&models.Message{ID: 6, TableID: 7, MsgType: models.MsgTableStatus})

	var ids []int64
	for _, m := range drain(c) {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []int64{3, 4, 5, 6}, ids, "no gap, no duplicate")
}

func TestCatchupReplaysMissedEvents(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.add(&models.Message{ID: 1, TableID: 7, MsgType: models.MsgTableStatus})
	store.add(&models.Message{ID: 2, TableID: 7, MsgType: models.MsgTableStatus})
	cm := NewClientsManager(store, quietLog())

	a := testClient(101)
	b := testClient(202)
	store.cursors[a.ID] = 2
	store.cursors[b.ID] = 2
	require.NoError(t, cm.Subscribe(ctx, a, 7))
	require.NoError(t, cm.Subscribe(ctx, b, 7))
	require.Empty(t, drain(a))
	require.Empty(t, drain(b))

	// Events written while the bus connection was down: no notifications
	// arrived, only the log rows exist. b wrote its cursor past the first.
	store.add(&models.Message{ID: 3, TableID: 7, MsgType: models.MsgTableStatus})
	store.add(&models.Message{ID: 4, TableID: 7, MsgType: models.MsgTableStatus})
	store.cursors[b.ID] = 3

	require.NoError(t, cm.Catchup(ctx))

	var idsA []int64
	for _, m := range drain(a) {
		idsA = append(idsA, m.ID)
	}
	assert.Equal(t, []int64{3, 4}, idsA)

	var idsB []int64
	for _, m := range drain(b) {
		idsB = append(idsB, m.ID)
	}
	assert.Equal(t, []int64{4}, idsB, "events before the cursor do not repeat")
}

func TestDeliverFansOutToSubscribers(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	cm := NewClientsManager(store, quietLog())

	a := testClient(101)
	b := testClient(202)
	require.NoError(t, cm.Subscribe(ctx, a, 7))
	require.NoError(t, cm.Subscribe(ctx, b, 7))

	msg := &models.Message{
		ID:      5,
		TableID: 7,
		UserID:  101,
		MsgType: models.MsgPlayerCards,
		Props:   models.EncodeProps(models.PlayerCardsProps{Cards: []int{11, 12}}),
	}
	store.add(msg)
	cm.Deliver(msg)

	gotA := drain(a)
	require.Len(t, gotA, 1)
	var props models.PlayerCardsProps
	require.NoError(t, models.DecodeProps(gotA[0].Props, &props))
	assert.Equal(t, []int{11, 12}, props.Cards, "owner sees their cards")

	gotB := drain(b)
	require.Len(t, gotB, 1)
	require.NoError(t, models.DecodeProps(gotB[0].Props, &props))
	assert.Equal(t, []int{0, 0}, props.Cards, "others see hidden cards")
}

func TestDeliverIgnoresNonSubscribers(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	cm := NewClientsManager(store, quietLog())

	c := testClient(101)
	require.NoError(t, cm.Subscribe(ctx, c, 7))

	cm.Deliver(&models.Message{ID: 1, TableID: 99, MsgType: models.MsgTableStatus})
	assert.Empty(t, drain(c))
}

func TestRedirectSwapsSubscription(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	cm := NewClientsManager(store, quietLog())

	c := testClient(101)
	require.NoError(t, cm.Subscribe(ctx, c, 7))

	redirect := &models.Message{
		ID:      9,
		TableID: 7,
		MsgType: models.MsgRedirect,
		Props:   models.EncodeProps(models.RedirectProps{ToTableID: 8}),
	}
	cm.Deliver(redirect)

	// The redirect itself is delivered, then the client follows the move.
	got := drain(c)
	require.Len(t, got, 1)
	assert.Equal(t, models.MsgRedirect, got[0].MsgType)

	assert.Contains(t, c.tables, int64(8))
	assert.NotContains(t, c.tables, int64(7))

	// Events on the destination table now reach the client.
	cm.Deliver(&models.Message{ID: 10, TableID: 8, MsgType: models.MsgTableStatus})
	assert.Len(t, drain(c), 1)

	// Events on the origin table no longer do.
	cm.Deliver(&models.Message{ID: 11, TableID: 7, MsgType: models.MsgTableStatus})
	assert.Empty(t, drain(c))
}

func TestDirectedDeliveryBypassesSubscription(t *testing.T) {
	store := newFakeStore()
	cm := NewClientsManager(store, quietLog())

	c := testClient(101)
	cm.mu.Lock()
	cm.clients[c.ID] = c
	cm.mu.Unlock()

	other := testClient(202)
	cm.mu.Lock()
	cm.clients[other.ID] = other
	cm.mu.Unlock()

	msg := &models.Message{
		ID:       3,
		TableID:  7,
		ClientID: &c.ID,
		MsgType:  models.MsgTableStatus,
	}
	cm.Deliver(msg)

	assert.Len(t, drain(c), 1)
	assert.Empty(t, drain(other))
}

func TestSlowConsumerDoesNotBlockFanOut(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	cm := NewClientsManager(store, quietLog())

	c := testClient(101)
	require.NoError(t, cm.Subscribe(ctx, c, 7))

	for i := 0; i < sendQueueSize+5; i++ {
		cm.Deliver(&models.Message{ID: int64(i + 1), TableID: 7, MsgType: models.MsgTableStatus})
	}

	// The queue holds exactly its capacity; the overflow was dropped and
	// Deliver never blocked.
	assert.Len(t, drain(c), sendQueueSize)
}

func TestUnregisterRemovesAllSubscriptions(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	cm := NewClientsManager(store, quietLog())

	c := testClient(101)
	cm.Register(ctx, c)
	require.NoError(t, cm.Subscribe(ctx, c, 7))
	require.NoError(t, cm.Subscribe(ctx, c, 8))
	require.Equal(t, 1, cm.Len())

	cm.Unregister(c)
	assert.Zero(t, cm.Len())

	cm.Deliver(&models.Message{ID: 1, TableID: 7, MsgType: models.MsgTableStatus})
	cm.Deliver(&models.Message{ID: 2, TableID: 8, MsgType: models.MsgTableStatus})
	assert.Empty(t, drain(c))
}
