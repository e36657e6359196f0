// internal/engine/fake_test.go
package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/pokerhall/tableserv/internal/database"
	"github.com/pokerhall/tableserv/internal/models"
)

type accountTxn struct {
	accountID int64
	kind      string
	delta     int64
}

// fakeStore is an in-memory Store. All methods are safe for concurrent use
// so session workers and tests can share it.
type fakeStore struct {
	mu         sync.Mutex
	tables     map[int64]*models.TableProfile
	tableUsers map[int64]map[int64]*models.TableUser
	msgs       []*models.Message
	msgSeq     int64
	cmds       map[int64]*models.Command
	users      map[int64]*models.User
	accounts   map[int64]*database.Account
	txns       []accountTxn
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tables:     make(map[int64]*models.TableProfile),
		tableUsers: make(map[int64]map[int64]*models.TableUser),
		cmds:       make(map[int64]*models.Command),
		users:      make(map[int64]*models.User),
		accounts:   make(map[int64]*database.Account),
	}
}

// addUser registers a user with a funded account of the same id.
func (f *fakeStore) addUser(userID, balance int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID] = &models.User{ID: userID, Username: fmt.Sprintf("u%d", userID), AccountID: userID}
	f.accounts[userID] = &database.Account{ID: userID, UserID: userID, Balance: balance}
}

func (f *fakeStore) seatUser(tableID, userID int64, seat int, balance int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tableUsers[tableID] == nil {
		f.tableUsers[tableID] = make(map[int64]*models.TableUser)
	}
	f.tableUsers[tableID][userID] = &models.TableUser{
		TableID: tableID, UserID: userID, Seat: seat, Balance: balance,
	}
}

func (f *fakeStore) GetTable(_ context.Context, id int64) (*models.TableProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[id]
	if !ok {
		return nil, fmt.Errorf("table %d not found", id)
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) GetOpenTables(_ context.Context) ([]*models.TableProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.TableProfile
	for _, t := range f.tables {
		if t.Status == models.TableStatusOpen {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) CloseTable(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tables[id]; ok {
		t.Status = models.TableStatusClosed
	}
	return nil
}

func (f *fakeStore) GetTableUsers(_ context.Context, tableID int64) ([]*models.TableUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.TableUser
	for _, tu := range f.tableUsers[tableID] {
		cp := *tu
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) CreateTableUser(_ context.Context, _ pgx.Tx, tu *models.TableUser) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tableUsers[tu.TableID] == nil {
		f.tableUsers[tu.TableID] = make(map[int64]*models.TableUser)
	}
	cp := *tu
	f.tableUsers[tu.TableID][tu.UserID] = &cp
	return nil
}

func (f *fakeStore) DeleteTableUser(_ context.Context, _ pgx.Tx, tableID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tableUsers[tableID], userID)
	return nil
}

func (f *fakeStore) UpdateTableUserBalance(_ context.Context, tableID, userID, balance int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tu, ok := f.tableUsers[tableID][userID]; ok {
		tu.Balance = balance
	}
	return nil
}

func (f *fakeStore) CreateTableMsg(_ context.Context, m *models.Message) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgSeq++
	m.ID = f.msgSeq
	cp := m.Clone()
	f.msgs = append(f.msgs, cp)
	return m.ID, nil
}

func (f *fakeStore) GetTableCmd(_ context.Context, id int64) (*models.Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd, ok := f.cmds[id]
	if !ok {
		return nil, fmt.Errorf("cmd %d not found", id)
	}
	cp := *cmd
	return &cp, nil
}

func (f *fakeStore) SetTableCmdProcessed(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cmd, ok := f.cmds[id]; ok {
		cmd.Processed = true
	}
	return nil
}

func (f *fakeStore) GetUnprocessedCmds(_ context.Context, tableID int64) ([]*models.Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Command
	for _, cmd := range f.cmds {
		if cmd.TableID == tableID && !cmd.Processed {
			cp := *cmd
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

func (f *fakeStore) GetUser(_ context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d not found", id)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetAccountForUpdate(_ context.Context, _ pgx.Tx, accountID int64) (*database.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %d not found", accountID)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) CreateAccountTxn(_ context.Context, _ pgx.Tx, accountID int64, kind string, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %d not found", accountID)
	}
	a.Balance += delta
	f.txns = append(f.txns, accountTxn{accountID: accountID, kind: kind, delta: delta})
	return nil
}

func (f *fakeStore) accountBalance(id int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[id]; ok {
		return a.Balance
	}
	return 0
}

func (f *fakeStore) msgsOfType(t models.MsgType) []*models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Message
	for _, m := range f.msgs {
		if m.MsgType == t {
			out = append(out, m)
		}
	}
	return out
}

// waitForMsg polls until at least n events of the given type exist.
func (f *fakeStore) waitForMsg(t *testing.T, msgType models.MsgType, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(f.msgsOfType(msgType)) >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %s events, have %d", n, msgType, len(f.msgsOfType(msgType)))
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func ringProfile(id int64) *models.TableProfile {
	return &models.TableProfile{
		ID:            id,
		Name:          fmt.Sprintf("ring-%d", id),
		TableType:     models.TableTypeRing,
		SeatCount:     6,
		GameType:      "holdem",
		GameSubtype:   "nl",
		SpeedType:     models.SpeedStandard,
		BuyInCost:     100,
		MinPlayers:    2,
		Status:        models.TableStatusOpen,
		SmallBlind:    1,
		BigBlind:      2,
		ActionTimeout: 20 * time.Millisecond,
	}
}

func sngProfile(id int64) *models.TableProfile {
	p := ringProfile(id)
	p.Name = fmt.Sprintf("sng-%d", id)
	p.TableType = models.TableTypeSNG
	p.SmallBlind, p.BigBlind, p.Ante = 0, 0, 0
	return p
}
