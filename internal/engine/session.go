// internal/engine/session.go
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/pokerhall/tableserv/internal/cache"
	"github.com/pokerhall/tableserv/internal/database"
	"github.com/pokerhall/tableserv/internal/game"
	"github.com/pokerhall/tableserv/internal/models"
)

// State is the table session lifecycle. OPEN is the only state in which
// players join, bet and hands run; SHUTDOWN lets an in-flight hand finish;
// CLOSED is terminal and triggers registry release.
type State int

const (
	StateStartup State = iota
	StateRegister
	StateOpen
	StateShutdown
	StateClosing
	StateClosed
)

var stateNames = map[State]string{
	StateStartup:  "startup",
	StateRegister: "register",
	StateOpen:     "open",
	StateShutdown: "shutdown",
	StateClosing:  "closing",
	StateClosed:   "closed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Store is the data-access surface the engine consumes. *database.Store
// satisfies it; tests inject fakes.
type Store interface {
	GetTable(ctx context.Context, id int64) (*models.TableProfile, error)
	GetOpenTables(ctx context.Context) ([]*models.TableProfile, error)
	CloseTable(ctx context.Context, id int64) error
	GetTableUsers(ctx context.Context, tableID int64) ([]*models.TableUser, error)
	CreateTableUser(ctx context.Context, tx pgx.Tx, tu *models.TableUser) error
	DeleteTableUser(ctx context.Context, tx pgx.Tx, tableID, userID int64) error
	UpdateTableUserBalance(ctx context.Context, tableID, userID, balance int64) error
	CreateTableMsg(ctx context.Context, m *models.Message) (int64, error)
	GetTableCmd(ctx context.Context, id int64) (*models.Command, error)
	SetTableCmdProcessed(ctx context.Context, id int64) error
	GetUnprocessedCmds(ctx context.Context, tableID int64) ([]*models.Command, error)
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetAccountForUpdate(ctx context.Context, tx pgx.Tx, accountID int64) (*database.Account, error)
	CreateAccountTxn(ctx context.Context, tx pgx.Tx, accountID int64, kind string, delta int64) error
}

// HandHistory receives terminal hand records. *cache.History satisfies it.
type HandHistory interface {
	PushHand(ctx context.Context, rec cache.HandRecord) error
}

// Session is one running worker owning a single open table's live state.
type Session interface {
	Start(ctx context.Context)
	// HandleCommand hands a command to the session's serial worker. It
	// blocks only while the worker queue is full and fails once the
	// session has closed.
	HandleCommand(ctx context.Context, cmd *models.Command) error
	// Shutdown asks the worker to stop accepting joins and hands; an
	// in-flight hand still finishes.
	Shutdown()
	// Wait blocks until the worker has fully exited.
	Wait()
	TableID() int64
}

// NewSession builds the session variant matching the table profile: plain
// ring table, or tournament with a blind-level clock.
func NewSession(profile *models.TableProfile, store Store, history HandHistory, log *logrus.Logger) Session {
	base := newTableSession(profile, store, history, log)
	if profile.TableType.IsTournament() {
		return newTournamentSession(base)
	}
	return base
}

const (
	defaultInterHandDelay = 3 * time.Second
	cmdQueueSize          = 32
)

type seatState struct {
	userID  int64
	seat    int
	balance int64
	sitOut  bool
	exiting bool
}

// tableSession is the ring-table worker. All mutation happens on the single
// run goroutine; commands arrive through the cmds channel, so no lock
// guards the session state itself. The mu below exists only for the stakes
// fields a tournament's level clock updates concurrently.
type tableSession struct {
	profile *models.TableProfile
	store   Store
	history HandHistory
	log     *logrus.Entry

	cmds     chan *models.Command
	shutdown chan struct{}
	shutOnce sync.Once
	done     chan struct{}

	state   State
	seats   map[int]*seatState
	game    *game.Game
	handSeq int64

	interHandDelay time.Duration

	mu       sync.Mutex
	stakes   models.Level
	levelIdx int

	// registrationOpen gates JOIN/TAKE_SEAT; tournament sessions close it
	// when the first hand is dealt.
	registrationOpen    bool
	closeRegOnFirstHand bool
}

func newTableSession(profile *models.TableProfile, store Store, history HandHistory, log *logrus.Logger) *tableSession {
	return &tableSession{
		profile: profile,
		store:   store,
		history: history,
		log: log.WithFields(logrus.Fields{
			"table_id":   profile.ID,
			"table_type": profile.TableType,
		}),
		cmds:             make(chan *models.Command, cmdQueueSize),
		shutdown:         make(chan struct{}),
		done:             make(chan struct{}),
		seats:            make(map[int]*seatState),
		interHandDelay:   defaultInterHandDelay,
		stakes:           models.Level{SmallBlind: profile.SmallBlind, BigBlind: profile.BigBlind, Ante: profile.Ante},
		registrationOpen: true,
	}
}

func (s *tableSession) TableID() int64 { return s.profile.ID }

func (s *tableSession) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *tableSession) Shutdown() {
	s.shutOnce.Do(func() { close(s.shutdown) })
}

func (s *tableSession) Wait() {
	<-s.done
}

func (s *tableSession) HandleCommand(ctx context.Context, cmd *models.Command) error {
	select {
	case s.cmds <- cmd:
		return nil
	case <-s.done:
		return fmt.Errorf("session for table %d closed", cmd.TableID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the worker loop: hydrate, then alternate inter-hand waits and
// hands until shutdown or the table empties out.
func (s *tableSession) run(ctx context.Context) {
	defer close(s.done)

	s.state = StateStartup
	s.state = StateRegister
	if err := s.hydrate(ctx); err != nil {
		s.log.WithError(err).Error("session hydration failed")
		s.state = StateClosed
		return
	}
	s.state = StateOpen
	s.emitStatus(ctx)
	s.log.Info("table session open")

	for {
		s.waitBetweenHands(ctx)
		if ctx.Err() != nil || s.state != StateOpen {
			break
		}
		if len(s.readySeats()) >= s.profile.MinPlayers {
			s.runHand(ctx)
			s.settleAfterHand(ctx)
		}
		if len(s.seats) < 2 && s.handSeq > 0 {
			s.log.Info("fewer than 2 players remain")
			break
		}
		if ctx.Err() != nil || s.state != StateOpen {
			break
		}
	}

	s.state = StateClosing
	s.emitStatus(ctx)
	s.cashOutAll(ctx)
	if err := s.store.CloseTable(ctx, s.profile.ID); err != nil {
		s.log.WithError(err).Warn("close table failed")
	}
	s.state = StateClosed
	s.emitStatus(ctx)
	s.log.Info("table session closed")
}

// waitBetweenHands sleeps the inter-hand delay while still applying
// commands serially.
func (s *tableSession) waitBetweenHands(ctx context.Context) {
	timer := time.NewTimer(s.interHandDelay)
	defer timer.Stop()
	for {
		select {
		case cmd := <-s.cmds:
			s.applyCmd(ctx, cmd)
		case <-s.shutdown:
			if s.state == StateOpen {
				s.state = StateShutdown
			}
			return
		case <-ctx.Done():
			s.state = StateShutdown
			return
		case <-timer.C:
			return
		}
	}
}

// hydrate restores seats from storage so restarts don't lose table state.
func (s *tableSession) hydrate(ctx context.Context) error {
	users, err := s.store.GetTableUsers(ctx, s.profile.ID)
	if err != nil {
		return err
	}
	for _, u := range users {
		s.seats[u.Seat] = &seatState{userID: u.UserID, seat: u.Seat, balance: u.Balance}
	}
	return nil
}

// readySeats returns the seats entering the next hand, in seat order.
func (s *tableSession) readySeats() []*seatState {
	var out []*seatState
	for _, st := range s.seats {
		if !st.sitOut && !st.exiting && st.balance > 0 {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seat < out[j].seat })
	return out
}

func (s *tableSession) currentStakes() models.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stakes
}

// runHand drives one Game from deal to termination, pumping the command
// channel for the acting player's decision.
func (s *tableSession) runHand(ctx context.Context) {
	ready := s.readySeats()
	seats := make([]game.SeatInfo, 0, len(ready))
	for _, st := range ready {
		seats = append(seats, game.SeatInfo{UserID: st.userID, Seat: st.seat})
	}

	s.handSeq++
	if s.closeRegOnFirstHand {
		s.registrationOpen = false
	}
	stakes := s.currentStakes()
	cfg := game.Config{
		GameID:           s.handSeq,
		TableID:          s.profile.ID,
		HoleCards:        s.profile.HoleCards(),
		SmallBlind:       stakes.SmallBlind,
		BigBlind:         stakes.BigBlind,
		Ante:             stakes.Ante,
		Button:           int(s.handSeq - 1),
		TimeoutAutoCheck: true,
	}
	g, err := game.NewGame(cfg, seats, game.NewDeck(), s.log, s.emitMsg)
	if err != nil {
		s.log.WithError(err).Error("cannot start hand")
		return
	}
	s.game = g
	defer func() { s.game = nil }()

	s.emitMsg(ctx, &models.Message{
		TableID: s.profile.ID,
		GameID:  s.handSeq,
		MsgType: models.MsgGameStarted,
	})
	g.Deal(ctx)

	for !g.Finished() && ctx.Err() == nil {
		g.EmitTurn(ctx, int(s.profile.ActionTimeout.Seconds()))
		s.awaitDecision(ctx, g)
	}

	bank, results := g.Settle()
	for _, r := range results {
		for _, st := range s.seats {
			if st.userID == r.UserID {
				st.balance += r.Won - r.Committed
				if err := s.store.UpdateTableUserBalance(ctx, s.profile.ID, st.userID, st.balance); err != nil {
					s.log.WithError(err).Warn("mirror seat balance failed")
				}
			}
		}
	}
	s.emitMsg(ctx, &models.Message{
		TableID: s.profile.ID,
		GameID:  s.handSeq,
		MsgType: models.MsgGameEnded,
		Props:   models.EncodeProps(models.GameEndedProps{Bank: bank, Results: results}),
	})
	if s.history != nil {
		rec := cache.HandRecord{
			TableID: s.profile.ID,
			GameID:  s.handSeq,
			Bank:    bank,
			Results: results,
			EndedAt: time.Now().Unix(),
		}
		if err := s.history.PushHand(ctx, rec); err != nil {
			s.log.WithError(err).Warn("hand history push failed")
		}
	}
}

// awaitDecision blocks until the acting player acts, the action timeout
// fires an auto-action, or the hand is torn down. Non-bet commands arriving
// meanwhile are still applied serially here.
func (s *tableSession) awaitDecision(ctx context.Context, g *game.Game) {
	timer := time.NewTimer(s.profile.ActionTimeout)
	defer timer.Stop()
	shutdown := s.shutdown
	for {
		select {
		case cmd := <-s.cmds:
			if cmd.CmdType != models.CmdBet {
				s.applyCmd(ctx, cmd)
				continue
			}
			var bp models.BetProps
			if err := models.DecodeProps(cmd.Props, &bp); err != nil {
				s.log.WithError(err).WithField("cmd_id", cmd.ID).Warn("malformed bet props, dropping")
				continue
			}
			if err := g.HandleBetCmd(ctx, cmd.UserID, game.BetKind(bp.Kind), bp.Amount, cmd.ID); err != nil {
				s.log.WithError(err).WithFields(logrus.Fields{
					"cmd_id":  cmd.ID,
					"user_id": cmd.UserID,
				}).Warn("bet rejected")
				continue
			}
			return
		case <-timer.C:
			g.AutoAct(ctx)
			return
		case <-shutdown:
			// A closed channel stays ready; nil the local copy so this arm
			// fires once and the loop blocks on the others.
			shutdown = nil
			if s.state == StateOpen {
				s.state = StateShutdown
				s.log.Info("shutdown requested, finishing hand")
			}
			continue
		case <-ctx.Done():
			return
		}
	}
}

// applyCmd routes one non-bet command. Invalid commands are logged and
// dropped; the row is marked processed by the registry regardless.
func (s *tableSession) applyCmd(ctx context.Context, cmd *models.Command) {
	var err error
	switch cmd.CmdType {
	case models.CmdJoin:
		err = s.join(ctx, cmd, -1)
	case models.CmdTakeSeat:
		var tp models.TakeSeatProps
		if err = models.DecodeProps(cmd.Props, &tp); err == nil {
			err = s.join(ctx, cmd, tp.Seat)
		}
	case models.CmdExit:
		err = s.exit(ctx, cmd.UserID)
	case models.CmdSitOut:
		err = s.setSitOut(cmd.UserID, true)
	case models.CmdComeBack:
		err = s.setSitOut(cmd.UserID, false)
	case models.CmdBet:
		err = fmt.Errorf("no active hand")
	default:
		err = fmt.Errorf("unknown cmd_type %q", cmd.CmdType)
	}
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"cmd_id":   cmd.ID,
			"cmd_type": cmd.CmdType,
			"user_id":  cmd.UserID,
		}).Warn("command rejected")
	}
}

// join seats a user, debiting the buy-in from their external balance and
// crediting the in-session stack in a single transaction.
func (s *tableSession) join(ctx context.Context, cmd *models.Command, seat int) error {
	if s.state != StateOpen {
		return fmt.Errorf("table not open (%s)", s.state)
	}
	if !s.registrationOpen {
		return fmt.Errorf("registration closed")
	}
	for _, st := range s.seats {
		if st.userID == cmd.UserID {
			return fmt.Errorf("user %d already seated", cmd.UserID)
		}
	}
	if seat < 0 {
		seat = s.freeSeat()
	}
	if seat < 0 || seat >= s.profile.SeatCount {
		return fmt.Errorf("no free seat")
	}
	if _, taken := s.seats[seat]; taken {
		return fmt.Errorf("seat %d occupied", seat)
	}

	user, err := s.store.GetUser(ctx, cmd.UserID)
	if err != nil {
		return err
	}
	buyIn := s.profile.BuyInCost
	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		acct, err := s.store.GetAccountForUpdate(ctx, tx, user.AccountID)
		if err != nil {
			return err
		}
		if acct.Balance < buyIn {
			return fmt.Errorf("insufficient balance: have %d, need %d", acct.Balance, buyIn)
		}
		if err := s.store.CreateAccountTxn(ctx, tx, acct.ID, database.TxnBuyIn, -buyIn); err != nil {
			return err
		}
		return s.store.CreateTableUser(ctx, tx, &models.TableUser{
			TableID: s.profile.ID,
			UserID:  cmd.UserID,
			Seat:    seat,
			Balance: buyIn,
		})
	})
	if err != nil {
		return err
	}

	s.seats[seat] = &seatState{userID: cmd.UserID, seat: seat, balance: buyIn}
	s.emitMsg(ctx, &models.Message{
		TableID: s.profile.ID,
		UserID:  cmd.UserID,
		CmdID:   cmd.ID,
		MsgType: models.MsgPlayerJoined,
		Props:   models.EncodeProps(map[string]any{"seat": seat, "balance": buyIn}),
	})
	return nil
}

func (s *tableSession) freeSeat() int {
	for i := 0; i < s.profile.SeatCount; i++ {
		if _, taken := s.seats[i]; !taken {
			return i
		}
	}
	return -1
}

// exit cashes a user out. During a hand the seat is only marked; the actual
// cash-out happens in settleAfterHand once the hand finishes.
func (s *tableSession) exit(ctx context.Context, userID int64) error {
	st := s.seatOf(userID)
	if st == nil {
		return fmt.Errorf("user %d not seated", userID)
	}
	if s.game != nil {
		st.exiting = true
		return nil
	}
	return s.cashOut(ctx, st)
}

func (s *tableSession) setSitOut(userID int64, sitOut bool) error {
	st := s.seatOf(userID)
	if st == nil {
		return fmt.Errorf("user %d not seated", userID)
	}
	st.sitOut = sitOut
	return nil
}

func (s *tableSession) seatOf(userID int64) *seatState {
	for _, st := range s.seats {
		if st.userID == userID {
			return st
		}
	}
	return nil
}

// cashOut credits the remaining stack back to the external balance and
// clears the seat, atomically from the caller's perspective.
func (s *tableSession) cashOut(ctx context.Context, st *seatState) error {
	user, err := s.store.GetUser(ctx, st.userID)
	if err != nil {
		return err
	}
	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := s.store.GetAccountForUpdate(ctx, tx, user.AccountID); err != nil {
			return err
		}
		if err := s.store.CreateAccountTxn(ctx, tx, user.AccountID, database.TxnCashOut, st.balance); err != nil {
			return err
		}
		return s.store.DeleteTableUser(ctx, tx, s.profile.ID, st.userID)
	})
	if err != nil {
		return err
	}
	delete(s.seats, st.seat)
	s.emitMsg(ctx, &models.Message{
		TableID: s.profile.ID,
		UserID:  st.userID,
		MsgType: models.MsgPlayerExited,
		Props:   models.EncodeProps(map[string]any{"seat": st.seat, "balance": st.balance}),
	})
	return nil
}

// settleAfterHand cashes out busted players and those who asked to leave
// mid-hand.
func (s *tableSession) settleAfterHand(ctx context.Context) {
	for _, st := range s.seats {
		if st.balance <= 0 || st.exiting {
			if err := s.cashOut(ctx, st); err != nil {
				s.log.WithError(err).WithField("user_id", st.userID).Warn("post-hand cash-out failed")
			}
		}
	}
}

func (s *tableSession) cashOutAll(ctx context.Context) {
	for _, st := range s.seats {
		if err := s.cashOut(ctx, st); err != nil {
			s.log.WithError(err).WithField("user_id", st.userID).Warn("closing cash-out failed")
		}
	}
}

func (s *tableSession) emitStatus(ctx context.Context) {
	s.emitMsg(ctx, &models.Message{
		TableID: s.profile.ID,
		MsgType: models.MsgTableStatus,
		Props:   models.EncodeProps(map[string]any{"status": s.state.String()}),
	})
}

// emitMsg persists an event row; the bus notify rides on the insert.
func (s *tableSession) emitMsg(ctx context.Context, m *models.Message) {
	if _, err := s.store.CreateTableMsg(ctx, m); err != nil {
		s.log.WithError(err).WithField("msg_type", m.MsgType).Warn("emit event failed")
	}
}
