// internal/game/game.go
package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pokerhall/tableserv/internal/models"
)

var (
	// ErrNotYourTurn rejects a bet from anyone but the acting player.
	ErrNotYourTurn = errors.New("not this player's turn")
	// ErrHandOver rejects actions after the hand finished.
	ErrHandOver = errors.New("hand is over")
)

// Config fixes a single hand's parameters. Stakes come from the session's
// current blind level.
type Config struct {
	GameID     int64
	TableID    int64
	HoleCards  int
	SmallBlind int64
	BigBlind   int64
	Ante       int64

	// Button is the index (into the ordered seat list) holding the dealer
	// button this hand.
	Button int

	// TimeoutAutoCheck selects the auto-action when the acting player's
	// decision window expires and no bet is owed: CHECK when true, FOLD
	// otherwise. A player facing a bet always auto-folds.
	TimeoutAutoCheck bool
}

// EmitFn persists an event row. The session injects it; the engine never
// talks to storage or transport directly.
type EmitFn func(ctx context.Context, m *models.Message)

// SeatInfo is the session's view of one occupied seat entering the hand.
type SeatInfo struct {
	UserID int64
	Seat   int
}

// Game is a single hand's state machine: deal, forced bets, betting rounds,
// termination. Exactly one Game is active per table at a time; the owning
// session applies all mutations serially, so the struct needs no lock.
type Game struct {
	cfg  Config
	log  *logrus.Entry
	emit EmitFn

	players   []*Player
	round     Round
	deck      *Deck
	community []int

	bank        int64
	betLevel    int64
	betsAllSame bool
	activeCount int

	dealerIdx int
	sbIdx     int
	bbIdx     int
	actorIdx  int
	closerIdx int

	finished bool
}

// NewGame builds a hand over the given seats (ordered by seat index) and
// card source. At least two seats are required.
func NewGame(cfg Config, seats []SeatInfo, deck *Deck, log *logrus.Entry, emit EmitFn) (*Game, error) {
	if len(seats) < 2 {
		return nil, fmt.Errorf("need at least 2 players, have %d", len(seats))
	}
	if cfg.HoleCards <= 0 {
		cfg.HoleCards = 2
	}
	g := &Game{
		cfg:  cfg,
		log:  log,
		emit: emit,
		deck: deck,
	}
	for _, s := range seats {
		g.players = append(g.players, &Player{
			UserID: s.UserID,
			Seat:   s.Seat,
			Active: true,
		})
	}
	return g, nil
}

// Deal assigns roles by seat rotation, deals hole cards, posts the forced
// bets and opens the preflop betting round.
func (g *Game) Deal(ctx context.Context) {
	n := len(g.players)
	g.dealerIdx = g.cfg.Button % n
	if n == 2 {
		// Heads-up: the button posts the small blind.
		g.sbIdx = g.dealerIdx
		g.bbIdx = (g.dealerIdx + 1) % n
	} else {
		g.sbIdx = (g.dealerIdx + 1) % n
		g.bbIdx = (g.dealerIdx + 2) % n
	}
	g.players[g.dealerIdx].Role = RoleDealer
	g.players[g.sbIdx].Role = RoleSmallBlind
	g.players[g.bbIdx].Role = RoleBigBlind
	if n == 2 {
		g.players[g.dealerIdx].Role = RoleDealer
	}

	for _, p := range g.players {
		p.Cards = g.deck.DrawN(g.cfg.HoleCards)
		g.emit(ctx, &models.Message{
			TableID: g.cfg.TableID,
			GameID:  g.cfg.GameID,
			UserID:  p.UserID,
			MsgType: models.MsgPlayerCards,
			Props: models.EncodeProps(models.PlayerCardsProps{
				Cards:     p.Cards,
				CardsOpen: false,
			}),
		})
	}

	if g.cfg.Ante > 0 {
		for _, p := range g.players {
			p.Committed += g.cfg.Ante
			g.bank += g.cfg.Ante
		}
	}
	g.players[g.sbIdx].Bet = g.cfg.SmallBlind
	g.players[g.bbIdx].Bet = g.cfg.BigBlind
	g.betLevel = g.cfg.BigBlind
	g.emit(ctx, &models.Message{
		TableID: g.cfg.TableID,
		GameID:  g.cfg.GameID,
		MsgType: models.MsgBlindsPosted,
		Props: models.EncodeProps(models.BlindsPostedProps{
			SmallBlind: g.cfg.SmallBlind,
			BigBlind:   g.cfg.BigBlind,
			Ante:       g.cfg.Ante,
			SBUserID:   g.players[g.sbIdx].UserID,
			BBUserID:   g.players[g.bbIdx].UserID,
		}),
	})

	g.round = RoundPreflop
	g.closerIdx = g.bbIdx
	g.actorIdx = g.nextActive(g.bbIdx)
	g.recompute()
}

// Actor returns the player whose decision the hand is waiting on, or nil
// once the hand finished.
func (g *Game) Actor() *Player {
	if g.finished {
		return nil
	}
	return g.players[g.actorIdx]
}

// Round returns the current betting street.
func (g *Game) Round() Round {
	return g.round
}

// Community returns the board dealt so far.
func (g *Game) Community() []int {
	return g.community
}

// Finished reports hand termination (showdown reached or fold-out).
func (g *Game) Finished() bool {
	return g.finished
}

// BetLevel returns the current table bet level for the round.
func (g *Game) BetLevel() int64 {
	return g.betLevel
}

// LegalActions describes what the acting player may do right now.
func (g *Game) LegalActions() (options []int, callAmount, minRaise int64) {
	if g.finished {
		return nil, 0, 0
	}
	actor := g.players[g.actorIdx]
	callAmount = g.betLevel - actor.Bet
	minRaise = g.betLevel + g.cfg.BigBlind
	if callAmount > 0 {
		options = []int{int(BetCall), int(BetRaise), int(BetFold)}
	} else {
		options = []int{int(BetCheck), int(BetRaise), int(BetFold)}
	}
	return options, callAmount, minRaise
}

// EmitTurn records a "player's turn" event for the current actor. The
// fan-out layer strips the options for everyone else.
func (g *Game) EmitTurn(ctx context.Context, timeoutSec int) {
	actor := g.Actor()
	if actor == nil {
		return
	}
	options, call, minRaise := g.LegalActions()
	g.emit(ctx, &models.Message{
		TableID: g.cfg.TableID,
		GameID:  g.cfg.GameID,
		UserID:  actor.UserID,
		MsgType: models.MsgPlayerTurn,
		Props: models.EncodeProps(models.PlayerTurnProps{
			Options:    options,
			CallAmount: call,
			MinRaise:   minRaise,
			TimeoutSec: timeoutSec,
		}),
	})
}

// HandleBet validates and applies one bet action from userID. On FOLD the
// player goes inactive; CHECK/CALL match the table bet level; RAISE lifts
// both the player's committed amount and the table level. After every
// application the active count, level and bets-all-same flag are recomputed
// over active players only, and the round advances if the closing condition
// holds.
func (g *Game) HandleBet(ctx context.Context, userID int64, kind BetKind, amount int64) error {
	return g.applyBet(ctx, userID, kind, amount, 0)
}

// HandleBetCmd is HandleBet with the triggering command id threaded into
// the emitted event for correlation.
func (g *Game) HandleBetCmd(ctx context.Context, userID int64, kind BetKind, amount, cmdID int64) error {
	return g.applyBet(ctx, userID, kind, amount, cmdID)
}

func (g *Game) applyBet(ctx context.Context, userID int64, kind BetKind, amount, cmdID int64) error {
	if g.finished {
		return ErrHandOver
	}
	actor := g.players[g.actorIdx]
	if actor.UserID != userID {
		return ErrNotYourTurn
	}

	switch kind {
	case BetFold:
		actor.Active = false
	case BetCheck, BetCall:
		actor.Bet = g.betLevel
	case BetRaise:
		if amount <= g.betLevel {
			return fmt.Errorf("raise to %d not above bet level %d", amount, g.betLevel)
		}
		actor.Bet = amount
		g.betLevel = amount
	default:
		return fmt.Errorf("invalid bet kind %d", kind)
	}
	actor.LastKind = kind

	g.recompute()
	g.emit(ctx, &models.Message{
		TableID: g.cfg.TableID,
		GameID:  g.cfg.GameID,
		UserID:  actor.UserID,
		CmdID:   cmdID,
		MsgType: models.MsgPlayerBet,
		Props: models.EncodeProps(models.PlayerBetProps{
			Kind:     int(kind),
			Amount:   actor.Bet,
			BetLevel: g.betLevel,
		}),
	})

	if g.activeCount < 2 {
		g.finish()
		return nil
	}

	// Only the actor can fold, so an inactive closer means the closer
	// itself just folded. Closing duty passes to the active player before
	// it, and if everyone still in has already matched the level the
	// round ends on this very action.
	closerFolded := false
	if !g.players[g.closerIdx].Active {
		closerFolded = g.actorIdx == g.closerIdx
		g.closerIdx = g.prevActive(g.closerIdx)
	}

	if (g.actorIdx == g.closerIdx || closerFolded) && g.betsAllSame {
		g.advanceRound(ctx)
		return nil
	}
	g.actorIdx = g.nextActive(g.actorIdx)
	return nil
}

// AutoAct applies the timeout default for the current actor: CHECK when
// configured and nothing is owed, FOLD otherwise. Downstream the event is
// indistinguishable from an explicit player action.
func (g *Game) AutoAct(ctx context.Context) {
	actor := g.Actor()
	if actor == nil {
		return
	}
	kind := BetFold
	if g.cfg.TimeoutAutoCheck && actor.Bet == g.betLevel {
		kind = BetCheck
	}
	if err := g.applyBet(ctx, actor.UserID, kind, 0, 0); err != nil {
		g.log.WithError(err).Warn("auto action failed")
	}
}

// advanceRound sweeps the round's bets into the bank, deals the street's
// community cards and resets action to the player left of the dealer.
func (g *Game) advanceRound(ctx context.Context) {
	g.sweepBets()
	g.round++
	if g.round >= RoundShowdown {
		g.finished = true
		return
	}

	var dealt int
	switch g.round {
	case RoundFlop:
		dealt = 3
	case RoundTurn, RoundRiver:
		dealt = 1
	}
	g.community = append(g.community, g.deck.DrawN(dealt)...)

	g.closerIdx = g.dealerIdx
	if !g.players[g.closerIdx].Active {
		g.closerIdx = g.prevActive(g.closerIdx)
	}
	g.actorIdx = g.nextActive(g.dealerIdx)
	g.recompute()

	g.emit(ctx, &models.Message{
		TableID: g.cfg.TableID,
		GameID:  g.cfg.GameID,
		MsgType: models.MsgRoundAdvanced,
		Props: models.EncodeProps(models.RoundAdvancedProps{
			Round:          int(g.round),
			CommunityCards: g.community,
		}),
	})
}

func (g *Game) finish() {
	g.sweepBets()
	g.finished = true
}

// Settle returns the hand's terminal per-player report. The bank is split
// evenly among the players still in; any odd remainder goes to the first of
// them left of the dealer. Balance application is the session's job.
func (g *Game) Settle() (int64, []models.PlayerResult) {
	if !g.finished {
		g.finish()
	}
	var winners []*Player
	for _, p := range g.players {
		if p.Active {
			winners = append(winners, p)
		}
	}
	won := make(map[int64]int64, len(winners))
	if len(winners) > 0 {
		share := g.bank / int64(len(winners))
		for _, w := range winners {
			won[w.UserID] = share
		}
		if rem := g.bank - share*int64(len(winners)); rem > 0 {
			first := g.players[g.nextActive(g.dealerIdx)]
			won[first.UserID] += rem
		}
	}

	results := make([]models.PlayerResult, 0, len(g.players))
	for _, p := range g.players {
		results = append(results, models.PlayerResult{
			UserID:    p.UserID,
			Committed: p.Committed,
			Won:       won[p.UserID],
			Active:    p.Active,
		})
	}
	return g.bank, results
}

// sweepBets moves the round's committed bets into the bank.
func (g *Game) sweepBets() {
	for _, p := range g.players {
		p.Committed += p.Bet
		g.bank += p.Bet
		p.Bet = 0
	}
	g.betLevel = 0
}

// recompute refreshes activeCount, betLevel and betsAllSame over active
// players only.
func (g *Game) recompute() {
	g.activeCount = 0
	var level int64
	for _, p := range g.players {
		if !p.Active {
			continue
		}
		g.activeCount++
		if p.Bet > level {
			level = p.Bet
		}
	}
	g.betLevel = level
	g.betsAllSame = true
	for _, p := range g.players {
		if p.Active && p.Bet != level {
			g.betsAllSame = false
			return
		}
	}
}

// nextActive returns the index of the next non-folded player after idx.
func (g *Game) nextActive(idx int) int {
	n := len(g.players)
	for i := 1; i <= n; i++ {
		next := (idx + i) % n
		if g.players[next].Active {
			return next
		}
	}
	return idx
}

// prevActive returns the index of the closest non-folded player before idx.
func (g *Game) prevActive(idx int) int {
	n := len(g.players)
	for i := 1; i <= n; i++ {
		prev := (idx - i + n) % n
		if g.players[prev].Active {
			return prev
		}
	}
	return idx
}

// PlayerByUser looks a hand participant up by user id.
func (g *Game) PlayerByUser(userID int64) *Player {
	for _, p := range g.players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}
