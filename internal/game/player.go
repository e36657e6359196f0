// internal/game/player.go
package game

// Round is the betting street ordinal. It only ever increases within a
// hand; the single exception to reaching SHOWDOWN is a fold-out, which ends
// the hand wherever it stands.
type Round int

const (
	RoundPreflop Round = iota
	RoundFlop
	RoundTurn
	RoundRiver
	RoundShowdown
)

var roundNames = map[Round]string{
	RoundPreflop:  "preflop",
	RoundFlop:     "flop",
	RoundTurn:     "turn",
	RoundRiver:    "river",
	RoundShowdown: "showdown",
}

func (r Round) String() string {
	if s, ok := roundNames[r]; ok {
		return s
	}
	return "unknown"
}

// BetKind enumerates player bet actions.
type BetKind int

const (
	BetNone  BetKind = 0
	BetCheck BetKind = 1
	BetCall  BetKind = 2
	BetRaise BetKind = 3
	BetFold  BetKind = 4
)

var betKindNames = map[BetKind]string{
	BetNone:  "NONE",
	BetCheck: "CHECK",
	BetCall:  "CALL",
	BetRaise: "RAISE",
	BetFold:  "FOLD",
}

func (k BetKind) String() string {
	if s, ok := betKindNames[k]; ok {
		return s
	}
	return "UNKNOWN"
}

// Role is a seat's forced-bet role for the current hand.
type Role int

const (
	RoleNone Role = iota
	RoleDealer
	RoleSmallBlind
	RoleBigBlind
)

// Player is one seat's participation in the current hand. Created at hand
// start, discarded at hand end.
type Player struct {
	UserID int64
	Seat   int
	Cards  []int
	Role   Role

	// Bet is the amount committed in the current round; Committed
	// accumulates rounds already swept into the bank.
	Bet       int64
	Committed int64
	LastKind  BetKind
	Active    bool
}
