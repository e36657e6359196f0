// internal/models/table.go
package models

import "time"

// TableType distinguishes cash-game tables from tournament tables.
type TableType string

const (
	TableTypeRing TableType = "ring"
	TableTypeSNG  TableType = "sng"
	TableTypeMTT  TableType = "mtt"
)

// IsTournament reports whether tables of this type run a blind-level clock.
func (t TableType) IsTournament() bool {
	return t == TableTypeSNG || t == TableTypeMTT
}

// SpeedType selects the blind-level schedule for tournament tables.
type SpeedType string

const (
	SpeedStandard SpeedType = "standard"
	SpeedTurbo    SpeedType = "turbo"
	SpeedHyper    SpeedType = "hyper"
)

// TableStatus is the persistent lifecycle state of a table row.
type TableStatus string

const (
	TableStatusOpen   TableStatus = "open"
	TableStatusClosed TableStatus = "closed"
)

// TableProfile is the persistent configuration of a table, created by the
// club/admin layer and read-only from the engine's point of view.
type TableProfile struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	TableType   TableType   `json:"table_type"`
	SeatCount   int         `json:"seat_count"`
	GameType    string      `json:"game_type"`    // e.g. "holdem"
	GameSubtype string      `json:"game_subtype"` // e.g. "nl", "plo"
	SpeedType   SpeedType   `json:"speed_type"`
	BuyInCost   int64       `json:"buy_in_cost"`
	MinPlayers  int         `json:"min_players"`
	Status      TableStatus `json:"status"`

	// Fixed stakes for ring tables. Tournament tables take their stakes
	// from the blind schedule instead.
	SmallBlind int64 `json:"small_blind"`
	BigBlind   int64 `json:"big_blind"`
	Ante       int64 `json:"ante"`

	// ActionTimeout bounds how long a player may take to act before the
	// engine applies the configured auto-action.
	ActionTimeout time.Duration `json:"action_timeout"`
}

// HoleCards returns the number of hole cards dealt per player for the
// table's game subtype.
func (p *TableProfile) HoleCards() int {
	if p.GameSubtype == "plo" {
		return 4
	}
	return 2
}

// TableUser is a user occupying a seat, with their in-session running stack.
// It is hydrated from storage on session start and mirrored back to the
// ledger on enter/exit.
type TableUser struct {
	TableID int64 `json:"table_id"`
	UserID  int64 `json:"user_id"`
	Seat    int   `json:"seat"`
	Balance int64 `json:"balance"`
}

// User is the minimal identity record the engine needs.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	AccountID int64  `json:"account_id"`
}

// ClientInfo resolves a gateway connection id to its authenticated user.
type ClientInfo struct {
	UserID    int64 `json:"user_id"`
	LastMsgID int64 `json:"last_msg_id"`
}
