// internal/models/message.go
package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MsgType enumerates the observable state changes the engine records.
type MsgType string

const (
	MsgTableStatus   MsgType = "table_status"
	MsgPlayerJoined  MsgType = "player_joined"
	MsgPlayerExited  MsgType = "player_exited"
	MsgGameStarted   MsgType = "game_started"
	MsgGameEnded     MsgType = "game_ended"
	MsgBlindsPosted  MsgType = "blinds_posted"
	MsgRoundAdvanced MsgType = "round_advanced"
	MsgPlayerBet     MsgType = "player_bet"
	MsgPlayerCards   MsgType = "player_cards"
	MsgPlayerTurn    MsgType = "player_turn"
	MsgNextLevel     MsgType = "next_level"
	MsgRedirect      MsgType = "redirect"
)

// Message is the durable event envelope. Ids are assigned by the database
// and are strictly increasing per table; insertion order is causal order.
// Typed payloads (below) are decoded from Props at the boundaries; the map
// itself is kept for forward compatibility on the wire.
type Message struct {
	ID       int64          `json:"id"`
	TableID  int64          `json:"table_id"`
	GameID   int64          `json:"game_id,omitempty"`
	UserID   int64          `json:"user_id,omitempty"`
	CmdID    int64          `json:"cmd_id,omitempty"`
	ClientID *uuid.UUID     `json:"client_id,omitempty"`
	MsgType  MsgType        `json:"msg_type"`
	Props    map[string]any `json:"props,omitempty"`
}

// PlayerCardsProps carries a player's hole cards. Cards are small ints;
// 0 is the "hidden" sentinel substituted by redaction. VisibleMask marks
// cards the owner chose to show; HandType/HandCards are derived ranking
// fields present only on open showdown events.
type PlayerCardsProps struct {
	Cards       []int  `json:"cards"`
	CardsOpen   bool   `json:"cards_open"`
	VisibleMask []bool `json:"visible_mask,omitempty"`
	HandType    string `json:"hand_type,omitempty"`
	HandCards   []int  `json:"hand_cards,omitempty"`
}

// PlayerTurnProps tells the acting player what they may do. Options and the
// bet bounds are stripped for every other recipient.
type PlayerTurnProps struct {
	Options    []int `json:"options,omitempty"`
	CallAmount int64 `json:"call_amount,omitempty"`
	MinRaise   int64 `json:"min_raise,omitempty"`
	TimeoutSec int   `json:"timeout_sec,omitempty"`
}

// PlayerBetProps records an applied bet, explicit or auto-applied on
// timeout (both share this shape).
type PlayerBetProps struct {
	Kind     int   `json:"kind"`
	Amount   int64 `json:"amount"`
	BetLevel int64 `json:"bet_level"`
}

// RoundAdvancedProps announces a street transition and its community cards.
type RoundAdvancedProps struct {
	Round          int   `json:"round"`
	CommunityCards []int `json:"community_cards"`
}

// BlindsPostedProps records the forced bets at hand start.
type BlindsPostedProps struct {
	SmallBlind int64 `json:"small_blind"`
	BigBlind   int64 `json:"big_blind"`
	Ante       int64 `json:"ante,omitempty"`
	SBUserID   int64 `json:"sb_user_id"`
	BBUserID   int64 `json:"bb_user_id"`
}

// NextLevelProps announces the upcoming blind level of a tournament table
// and the seconds remaining until it takes effect.
type NextLevelProps struct {
	Level       int   `json:"level"`
	SmallBlind  int64 `json:"small_blind"`
	BigBlind    int64 `json:"big_blind"`
	Ante        int64 `json:"ante,omitempty"`
	SecondsLeft int   `json:"seconds_left"`
}

// RedirectProps moves a viewer from one table to another (e.g. lobby table
// to the seated game table). The fan-out layer swaps the connection's
// subscription before delivering it.
type RedirectProps struct {
	ToTableID int64 `json:"to_table_id"`
}

// GameEndedProps reports the terminal per-player amounts of a hand.
type GameEndedProps struct {
	Bank    int64          `json:"bank"`
	Results []PlayerResult `json:"results"`
}

// PlayerResult is one player's line in a hand's terminal report.
type PlayerResult struct {
	UserID    int64 `json:"user_id"`
	Committed int64 `json:"committed"`
	Won       int64 `json:"won"`
	Active    bool  `json:"active"`
}

// EncodeProps converts a typed payload struct into the envelope map.
func EncodeProps(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// DecodeProps converts an envelope map back into a typed payload struct.
func DecodeProps(m map[string]any, v any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode props: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode props: %w", err)
	}
	return nil
}

// Clone returns a deep copy of the message suitable for per-recipient
// redaction without touching the shared original.
func (m *Message) Clone() *Message {
	cp := *m
	if m.Props != nil {
		data, err := json.Marshal(m.Props)
		if err == nil {
			var props map[string]any
			if json.Unmarshal(data, &props) == nil {
				cp.Props = props
			}
		}
	}
	return &cp
}
