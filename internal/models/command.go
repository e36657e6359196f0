// internal/models/command.go
package models

import (
	"fmt"

	"github.com/google/uuid"
)

// CmdType enumerates the intents a client (or the system) may submit.
type CmdType string

const (
	CmdJoin     CmdType = "JOIN"
	CmdExit     CmdType = "EXIT"
	CmdTakeSeat CmdType = "TAKE_SEAT"
	CmdBet      CmdType = "BET"
	CmdSitOut   CmdType = "SIT_OUT"
	CmdComeBack CmdType = "COME_BACK"
)

// ParseCmdType validates an inbound command type string.
func ParseCmdType(s string) (CmdType, error) {
	switch c := CmdType(s); c {
	case CmdJoin, CmdExit, CmdTakeSeat, CmdBet, CmdSitOut, CmdComeBack:
		return c, nil
	}
	return "", fmt.Errorf("unknown cmd_type %q", s)
}

// Command is a durable, ordered request to change table state. Rows are
// inserted by the gateway, read once by the owning table worker and marked
// processed; they are never mutated otherwise.
type Command struct {
	ID        int64          `json:"id"`
	TableID   int64          `json:"table_id"`
	ClientID  uuid.UUID      `json:"client_id"`
	UserID    int64          `json:"user_id"`
	CmdType   CmdType        `json:"cmd_type"`
	Props     map[string]any `json:"props,omitempty"`
	Processed bool           `json:"processed"`
}

// BetProps is the typed payload of a BET command.
type BetProps struct {
	Kind   int   `json:"kind"`
	Amount int64 `json:"amount,omitempty"`
}

// TakeSeatProps is the typed payload of a TAKE_SEAT command.
type TakeSeatProps struct {
	Seat int `json:"seat"`
}
