// internal/ws/redact.go
package ws

import (
	"github.com/pokerhall/tableserv/internal/models"
)

// hiddenCard is the sentinel substituted for card values the recipient may
// not see.
const hiddenCard = 0

// RedactFor returns the message as the given recipient is allowed to see
// it. The original is never mutated; untouched messages are returned as-is.
//
// Player cards: unless the event is explicitly open or the recipient owns
// the cards, every card value is hidden and derived hand-ranking fields are
// stripped. Cards the owner marked visible stay revealed.
//
// Player turn: the legal options and bet bounds go only to the acting
// player.
func RedactFor(recipientUserID int64, m *models.Message) *models.Message {
	switch m.MsgType {
	case models.MsgPlayerCards:
		return redactCards(recipientUserID, m)
	case models.MsgPlayerTurn:
		return redactTurn(recipientUserID, m)
	default:
		return m
	}
}

func redactCards(recipientUserID int64, m *models.Message) *models.Message {
	if m.UserID == recipientUserID {
		return m
	}
	var props models.PlayerCardsProps
	if err := models.DecodeProps(m.Props, &props); err != nil {
		return m
	}
	if props.CardsOpen {
		return m
	}

	masked := make([]int, len(props.Cards))
	for i, c := range props.Cards {
		if i < len(props.VisibleMask) && props.VisibleMask[i] {
			masked[i] = c
		} else {
			masked[i] = hiddenCard
		}
	}
	cp := m.Clone()
	cp.Props = models.EncodeProps(models.PlayerCardsProps{
		Cards:       masked,
		CardsOpen:   false,
		VisibleMask: props.VisibleMask,
	})
	return cp
}

func redactTurn(recipientUserID int64, m *models.Message) *models.Message {
	if m.UserID == recipientUserID {
		return m
	}
	var props models.PlayerTurnProps
	if err := models.DecodeProps(m.Props, &props); err != nil {
		return m
	}
	cp := m.Clone()
	cp.Props = models.EncodeProps(models.PlayerTurnProps{
		TimeoutSec: props.TimeoutSec,
	})
	return cp
}
