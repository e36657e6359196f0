// internal/models/models_test.go
package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleMonotonic(t *testing.T) {
	for _, speed := range []SpeedType{SpeedStandard, SpeedTurbo, SpeedHyper} {
		schedule := ScheduleFor(speed)
		require.NotEmpty(t, schedule)
		for i := 1; i < len(schedule); i++ {
			assert.Greater(t, schedule[i].SmallBlind, schedule[i-1].SmallBlind,
				"%s level %d small blind", speed, i)
			assert.Greater(t, schedule[i].BigBlind, schedule[i-1].BigBlind,
				"%s level %d big blind", speed, i)
		}
	}
}

func TestLevelAtClamps(t *testing.T) {
	schedule := ScheduleFor(SpeedStandard)
	assert.Equal(t, schedule[0], LevelAt(schedule, -3))
	assert.Equal(t, schedule[1], LevelAt(schedule, 1))
	assert.Equal(t, schedule[len(schedule)-1], LevelAt(schedule, 999))
}

func TestLevelTimeBySpeed(t *testing.T) {
	assert.Greater(t, LevelTimeFor(SpeedStandard), LevelTimeFor(SpeedTurbo))
	assert.Greater(t, LevelTimeFor(SpeedTurbo), LevelTimeFor(SpeedHyper))
}

func TestParseCmdType(t *testing.T) {
	for _, s := range []string{"JOIN", "EXIT", "TAKE_SEAT", "BET", "SIT_OUT", "COME_BACK"} {
		c, err := ParseCmdType(s)
		require.NoError(t, err)
		assert.Equal(t, CmdType(s), c)
	}
	_, err := ParseCmdType("DANCE")
	assert.Error(t, err)
	_, err = ParseCmdType("bet")
	assert.Error(t, err, "command types are case sensitive")
}

func TestEncodeDecodeProps(t *testing.T) {
	in := PlayerTurnProps{
		Options:    []int{1, 3, 4},
		CallAmount: 20,
		MinRaise:   40,
		TimeoutSec: 15,
	}
	m := EncodeProps(in)
	require.NotNil(t, m)

	var out PlayerTurnProps
	require.NoError(t, DecodeProps(m, &out))
	assert.Equal(t, in, out)
}

func TestMessageCloneIsDeep(t *testing.T) {
	orig := &Message{
		TableID: 1,
		MsgType: MsgPlayerCards,
		Props: EncodeProps(PlayerCardsProps{
			Cards: []int{11, 12},
		}),
	}
	cp := orig.Clone()
	cp.Props["cards"] = []any{0, 0}

	var props PlayerCardsProps
	require.NoError(t, DecodeProps(orig.Props, &props))
	assert.Equal(t, []int{11, 12}, props.Cards, "clone mutation must not leak back")
}

func TestHoleCardsBySubtype(t *testing.T) {
	assert.Equal(t, 2, (&TableProfile{GameSubtype: "nl"}).HoleCards())
	assert.Equal(t, 4, (&TableProfile{GameSubtype: "plo"}).HoleCards())
	assert.Equal(t, 2, (&TableProfile{}).HoleCards())
}
