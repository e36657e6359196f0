// internal/engine/tournament_test.go
package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokerhall/tableserv/internal/models"
)

func newTestTournament(store *fakeStore, profile *models.TableProfile) *tournamentSession {
	store.mu.Lock()
	store.tables[profile.ID] = profile
	store.mu.Unlock()

	base := newTableSession(profile, store, nil, quietLog())
	base.interHandDelay = 5 * time.Millisecond
	tt := newTournamentSession(base)
	// Compressed clock for tests.
	tt.levelTime = 100 * time.Millisecond
	tt.clockTick = 10 * time.Millisecond
	return tt
}

func TestTournamentStakesComeFromSchedule(t *testing.T) {
	store := newFakeStore()
	profile := sngProfile(11)
	profile.MinPlayers = 9
	tt := newTestTournament(store, profile)

	first := models.ScheduleFor(models.SpeedStandard)[0]
	assert.Equal(t, first, tt.currentStakes())
	assert.Equal(t, int64(10), first.SmallBlind)
	assert.Equal(t, int64(20), first.BigBlind)
}

func TestBlindLevelAdvancesOnce(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	profile := sngProfile(11)
	profile.MinPlayers = 9
	tt := newTestTournament(store, profile)

	tt.Start(ctx)
	store.waitForMsg(t, models.MsgNextLevel, 1, time.Second)

	// Well inside the second level: exactly one transition announced.
	time.Sleep(30 * time.Millisecond)
	events := store.msgsOfType(models.MsgNextLevel)
	require.Len(t, events, 1)

	schedule := models.ScheduleFor(models.SpeedStandard)
	assert.Equal(t, schedule[1], tt.currentStakes())

	// The event announces the level after the one just installed.
	var props models.NextLevelProps
	require.NoError(t, models.DecodeProps(events[0].Props, &props))
	assert.Equal(t, 2, props.Level)
	assert.Equal(t, schedule[2].SmallBlind, props.SmallBlind)
	assert.Equal(t, schedule[2].BigBlind, props.BigBlind)
	assert.GreaterOrEqual(t, props.SecondsLeft, 0)

	tt.Shutdown()
	tt.Wait()
	assert.False(t, tt.clock.Running())
}

func TestTournamentRegistrationClosesAtFirstHand(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addUser(9, 500)
	store.seatUser(11, 1, 0, 100)
	store.seatUser(11, 2, 1, 100)

	profile := sngProfile(11)
	profile.ActionTimeout = 10 * time.Millisecond
	tt := newTestTournament(store, profile)
	tt.levelTime = time.Hour // keep blinds out of the picture

	tt.Start(ctx)
	store.waitForMsg(t, models.MsgGameStarted, 1, 2*time.Second)

	require.NoError(t, tt.HandleCommand(ctx, &models.Command{
		ID: 1, TableID: 11, UserID: 9, CmdType: models.CmdJoin,
	}))
	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, store.msgsOfType(models.MsgPlayerJoined),
		"registration is closed once the first hand is dealt")
	assert.Equal(t, int64(500), store.accountBalance(9))

	tt.Shutdown()
	tt.Wait()
}
