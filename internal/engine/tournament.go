// internal/engine/tournament.go
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/pokerhall/tableserv/internal/models"
)

const defaultClockTick = time.Second

// tournamentSession runs an SNG/MTT table: the ring worker loop plus an
// independent level-clock task. The two tasks coordinate only through the
// session's stakes fields (under the session mutex) and are joined on
// shutdown.
type tournamentSession struct {
	*tableSession

	schedule  []models.Level
	levelTime time.Duration
	clockTick time.Duration
	clock     Stopwatch

	clockCancel context.CancelFunc
	clockDone   chan struct{}
	clockOnce   sync.Once
}

func newTournamentSession(base *tableSession) *tournamentSession {
	t := &tournamentSession{
		tableSession: base,
		schedule:     models.ScheduleFor(base.profile.SpeedType),
		levelTime:    models.LevelTimeFor(base.profile.SpeedType),
		clockTick:    defaultClockTick,
		clockDone:    make(chan struct{}),
	}
	// Tournament registration closes once the first hand is dealt.
	t.closeRegOnFirstHand = true
	t.mu.Lock()
	t.stakes = models.LevelAt(t.schedule, 0)
	t.levelIdx = 0
	t.mu.Unlock()
	return t
}

func (t *tournamentSession) Start(ctx context.Context) {
	clockCtx, cancel := context.WithCancel(ctx)
	t.clockCancel = cancel

	t.clock.Start()
	go t.runClock(clockCtx)
	go func() {
		t.tableSession.run(ctx)
		t.stopClock()
	}()
}

// Wait blocks until both the worker and the level clock have exited.
func (t *tournamentSession) Wait() {
	t.tableSession.Wait()
	<-t.clockDone
}

func (t *tournamentSession) stopClock() {
	t.clockOnce.Do(func() {
		t.clock.Pause()
		if t.clockCancel != nil {
			t.clockCancel()
		}
		<-t.clockDone
	})
}

// runClock advances the blind level off elapsed active time. On each
// transition it installs the new stakes and emits a single "next level"
// event announcing the upcoming level and the seconds until it.
func (t *tournamentSession) runClock(ctx context.Context) {
	defer close(t.clockDone)
	ticker := time.NewTicker(t.clockTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.checkLevel(ctx)
		}
	}
}

func (t *tournamentSession) checkLevel(ctx context.Context) {
	elapsed := t.clock.Elapsed()
	idx := int(elapsed / t.levelTime)

	t.mu.Lock()
	if idx == t.levelIdx {
		t.mu.Unlock()
		return
	}
	t.levelIdx = idx
	t.stakes = models.LevelAt(t.schedule, idx)
	t.mu.Unlock()

	upcoming := models.LevelAt(t.schedule, idx+1)
	secondsLeft := int((time.Duration(idx+1)*t.levelTime - elapsed).Round(time.Second) / time.Second)
	t.log.WithField("level", idx).Info("blind level advanced")
	t.emitMsg(ctx, &models.Message{
		TableID: t.profile.ID,
		MsgType: models.MsgNextLevel,
		Props: models.EncodeProps(models.NextLevelProps{
			Level:       idx + 1,
			SmallBlind:  upcoming.SmallBlind,
			BigBlind:    upcoming.BigBlind,
			Ante:        upcoming.Ante,
			SecondsLeft: secondsLeft,
		}),
	})
}
