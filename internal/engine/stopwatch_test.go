// internal/engine/stopwatch_test.go
package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStopwatchAccumulatesOnlyWhileRunning(t *testing.T) {
	var sw Stopwatch
	assert.False(t, sw.Running())
	assert.Zero(t, sw.Elapsed())

	sw.Start()
	assert.True(t, sw.Running())
	time.Sleep(20 * time.Millisecond)
	sw.Pause()
	frozen := sw.Elapsed()
	assert.GreaterOrEqual(t, frozen, 20*time.Millisecond)

	// Paused time does not count.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frozen, sw.Elapsed())

	// Resuming accumulates on top of the frozen value.
	sw.Start()
	time.Sleep(10 * time.Millisecond)
	assert.Greater(t, sw.Elapsed(), frozen)
}

func TestStopwatchIdempotentTransitions(t *testing.T) {
	var sw Stopwatch
	sw.Start()
	sw.Start()
	sw.Pause()
	elapsed := sw.Elapsed()
	sw.Pause()
	assert.Equal(t, elapsed, sw.Elapsed())
}
