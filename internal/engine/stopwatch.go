// internal/engine/stopwatch.go
package engine

import (
	"sync"
	"time"
)

// Stopwatch measures active table time. Blind schedules run off elapsed
// active time, not wall clock, so pausing a table doesn't skew its levels.
type Stopwatch struct {
	mu        sync.Mutex
	elapsed   time.Duration
	startedAt time.Time
	running   bool
}

// Start begins (or resumes) the stopwatch. No-op while running.
func (sw *Stopwatch) Start() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.running {
		return
	}
	sw.startedAt = time.Now()
	sw.running = true
}

// Pause accumulates the running segment and stops the clock. No-op while
// paused.
func (sw *Stopwatch) Pause() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if !sw.running {
		return
	}
	sw.elapsed += time.Since(sw.startedAt)
	sw.running = false
}

// Elapsed returns total active time accumulated so far.
func (sw *Stopwatch) Elapsed() time.Duration {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.running {
		return sw.elapsed + time.Since(sw.startedAt)
	}
	return sw.elapsed
}

// Running reports whether the clock is currently accumulating.
func (sw *Stopwatch) Running() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.running
}
