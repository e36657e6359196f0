// internal/models/blinds.go
package models

import "time"

// Level is one step of a tournament blind schedule.
type Level struct {
	SmallBlind int64 `json:"small_blind"`
	BigBlind   int64 `json:"big_blind"`
	Ante       int64 `json:"ante"`
}

// Blind schedules are monotonic: each level's blinds are strictly greater
// than the previous level's. The last level repeats once the schedule is
// exhausted.
var (
	standardSchedule = []Level{
		{10, 20, 0}, {15, 30, 0}, {20, 40, 0}, {30, 60, 0}, {50, 100, 0},
		{75, 150, 0}, {100, 200, 25}, {150, 300, 25}, {200, 400, 50},
		{300, 600, 75}, {400, 800, 100}, {600, 1200, 150}, {800, 1600, 200},
	}
	turboSchedule = []Level{
		{10, 20, 0}, {20, 40, 0}, {40, 80, 0}, {75, 150, 0}, {150, 300, 25},
		{300, 600, 75}, {600, 1200, 150}, {1200, 2400, 300},
	}
	hyperSchedule = []Level{
		{25, 50, 0}, {75, 150, 0}, {200, 400, 50}, {600, 1200, 150},
		{1500, 3000, 400}, {4000, 8000, 1000},
	}
)

// ScheduleFor returns the blind schedule for the given speed.
func ScheduleFor(speed SpeedType) []Level {
	switch speed {
	case SpeedTurbo:
		return turboSchedule
	case SpeedHyper:
		return hyperSchedule
	default:
		return standardSchedule
	}
}

// LevelTimeFor returns how long each blind level lasts for the given speed,
// measured in active table time (pauses don't count).
func LevelTimeFor(speed SpeedType) time.Duration {
	switch speed {
	case SpeedTurbo:
		return 90 * time.Second
	case SpeedHyper:
		return 45 * time.Second
	default:
		return 3 * time.Minute
	}
}

// LevelAt returns the schedule entry for a level index, clamping to the last
// level once the schedule runs out.
func LevelAt(schedule []Level, idx int) Level {
	if idx < 0 {
		idx = 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	return schedule[idx]
}
