// apps/go-server/internal/game/scheduler.go
//
// Scheduler abstracts delayed callback execution so the engine's two
// time-driven behaviors (the one-second clock and the mismatch
// flip-back) can be driven manually in tests. Production code uses
// real timers via RealScheduler.

package game

import "time"

// Scheduler schedules f to run once after d. Implementations may run f
// on any goroutine; the engine re-locks and re-validates the session
// generation inside every scheduled callback.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

// RealScheduler backs the Scheduler interface with time.AfterFunc.
type RealScheduler struct{}

func (RealScheduler) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}
