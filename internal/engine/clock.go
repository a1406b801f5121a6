// internal/engine/clock.go
package engine

import "time"

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from running. It returns false when the
	// callback already started or the timer was already stopped.
	Stop() bool
}

// Clock abstracts time for debouncing and timing. Tests inject a manual clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// realClock is backed by package time.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
