// Package clock abstracts wall-clock time and one-shot timers so that
// debounce and stability logic can be tested without real waits.
package clock

import "time"

// Timer is a cancelable one-shot timer.
type Timer interface {
	// Stop prevents the timer from firing. Returns false if the timer
	// already fired or was stopped.
	Stop() bool
}

// Clock provides the current time and timer scheduling.
type Clock interface {
	Now() time.Time

	// AfterFunc runs f after d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// New returns a Clock backed by the real time package.
func New() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
