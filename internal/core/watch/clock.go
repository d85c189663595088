package watch

import "time"

// Clock abstracts timer creation so debounce behavior is deterministic in
// tests. Production code uses SystemClock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is the stoppable handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// SystemClock returns a Clock backed by real wall-clock timers.
func SystemClock() Clock { return systemClock{} }
