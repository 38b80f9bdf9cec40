package accumulate

import "time"

// Clock abstracts wall-clock time and timer scheduling so tests can drive
// the silence timeout with a virtual clock instead of real sleeps.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc schedules fn to run in its own goroutine after d elapses and
	// returns a handle that can cancel the pending call.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellable scheduled call created by [Clock.AfterFunc].
type Timer interface {
	// Stop cancels the pending call. It reports whether the call was
	// prevented from running.
	Stop() bool
}

// realClock implements [Clock] with the time package.
type realClock struct{}

// RealClock returns a [Clock] backed by the system clock.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
