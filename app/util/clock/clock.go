// Package clock abstracts the time operations the debounce buffer relies on
// so that production code runs on the time package and tests run on a
// virtual clock that only moves when Advance is called.
package clock

import "time"

type Clock interface {
	Now() time.Time

	// AfterFunc calls f after d elapses and returns a Timer that can cancel it.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a cancellable scheduled callback.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the callback from firing. It reports false if the callback
// already fired or the timer was already stopped.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	timer := time.AfterFunc(d, f)
	return &Timer{stopFunc: timer.Stop}
}
