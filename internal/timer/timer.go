// Package timer wraps time.AfterFunc behind a small interface so the
// loader's pan/zoom debounce logic can be driven by a fake clock in
// tests instead of the wall clock.
package timer

import "time"

// Handle identifies an armed timer so it can be canceled.
type Handle interface {
	Stop() bool
}

// Timer arms single-shot callbacks after a delay. The concrete Real
// implementation has no state; New returns its zero value.
type Timer interface {
	// Arm schedules cb to run after d and returns a Handle that can
	// cancel it. Re-arming a given logical timer is the caller's
	// responsibility: Arm does not track identity, so callers that
	// debounce must Stop the previous Handle themselves.
	Arm(d time.Duration, cb func()) Handle
}

// Real is the production Timer, backed by time.AfterFunc.
type Real struct{}

// New returns the wall-clock-backed Timer.
func New() Real { return Real{} }

// Arm implements Timer.
func (Real) Arm(d time.Duration, cb func()) Handle {
	return time.AfterFunc(d, cb)
}
