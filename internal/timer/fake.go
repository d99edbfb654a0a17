package timer

import (
	"sync"
	"time"
)

// Fake is a manually-driven Timer for tests: Arm records the callback
// instead of scheduling it against the wall clock, and FireAll runs
// every still-armed callback. Safe for concurrent use, matching Real.
type Fake struct {
	mu      sync.Mutex
	nextID  int
	pending []fakeEntry
}

type fakeEntry struct {
	id   int
	due  time.Duration
	cb   func()
	live bool
}

type fakeHandle struct {
	f  *Fake
	id int
}

func (h fakeHandle) Stop() bool {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()

	for i := range h.f.pending {
		if h.f.pending[i].id == h.id && h.f.pending[i].live {
			h.f.pending[i].live = false
			return true
		}
	}
	return false
}

// NewFake returns an unarmed Fake clock.
func NewFake() *Fake { return &Fake{} }

// Arm implements Timer by recording cb without scheduling it.
func (f *Fake) Arm(d time.Duration, cb func()) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := f.nextID
	f.pending = append(f.pending, fakeEntry{id: id, due: d, cb: cb, live: true})
	return fakeHandle{f: f, id: id}
}

// FireAll runs every still-armed callback, in arming order, and clears
// the pending set. Tests that only care "did the debounce eventually
// fire" use this instead of simulating real elapsed time.
func (f *Fake) FireAll() {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()

	for _, e := range pending {
		if e.live {
			e.cb()
		}
	}
}

// Pending reports how many timers are currently armed (not yet fired or
// canceled).
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, e := range f.pending {
		if e.live {
			n++
		}
	}
	return n
}
