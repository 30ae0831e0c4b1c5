package inference

import "sync"

// Turnstile serializes access to a single shared model. It is two plain
// mutexes: an outer admission lock and an inner execution lock. A caller
// acquires the outer lock, then the inner lock, then releases the outer lock
// and runs holding only the inner one. At most one caller can sit between the
// two locks, so simultaneous arrivals queue on the outer lock in arrival
// order instead of all contending on the inner lock at once; the holder of
// the doorway is always the next to execute. Collapsing this to one lock
// would lose that admission-order guarantee.
//
// The inner lock is held for the full duration of a generation, which can be
// a long time. Waiting is unbounded on purpose; timeout policy belongs to the
// layers above.
type Turnstile struct {
	outer sync.Mutex
	inner sync.Mutex
}

// Acquire blocks until the caller holds exclusive access to the model.
func (t *Turnstile) Acquire() {
	t.outer.Lock()
	t.inner.Lock()
	t.outer.Unlock()
}

// Release gives up exclusive access. Every Acquire must be paired with
// exactly one Release on every exit path, including failure and abandonment.
func (t *Turnstile) Release() {
	t.inner.Unlock()
}

// Do runs fn while holding exclusive access.
func (t *Turnstile) Do(fn func() error) error {
	t.Acquire()
	defer t.Release()
	return fn()
}
