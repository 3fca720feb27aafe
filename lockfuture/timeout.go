package lockfuture

import (
	"sync"
	"time"

	"github.com/sharedcode/nlock"
)

// timeoutBinding is the single wall-clock deadline registered for one
// LockAttempt (§4.5, C5). timeout_id is the lock version's UUID, so
// ownership of the scheduled callback is unambiguous even across attempts
// that happen to share a thread_id.
type timeoutBinding struct {
	id      nlock.UUID
	endTime time.Time
	attempt *LockAttempt
	coord   *Coordinator
	timer   *time.Timer
}

func newTimeoutBinding(a *LockAttempt, c *Coordinator) *timeoutBinding {
	ms := a.TimeoutMs
	const maxDuration = time.Duration(1<<63 - 1)
	d := time.Duration(ms) * time.Millisecond
	if ms > 0 && d/time.Millisecond != time.Duration(ms) {
		// Overflowed computing the duration; saturate (§4.5 "saturating on overflow").
		d = maxDuration
	}
	return &timeoutBinding{
		id:      a.LockVersion.ID,
		endTime: nlock.Now().Add(d),
		attempt: a,
		coord:   c,
	}
}

func (b *timeoutBinding) fire() {
	if b.attempt.IsDone() {
		return
	}
	b.attempt.timedOut.Store(true)
	b.coord.onComplete(b.attempt, false, true)
}

// TimeoutWheel schedules timeoutBinding callbacks at their deadline (§6
// "Timeout wheel": add_timeout_object/remove_timeout_object). It is backed
// by one time.Timer per binding rather than a true hashed wheel; at the
// concurrency this coordinator runs at (one binding per in-flight attempt)
// a wheel's main advantage — O(1) insert/cancel independent of pending
// count — is not worth the added bookkeeping, so this stays a plain map
// guarded by a mutex.
type TimeoutWheel struct {
	mu       sync.Mutex
	bindings map[nlock.UUID]*timeoutBinding
}

// NewTimeoutWheel builds an empty TimeoutWheel.
func NewTimeoutWheel() *TimeoutWheel {
	return &TimeoutWheel{bindings: make(map[nlock.UUID]*timeoutBinding)}
}

// Add schedules b's callback at b.endTime.
func (w *TimeoutWheel) Add(b *timeoutBinding) {
	w.mu.Lock()
	defer w.mu.Unlock()
	d := time.Until(b.endTime)
	b.timer = time.AfterFunc(d, func() {
		w.Remove(b.id)
		b.fire()
	})
	w.bindings[b.id] = b
}

// Remove cancels and deregisters the binding for id, if present. Safe to
// call more than once.
func (w *TimeoutWheel) Remove(id nlock.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.bindings[id]
	if !ok {
		return
	}
	b.timer.Stop()
	delete(w.bindings, id)
}

// Len returns the number of currently-scheduled bindings, for tests and
// introspection.
func (w *TimeoutWheel) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.bindings)
}
