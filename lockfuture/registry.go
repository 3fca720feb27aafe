package lockfuture

import (
	"sync"

	"github.com/sharedcode/nlock"
)

// Registry is the process-wide MVCC future registry (§6 "MVCC registry",
// §9 "Global MVCC registry"). It is injected into a Coordinator rather than
// accessed as a singleton, so tests can run multiple independent registries
// concurrently. It maps each attempt's FutureID to the *LockAttempt and
// drops that reference when the attempt completes (removeFuture); the
// attempt itself holds no back-reference to the registry.
type Registry struct {
	mu        sync.RWMutex
	attempts  map[nlock.UUID]*LockAttempt
	byVersion map[string][]nlock.UUID
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		attempts:  make(map[nlock.UUID]*LockAttempt),
		byVersion: make(map[string][]nlock.UUID),
	}
}

func (r *Registry) register(a *LockAttempt) {
	if !a.trackable {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[a.FutureID] = a
	key := a.LockVersion.String()
	r.byVersion[key] = append(r.byVersion[key], a.FutureID)
}

// removeFuture deregisters a, called exactly once from the completion CAS
// (§5 "Resource lifecycle").
func (r *Registry) removeFuture(a *LockAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, a.FutureID)
	key := a.LockVersion.String()
	ids := r.byVersion[key]
	for i, id := range ids {
		if id == a.FutureID {
			r.byVersion[key] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(r.byVersion[key]) == 0 {
		delete(r.byVersion, key)
	}
}

// Lookup returns the in-flight attempt for futureID, if any, for the admin
// introspection API and for owner-changed notifications.
func (r *Registry) Lookup(futureID nlock.UUID) (*LockAttempt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.attempts[futureID]
	return a, ok
}

// InFlight returns a snapshot of every currently-tracked attempt.
func (r *Registry) InFlight() []*LockAttempt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*LockAttempt, 0, len(r.attempts))
	for _, a := range r.attempts {
		out = append(out, a)
	}
	return out
}

// RecheckPendingLocks re-evaluates every currently-tracked attempt against
// its enlisted entries' candidate queues (§6 `recheck_pending_locks()`),
// resolving any attempt whose entries have all reached the head of their
// queue since it last checked. Unlike NotifyOwnerChanged, which targets only
// attempts waiting on one specific lock_version, this sweeps the whole
// registry — used after events that can unblock many attempts at once
// (topology changes, bulk release) rather than a single owner transition.
func (r *Registry) RecheckPendingLocks(c *Coordinator) {
	for _, a := range r.InFlight() {
		c.checkLocks(a)
	}
}

// NotifyOwnerChanged drives OnOwnerChanged on every tracked attempt
// currently waiting on lockVersion (the whole-registry sweep is
// RecheckPendingLocks) — called after a commit/rollback updates an entry's owner so
// waiting attempts can resolve via the optimistic short-circuit (§4.4).
func (r *Registry) NotifyOwnerChanged(c *Coordinator, lockVersion nlock.LockVersion) {
	r.mu.RLock()
	ids := append([]nlock.UUID(nil), r.byVersion[lockVersion.String()]...)
	r.mu.RUnlock()
	for _, id := range ids {
		if a, ok := r.Lookup(id); ok {
			c.OnOwnerChanged(a, lockVersion)
		}
	}
}
