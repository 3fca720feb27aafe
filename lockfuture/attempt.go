// Package lockfuture implements the distributed lock acquisition
// coordinator: the compound future that maps keys to owning nodes,
// enlists local MVCC candidates, fans out requests to peers, applies their
// responses, and resolves a single atomic outcome for the caller.
package lockfuture

import (
	"sync"
	"sync/atomic"

	"github.com/sharedcode/nlock"
	"github.com/sharedcode/nlock/filterlang"
	"github.com/sharedcode/nlock/nearcache"
)

// valRecord is the locally-observed pre-lock state for one key, used to
// de-duplicate read events (§3 val_map).
type valRecord struct {
	dhtVersion nlock.LockVersion
	value      any
	bytes      []byte
}

// EnlistedEntry pairs a key with the near-cache entry object enlisted for
// it. The same index is reused if the entry is replaced after eviction
// during response application (§3 EnlistedEntry lifecycle).
type EnlistedEntry struct {
	Key   string
	Entry *nearcache.Entry
}

// LockAttempt is the compound future's state (§3). Most fields are
// immutable after construction; the ones documented as mutable in the data
// model are guarded either by mu (entries/valMap/leftNodes/miniFutures) or
// are atomics (topologyVersion, timedOut) or a write-once error guarded by
// errMu.
type LockAttempt struct {
	LockVersion      nlock.LockVersion
	FutureID         nlock.UUID
	ThreadID         uint64
	Keys             []string
	Read             bool
	RetVal           bool
	TimeoutMs        int64
	Filter           filterlang.Predicate
	Tx               nlock.TxHandle
	Invalidate       bool
	EC               bool
	SyncCommit       bool
	SyncRollback     bool
	ImplicitSingleTx bool

	topologyVersion atomic.Int64 // -1 until map() runs once (I2)

	mu          sync.Mutex
	entries     []*EnlistedEntry
	valMap      map[string]valRecord
	leftNodes   map[nlock.NodeID]bool
	miniFutures []MiniFutureHandle

	errMu sync.Mutex
	err   error // write-once; never the TimedOut sentinel (§9 Design Notes)

	timedOut  atomic.Bool
	cancelled atomic.Bool
	trackable bool

	doneOnce    sync.Once
	done        chan struct{}
	outcome     nlock.LockOutcome
	outcomeLock sync.Mutex

	// coord is assigned once by Coordinator.Start; mini-futures use it to
	// drive checkLocks/onComplete without each holding their own reference.
	coord *Coordinator
}

// New constructs a LockAttempt ready for Coordinator.Start. When tx is
// non-nil, lockVersion is tx.XIDVersion() reused rather than freshly
// allocated (§3 "reused as the enclosing transaction's xid-version").
func New(keys []string, threadID uint64, timeoutMs int64, filter filterlang.Predicate, tx nlock.TxHandle) *LockAttempt {
	lv := nlock.NewLockVersion()
	if tx != nil {
		lv = tx.XIDVersion()
	}
	if filter == nil {
		filter = filterlang.Always()
	}
	a := &LockAttempt{
		LockVersion: lv,
		FutureID:    nlock.NewUUID(),
		ThreadID:    threadID,
		Keys:        keys,
		TimeoutMs:   timeoutMs,
		Filter:      filter,
		Tx:          tx,
		trackable:   true,
		valMap:      make(map[string]valRecord),
		leftNodes:   make(map[nlock.NodeID]bool),
		done:        make(chan struct{}),
	}
	a.topologyVersion.Store(-1)
	return a
}

// TopologyVersion returns the snapshot version this attempt mapped against,
// or -1 if map() has not run yet.
func (a *LockAttempt) TopologyVersion() int64 {
	return a.topologyVersion.Load()
}

// setTopologyVersion assigns the topology version exactly once (I2); it
// panics if called twice, since that would indicate two concurrent map()
// passes which the coordinator must never allow.
func (a *LockAttempt) setTopologyVersion(v int64) {
	if !a.topologyVersion.CompareAndSwap(-1, v) {
		panic("lockfuture: topology_version set more than once for this attempt")
	}
}

// Entries returns a snapshot of the enlisted entries for lock-free
// iteration (§5 "entries_copy()").
func (a *LockAttempt) Entries() []*EnlistedEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*EnlistedEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

func (a *LockAttempt) appendEntry(e *EnlistedEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *LockAttempt) replaceEntry(key string, e *nearcache.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ee := range a.entries {
		if ee.Key == key {
			ee.Entry = e
			return
		}
	}
}

func (a *LockAttempt) recordVal(key string, v valRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.valMap[key] = v
}

func (a *LockAttempt) getVal(key string) (valRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.valMap[key]
	return v, ok
}

func (a *LockAttempt) addLeftNode(n nlock.NodeID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.leftNodes[n] = true
}

// LeftNodes returns the set of nodes excluded from remap (P5).
func (a *LockAttempt) LeftNodes() map[nlock.NodeID]bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[nlock.NodeID]bool, len(a.leftNodes))
	for k := range a.leftNodes {
		out[k] = true
	}
	return out
}

func (a *LockAttempt) addMiniFuture(m MiniFutureHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.miniFutures = append(a.miniFutures, m)
}

// MiniFutures returns a snapshot of the attempt's mini-futures.
func (a *LockAttempt) MiniFutures() []MiniFutureHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]MiniFutureHandle, len(a.miniFutures))
	copy(out, a.miniFutures)
	return out
}

// miniFutureFor returns the mini-future whose key slice contains key, used
// by the Response Applier to attribute a response to its origin node.
func (a *LockAttempt) miniFutureFor(key string) *MiniFuture {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, mf := range a.miniFutures {
		for _, k := range mf.Keys {
			if k == key {
				return mf
			}
		}
	}
	return nil
}

// trySetError performs the write-once CAS into the error field (§5). It
// ignores nil; timeouts never pass through it, since they are recorded in
// timedOut instead (§9 "Dynamic error typing"). Returns true if this call
// won the race to set the error.
func (a *LockAttempt) trySetError(err error) bool {
	if err == nil {
		return false
	}
	a.errMu.Lock()
	defer a.errMu.Unlock()
	if a.err != nil {
		return false
	}
	a.err = err
	return true
}

// Err returns the first non-sentinel error recorded against this attempt,
// or nil if none has been set.
func (a *LockAttempt) Err() error {
	a.errMu.Lock()
	defer a.errMu.Unlock()
	return a.err
}

// TimedOut reports whether the timeout callback has fired for this attempt.
func (a *LockAttempt) TimedOut() bool {
	return a.timedOut.Load()
}

// Cancelled reports whether Cancel has been called on this attempt.
func (a *LockAttempt) Cancelled() bool {
	return a.cancelled.Load()
}

// IsDone reports whether the attempt has reached a terminal state.
func (a *LockAttempt) IsDone() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the attempt resolves and returns its outcome.
func (a *LockAttempt) Wait() nlock.LockOutcome {
	<-a.done
	a.outcomeLock.Lock()
	defer a.outcomeLock.Unlock()
	return a.outcome
}

// Done returns a channel closed when the attempt resolves, for callers that
// want to select on multiple attempts.
func (a *LockAttempt) Done() <-chan struct{} {
	return a.done
}

// complete performs the terminal CAS described in §5 "Resource lifecycle":
// the first caller to transition the attempt to done wins and runs cleanup;
// subsequent callers observe IsDone() and are no-ops. Returns true if this
// call performed the transition.
func (a *LockAttempt) complete(outcome nlock.LockOutcome) bool {
	won := false
	a.doneOnce.Do(func() {
		a.outcomeLock.Lock()
		a.outcome = outcome
		a.outcomeLock.Unlock()
		close(a.done)
		won = true
	})
	return won
}
