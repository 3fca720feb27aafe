// Package nearcache implements the client-side cache tier in front of the
// DHT primary tier: addressable entries with an MVCC candidate queue, the
// Entry Enlister (§4.2), and the Response Applier's entry-side half (§4.6).
package nearcache

import (
	"sync"

	"github.com/sharedcode/nlock"
)

// Candidate is a lock candidate held by an entry's MVCC queue (§3
// LockCandidate). The coordinator appends one per (entry, attempt) via
// Entry.AddNearLocal and never constructs it directly.
type Candidate struct {
	OwnerNode       nlock.NodeID
	LockVersion     nlock.LockVersion
	ThreadID        uint64
	Timeout         int64
	Reentry         bool
	TopologyVersion int64
}

// Entry is one near-cache slot: the locally-observed value/version plus the
// ordered queue of pending and held lock candidates for this key. The first
// candidate in the queue is the current owner; candidates behind it are
// waiting their turn.
type Entry struct {
	mu sync.Mutex

	key   string
	value any
	bytes []byte

	// dhtVersion is the last value/version installed from the primary via
	// ResetFromPrimary. Zero value (nil LockVersion) means "never observed".
	dhtVersion nlock.LockVersion

	candidates []*Candidate
	removed    bool

	readCount uint64

	// minVisible is the lowest version still visible to readers of this
	// entry, per the most recent DoneRemote call (§4.6 step 5).
	minVisible nlock.LockVersion
	pending    map[string]bool
	committed  map[string]bool
	rolledBack map[string]bool
}

// NewEntry constructs an empty near-cache entry for key.
func NewEntry(key string) *Entry {
	return &Entry{key: key}
}

// Key returns the entry's key.
func (e *Entry) Key() string { return e.key }

// IsRemoved reports whether the entry has been evicted from the near cache.
// Callers observing this must re-fetch (§4.2 step 4, "entry-removed retry").
func (e *Entry) IsRemoved() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removed
}

// MarkRemoved flags the entry as evicted. Subsequent calls to AddNearLocal
// or ResetFromPrimary return ErrEntryRemoved.
func (e *Entry) MarkRemoved() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removed = true
}

// VersionedValue returns the locally-known (version, value, bytes) triple,
// used by the Entry Enlister to seed val_map before a remote round trip
// (§4.2 step 3), and the second return is false when nothing has been
// observed yet (fall back to the DHT tier's peeked entry).
func (e *Entry) VersionedValue() (nlock.LockVersion, any, []byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dhtVersion.IsNil() {
		return nlock.LockVersion{}, nil, nil, false
	}
	return e.dhtVersion, e.value, e.bytes, true
}

// AddNearLocal appends a lock candidate for (threadID, lockVersion) to this
// entry's MVCC queue, per the entry's local API referenced by §4.2 step 3.
// It returns:
//   - (candidate, false, nil) when a fresh candidate was appended and is now
//     the owner (queue was empty) or is waiting behind an existing owner;
//   - (candidate, true, nil) when an existing candidate for the same
//     (threadID|tx) already holds a compatible lock — a reentry, §4.2 step 3
//     second bullet and glossary "Reentry";
//   - (nil, false, nil) when timeoutMs <= 0 and a different thread already
//     owns the head of the queue — fail immediately rather than wait (§4.2
//     step 3 third bullet, §4.5 negative timeout_ms);
//   - (nil, false, ErrEntryRemoved) when the entry was concurrently evicted.
func (e *Entry) AddNearLocal(node nlock.NodeID, threadID uint64, lv nlock.LockVersion, timeoutMs int64, topologyVersion int64) (*Candidate, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, false, ErrEntryRemoved
	}
	for _, c := range e.candidates {
		if c.ThreadID == threadID {
			return c, true, nil
		}
	}
	if timeoutMs <= 0 && len(e.candidates) > 0 {
		return nil, false, nil
	}
	c := &Candidate{
		OwnerNode:       node,
		LockVersion:     lv,
		ThreadID:        threadID,
		Timeout:         timeoutMs,
		Reentry:         false,
		TopologyVersion: topologyVersion,
	}
	e.candidates = append(e.candidates, c)
	return c, false, nil
}

// RemoveLock removes the candidate for lv from this entry's queue. Repeated
// calls for the same lv are a no-op after the first (P9).
func (e *Entry) RemoveLock(lv nlock.LockVersion) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, c := range e.candidates {
		if c.LockVersion.Equal(lv) {
			e.candidates = append(e.candidates[:i], e.candidates[i+1:]...)
			return
		}
	}
}

// LockedLocallyBy reports whether the owner (head) candidate belongs to
// threadID under lv — the condition `check_locks()` evaluates per enlisted
// entry before the compound future can resolve success (§4.4).
func (e *Entry) LockedLocallyBy(lv nlock.LockVersion, threadID uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.candidates) == 0 {
		return false
	}
	head := e.candidates[0]
	return head.ThreadID == threadID && head.LockVersion.Equal(lv)
}

// ResetFromPrimary installs the authoritative value returned by the primary
// under the protection of the just-acquired lock (§4.6 step 4).
func (e *Entry) ResetFromPrimary(value any, bytes []byte, lv nlock.LockVersion, dhtVersion nlock.LockVersion, peer nlock.NodeID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return ErrEntryRemoved
	}
	e.value = value
	e.bytes = bytes
	e.dhtVersion = dhtVersion
	return nil
}

// DoneRemote records the visibility bookkeeping returned alongside a
// successful response: the lowest version still visible to this transaction
// or thread, and the pending/committed/rolled-back version sets the primary
// reported (§4.6 step 5). It does not itself remove the candidate — RemoveLock
// does that once the caller is done with the lock.
func (e *Entry) DoneRemote(lv nlock.LockVersion, minVersionForVisibility nlock.LockVersion, pending, committed, rolledBack []nlock.LockVersion) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.minVisible = minVersionForVisibility
	e.pending = versionSet(pending)
	e.committed = versionSet(committed)
	e.rolledBack = versionSet(rolledBack)
}

func versionSet(vs []nlock.LockVersion) map[string]bool {
	if len(vs) == 0 {
		return nil
	}
	m := make(map[string]bool, len(vs))
	for _, v := range vs {
		m[v.String()] = true
	}
	return m
}

// IsCommitted reports whether lv was reported committed by the most recent
// DoneRemote call.
func (e *Entry) IsCommitted(lv nlock.LockVersion) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.committed[lv.String()]
}

// IsRolledBack reports whether lv was reported rolled back by the most
// recent DoneRemote call.
func (e *Entry) IsRolledBack(lv nlock.LockVersion) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rolledBack[lv.String()]
}

// Recheck re-evaluates the entry's visible value against its candidate
// queue. Called in eventually-consistent mode after every write (§4.6 step
// 7, glossary "EC mode"); here it simply drops a stale owner candidate whose
// version has since been reported rolled back.
func (e *Entry) Recheck() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.candidates) == 0 || e.rolledBack == nil {
		return
	}
	head := e.candidates[0]
	if e.rolledBack[head.LockVersion.String()] {
		e.candidates = e.candidates[1:]
	}
}

// RawGet returns the raw locally-held value without touching the candidate
// queue, for diagnostics and the admin introspection API.
func (e *Entry) RawGet() (any, []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value, e.bytes
}

// IncrementReadMetric bumps the entry's read counter, used by the Response
// Applier's `CACHE_OBJECT_READ` event bookkeeping (§4.6 step 6).
func (e *Entry) IncrementReadMetric() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.readCount++
}

// ReadCount returns the number of recorded CACHE_OBJECT_READ events.
func (e *Entry) ReadCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readCount
}
