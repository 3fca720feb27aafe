package nearcache

import (
	"sync"

	"github.com/sharedcode/nlock"
	"github.com/sharedcode/nlock/cache"
)

// Store is the near-cache entry store referenced by §6 "Near cache" as an
// external collaborator: `entry_exx(key) → NearEntry`. It keeps a bounded
// L1 MRU of *Entry keyed by application key, adapted from the teacher's
// generic cache.Cache[TK,TV] (previously specialized to B-Tree node IDs,
// now keyed directly on application keys). An optional L2 (nlock.L2Cache)
// is held and returned by L2(); the lock acquisition path does not read or
// write it, and it does not store entry values.
type Store struct {
	mu sync.Mutex
	l1 cache.Cache[string, *Entry]
	l2 nlock.L2Cache
}

// NewStore builds a Store with an L1 MRU sized [minCapacity, maxCapacity]
// and an optional L2 cache (may be nil, e.g. single-process tests).
func NewStore(minCapacity, maxCapacity int, l2 nlock.L2Cache) *Store {
	return &Store{
		l1: cache.NewCache[string, *Entry](minCapacity, maxCapacity),
		l2: l2,
	}
}

// Entry returns the near-cache entry for key, creating one if absent. This
// grounds `entry_exx(key) → NearEntry` (§6); "exx" only ever creates once
// and the enlister retries through it on ErrEntryRemoved.
func (s *Store) Entry(key string) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := s.l1.Get([]string{key})
	if len(found) > 0 && found[0] != nil && !found[0].IsRemoved() {
		return found[0]
	}
	e := NewEntry(key)
	s.l1.Set([]nlock.KeyValuePair[string, *Entry]{{Key: key, Value: e}})
	return e
}

// Evict removes key from the L1 tier, marking its entry removed so any
// enlister mid-flight against it retries via ErrEntryRemoved.
func (s *Store) Evict(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := s.l1.Get([]string{key})
	if len(found) > 0 && found[0] != nil {
		found[0].MarkRemoved()
	}
	s.l1.Delete([]string{key})
}

// L2 returns the underlying distributed lock-key cache, or nil when none
// was configured.
func (s *Store) L2() nlock.L2Cache {
	return s.l2
}
