// Package dht implements the authoritative replicated partitioning of keys
// across cluster nodes (§6 "DHT tier" / GLOSSARY "DHT tier"), consumed by
// the lock acquisition core through two operations: peeking a key's
// currently-known version without locking, and running a lock request
// against the local node's owned keys.
package dht

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/sharedcode/nlock"
	"github.com/sharedcode/nlock/transport"
)

// Entry is the authoritative record a primary holds for one key.
type Entry struct {
	Value   any
	Bytes   []byte
	Version nlock.LockVersion
}

// Tier is the external DHT contract (§6): `peek_exx(key) → DhtEntry?` and
// `lock_all_async(local_node, req, keys, filter) → Future<Response>`.
type Tier interface {
	// PeekExx returns the currently-known entry for key without acquiring
	// any lock, or ok=false when nothing is known locally.
	PeekExx(ctx context.Context, key string) (Entry, bool)
	// LockAllAsync processes req for the given keys as the local primary,
	// evaluating filter against each key's current entry before granting a
	// candidate. It returns the response the compound future will apply.
	LockAllAsync(ctx context.Context, localNode nlock.NodeID, req *transport.LockRequest, keys []string, filter func(map[string]any) bool) (*transport.LockResponse, error)
}

// partitionState tracks the authoritative value plus the MVCC version sets
// used to answer LockRequests for keys this node owns.
type partitionState struct {
	mu      sync.Mutex
	entries map[string]Entry

	pending    map[string][]nlock.LockVersion
	committed  map[string][]nlock.LockVersion
	rolledBack map[string][]nlock.LockVersion
}

// LocalTier is an in-process, single-node Tier implementation: every key
// this process is asked about is treated as locally owned. It collapses
// concurrent PeekExx calls for the same key via singleflight so a burst of
// enlisters racing on a hot key only does the lookup once.
type LocalTier struct {
	group singleflight.Group
	state partitionState
}

// NewLocalTier builds an empty LocalTier.
func NewLocalTier() *LocalTier {
	return &LocalTier{
		state: partitionState{
			entries:    make(map[string]Entry),
			pending:    make(map[string][]nlock.LockVersion),
			committed:  make(map[string][]nlock.LockVersion),
			rolledBack: make(map[string][]nlock.LockVersion),
		},
	}
}

// Seed installs an authoritative entry for key, for tests and for bridging
// in values loaded from a blob store.
func (t *LocalTier) Seed(key string, e Entry) {
	t.state.mu.Lock()
	defer t.state.mu.Unlock()
	t.state.entries[key] = e
}

func (t *LocalTier) PeekExx(ctx context.Context, key string) (Entry, bool) {
	v, err, _ := t.group.Do(key, func() (any, error) {
		t.state.mu.Lock()
		defer t.state.mu.Unlock()
		e, ok := t.state.entries[key]
		return peekResult{e, ok}, nil
	})
	if err != nil {
		return Entry{}, false
	}
	r := v.(peekResult)
	return r.entry, r.ok
}

type peekResult struct {
	entry Entry
	ok    bool
}

// LockAllAsync grants a candidate for every key in req against this node's
// local partition state, running filter first and failing the whole batch
// with *ErrFilterRejected on the first rejection (§4.2 step 2, §7
// FilterRejected).
func (t *LocalTier) LockAllAsync(ctx context.Context, localNode nlock.NodeID, req *transport.LockRequest, keys []string, filter func(map[string]any) bool) (*transport.LockResponse, error) {
	t.state.mu.Lock()
	defer t.state.mu.Unlock()

	resp := &transport.LockResponse{
		LockVersion: req.LockVersion,
		FutureID:    req.FutureID,
		MiniID:      req.MiniID,
		Keys:        make([]transport.KeyResult, len(keys)),
	}
	for i, k := range keys {
		e := t.state.entries[k]
		if filter != nil && !filter(map[string]any{
			"key":          k,
			"dht_version":  e.Version,
			"value":        e.Value,
		}) {
			return nil, &ErrFilterRejected{Key: k}
		}
		v := e.Version
		resp.Keys[i] = transport.KeyResult{
			Value:      e.Value,
			ValueBytes: e.Bytes,
			DhtVersion: &v,
		}
		t.state.pending[k] = append(t.state.pending[k], req.LockVersion)
		// Granting the candidate immediately installs req.LockVersion as the
		// new authoritative version; real DHT replication is out of scope
		// (§1 non-goals: "replication of the lock itself beyond primary
		// acknowledgement").
		t.state.entries[k] = Entry{Value: e.Value, Bytes: e.Bytes, Version: req.LockVersion}
	}
	resp.PendingVersions = flattenVersions(t.state.pending, keys)
	resp.CommittedVersions = flattenVersions(t.state.committed, keys)
	resp.RolledBackVersions = flattenVersions(t.state.rolledBack, keys)
	return resp, nil
}

func flattenVersions(m map[string][]nlock.LockVersion, keys []string) []nlock.LockVersion {
	var out []nlock.LockVersion
	for _, k := range keys {
		out = append(out, m[k]...)
	}
	return out
}

// Commit moves lv from pending to committed for every key it touched,
// called by the transaction manager's commit path.
func (t *LocalTier) Commit(keys []string, lv nlock.LockVersion) {
	t.state.mu.Lock()
	defer t.state.mu.Unlock()
	for _, k := range keys {
		t.state.pending[k] = removeVersion(t.state.pending[k], lv)
		t.state.committed[k] = append(t.state.committed[k], lv)
	}
}

// Rollback moves lv from pending to rolled-back for every key it touched.
func (t *LocalTier) Rollback(keys []string, lv nlock.LockVersion) {
	t.state.mu.Lock()
	defer t.state.mu.Unlock()
	for _, k := range keys {
		t.state.pending[k] = removeVersion(t.state.pending[k], lv)
		t.state.rolledBack[k] = append(t.state.rolledBack[k], lv)
	}
}

func removeVersion(vs []nlock.LockVersion, lv nlock.LockVersion) []nlock.LockVersion {
	out := vs[:0]
	for _, v := range vs {
		if !v.Equal(lv) {
			out = append(out, v)
		}
	}
	return out
}

// ErrFilterRejected is returned when a LockRequest's filter rejects a key
// on the primary side (§7 FilterRejected).
type ErrFilterRejected struct {
	Key string
}

func (e *ErrFilterRejected) Error() string {
	return "dht: filter rejected key " + e.Key
}
