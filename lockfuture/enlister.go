package lockfuture

import (
	"context"

	"github.com/sharedcode/nlock"
	"github.com/sharedcode/nlock/nearcache"
	"github.com/sharedcode/nlock/transport"
)

// ErrFilterRejected is local (§7): it fails the whole attempt with
// distribute=false, since no remote locks exist yet for the rejecting key.
type ErrFilterRejected struct {
	Key string
}

func (e *ErrFilterRejected) Error() string {
	return "lockfuture: filter rejected key " + e.Key
}

// enlistKey runs the Entry Enlister (§4.2) for one key against node, under
// the topology read-lock already held by the caller. It returns the
// KeyBlock to include in node's LockRequest, or ok=false when the key
// resolved to a reentry (so it is granted with no remote request at all)
// or the attempt was already failed/timed out and the key must be dropped.
func (c *Coordinator) enlistKey(ctx context.Context, a *LockAttempt, key string, node nlock.NodeID) (transport.KeyBlock, bool) {
	for {
		if a.TimedOut() || a.IsDone() {
			return transport.KeyBlock{}, false
		}

		entry := c.Near.Entry(key)

		entrySnapshot := map[string]any{"key": key}
		if v, val, _, ok := entry.VersionedValue(); ok {
			entrySnapshot["dht_version"] = v
			entrySnapshot["value"] = val
		}
		if !a.Filter(entrySnapshot) {
			a.trySetError(&ErrFilterRejected{Key: key})
			c.onComplete(a, false, false)
			return transport.KeyBlock{}, false
		}

		topoVer := a.TopologyVersion()
		cand, reentry, err := entry.AddNearLocal(node, a.ThreadID, a.LockVersion, a.TimeoutMs, topoVer)
		if err == nearcache.ErrEntryRemoved {
			continue
		}
		if err != nil {
			a.trySetError(err)
			return transport.KeyBlock{}, false
		}

		if reentry {
			c.markExplicitIfNeeded(a, node, cand)
			a.appendEntry(&EnlistedEntry{Key: key, Entry: entry})
			return transport.KeyBlock{}, false
		}

		if cand == nil {
			if a.TimeoutMs <= 0 {
				a.trySetError(&ErrLockUnavailable{Key: key})
				return transport.KeyBlock{}, false
			}
			continue
		}

		var dhtVer *nlock.LockVersion
		wantReturn := true
		if v, val, bytes, ok := entry.VersionedValue(); ok {
			a.recordVal(key, valRecord{dhtVersion: v, value: val, bytes: bytes})
			dhtVer = &v
			wantReturn = false
		} else if peeked, ok := c.Tier.PeekExx(ctx, key); ok {
			a.recordVal(key, valRecord{dhtVersion: peeked.Version, value: peeked.Value, bytes: peeked.Bytes})
			dhtVer = &peeked.Version
			wantReturn = false
		}

		a.appendEntry(&EnlistedEntry{Key: key, Entry: entry})

		local := node == c.LocalNode
		var keyBytes []byte
		if !local && !reentry {
			keyBytes = []byte(key)
		}
		return transport.KeyBlock{
			Key:        key,
			KeyBytes:   keyBytes,
			WantReturn: wantReturn,
			DhtVersion: dhtVer,
		}, true
	}
}

// markExplicitIfNeeded records an explicit mapping on the transaction for
// node when this attempt is in a tx and the entry's reentry candidate did
// not already belong to tx.XIDVersion() (§4.2 step 3, scenario 6).
func (c *Coordinator) markExplicitIfNeeded(a *LockAttempt, node nlock.NodeID, cand *nearcache.Candidate) {
	if a.Tx == nil {
		return
	}
	if cand != nil && cand.LockVersion.Equal(a.Tx.XIDVersion()) {
		return
	}
	a.Tx.MarkExplicit(nlock.NodeID(node))
}

// ErrLockUnavailable fires when a non-blocking attempt (timeout_ms <= 0)
// cannot acquire a candidate immediately (§4.2 step 3, third bullet).
type ErrLockUnavailable struct {
	Key string
}

func (e *ErrLockUnavailable) Error() string {
	return "lockfuture: lock unavailable for key " + e.Key + " and non-blocking timeout requested"
}
