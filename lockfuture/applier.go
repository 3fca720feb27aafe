package lockfuture

import (
	"github.com/sharedcode/nlock"
	"github.com/sharedcode/nlock/nearcache"
	"github.com/sharedcode/nlock/transport"
)

// ResponseApplier installs a peer's LockResponse onto the local near-cache
// entries it answered for, under the protection of the lock the peer just
// granted (§4.6, C6).
type ResponseApplier struct {
	near *nearcache.Store
}

// NewResponseApplier builds a ResponseApplier backed by near.
func NewResponseApplier(near *nearcache.Store) *ResponseApplier {
	return &ResponseApplier{near: near}
}

// ErrMissingDhtVersion is fatal (§7): it indicates a broken peer invariant
// — the primary answered a key without stamping a DHT version.
type ErrMissingDhtVersion struct {
	Key string
}

func (e *ErrMissingDhtVersion) Error() string {
	return "lockfuture: response for key " + e.Key + " carries no dht version"
}

// Apply applies resp onto attempt's enlisted entries for keys, index-aligned
// with resp.Keys (§4.6 steps 1-7).
func (ra *ResponseApplier) Apply(attempt *LockAttempt, keys []string, resp *transport.LockResponse) error {
	minVisible := attempt.LockVersion
	if attempt.Tx != nil {
		minVisible = attempt.Tx.MinVersion()
	}

	for i, key := range keys {
		if i >= len(resp.Keys) {
			break
		}
		kr := resp.Keys[i]

		var entry *nearcache.Entry
		for {
			entry = ra.near.Entry(key)
			if !entry.IsRemoved() {
				break
			}
		}

		if kr.DhtVersion == nil {
			return &ErrMissingDhtVersion{Key: key}
		}
		dhtVersion := *kr.DhtVersion

		oldTup, hadOld := attempt.getVal(key)
		sameAsOld := hadOld && oldTup.dhtVersion.Equal(dhtVersion)

		newValue := kr.Value
		newBytes := kr.ValueBytes
		if newValue == nil && sameAsOld {
			newValue = oldTup.value
			newBytes = oldTup.bytes
		}

		var peerNode nlock.NodeID
		if mf := attempt.miniFutureFor(key); mf != nil {
			peerNode = mf.Node
		}

		if err := entry.ResetFromPrimary(newValue, newBytes, attempt.LockVersion, dhtVersion, peerNode); err != nil {
			return err
		}
		entry.DoneRemote(attempt.LockVersion, minVisible, resp.PendingVersions, resp.CommittedVersions, resp.RolledBackVersions)

		attempt.replaceEntry(key, entry)

		// §4.6 step 6: the equality condition is the single gate for the
		// read-metric increment, per the normative reading of the original
		// source's subtle oldValTup.ver == dhtVer check. No separate read
		// event is recorded; only the entry's read counter changes.
		if attempt.RetVal && sameAsOld {
			entry.IncrementReadMetric()
		}

		if attempt.EC {
			entry.Recheck()
		}
	}
	return nil
}
