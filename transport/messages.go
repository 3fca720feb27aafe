// Package transport defines the wire messages exchanged between a
// requesting node and the primary owning a set of keys (§6 "Wire
// messages"), plus the Transport contract used to deliver them.
package transport

import (
	"github.com/sharedcode/nlock"
)

// KeyBlock is one per-key segment of a LockRequest.
type KeyBlock struct {
	Key string
	// KeyBytes carries the serialized key, omitted (nil) when the candidate
	// is a reentry or the peer is local (§4.2 step 3).
	KeyBytes []byte
	// WantReturn is true only when no local DHT version was observed for
	// this key, i.e. the caller needs the primary to return the value.
	WantReturn bool
	// ExistingCandidates lets the primary short-circuit MVCC bookkeeping
	// it has already seen for this (key, lock_version).
	ExistingCandidates int
	// DhtVersion is the locally-known version, if any.
	DhtVersion *nlock.LockVersion
}

// LockRequest is sent by the requester to the node that owns a group of
// keys at the snapshot topology version.
type LockRequest struct {
	TopologyVersion  int64
	SenderNode       nlock.NodeID
	ThreadID         uint64
	FutureID         nlock.UUID
	LockVersion      nlock.LockVersion
	InTx             bool
	ImplicitTx       bool
	ImplicitSingleTx bool
	Read             bool
	Isolation        *nlock.IsolationLevel
	Invalidate       bool
	TimeoutMs        int64
	SyncCommit       bool
	SyncRollback     bool
	MiniID           nlock.UUID
	Keys             []KeyBlock
	// Filter is evaluated server-side on the primary's view of each entry;
	// nil means "accept all" (§3 LockAttempt.filter).
	Filter func(entry map[string]any) bool
}

// KeyResult is one per-key segment of a LockResponse, index-aligned with
// the originating LockRequest.Keys.
type KeyResult struct {
	Value      any
	ValueBytes []byte
	DhtVersion *nlock.LockVersion
}

// LockResponse is returned by the primary for one LockRequest. MiniID
// correlates it back to the mini-future inside the originating compound
// attempt (§6).
type LockResponse struct {
	LockVersion nlock.LockVersion
	FutureID    nlock.UUID
	MiniID      nlock.UUID
	Err         error
	Keys        []KeyResult

	PendingVersions    []nlock.LockVersion
	CommittedVersions  []nlock.LockVersion
	RolledBackVersions []nlock.LockVersion
}
