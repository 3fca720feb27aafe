package nlock

import (
	"sync"
)

// IsolationLevel mirrors the transaction manager's isolation setting, carried
// through into the LockRequest (§6) so the primary can apply the right
// visibility rules when evaluating pending/committed/rolled-back versions.
type IsolationLevel int

const (
	// ReadCommitted is the default isolation level.
	ReadCommitted IsolationLevel = iota
	// RepeatableRead additionally pins the reader's snapshot for the duration
	// of the transaction.
	RepeatableRead
	// Serializable is the strictest level.
	Serializable
)

// TxHandle is the external contract (§6 Transaction manager) a LockAttempt
// consults when acquisition happens inside a transaction. It is implemented
// by the enclosing transaction manager, not by this module's core; a minimal
// in-memory implementation (InMemoryTx) is provided for tests and for the
// reentrant-lock scenario (§8 scenario 6).
type TxHandle interface {
	// XIDVersion is the transaction's own lock version, reused as the
	// LockAttempt's lock_version when the attempt is part of this tx.
	XIDVersion() LockVersion
	// MinVersion is the lowest version still visible to this transaction;
	// passed to done_remote as min_version_for_visibility (§4.6 step 5).
	MinVersion() LockVersion

	// TopologyVersion records (or returns, if already assigned) the topology
	// version this transaction is pinned to.
	TopologyVersion(current int64) int64

	// AddKeyMapping records which node a set of keys were enlisted against,
	// so rollback/remap bookkeeping knows where to send release messages.
	AddKeyMapping(nodeToKeys map[NodeID][]string)
	// MarkExplicit records that this transaction acquired a lock on nodeID
	// outside its normal enlistment flow (reentry case, §4.2 step 3, P-tx
	// scenario 6). Called at most once per node per attempt.
	MarkExplicit(nodeID NodeID)
	// RemoveMapping drops a node's key mapping, used when a peer-left event
	// forces a remap away from that node (§4.3 on_peer_left).
	RemoveMapping(nodeID NodeID)

	// SetRollbackOnly marks the transaction so its next Commit call fails and
	// its eventual cleanup releases any locks acquired so far (§7, I5, P7).
	SetRollbackOnly()

	// Implicit reports whether this is a single-operation implicit transaction.
	Implicit() bool
	// ImplicitSingle reports whether it is additionally scoped to one key.
	ImplicitSingle() bool
	// EC reports whether the transaction runs in eventually-consistent mode.
	EC() bool
	// Invalidate reports whether this acquisition should invalidate (rather
	// than refresh) the near-cache entries it touches once released.
	Invalidate() bool
	// SyncCommit/SyncRollback report whether the primary should acknowledge
	// synchronously for commit/rollback respectively.
	SyncCommit() bool
	SyncRollback() bool
	// Isolation returns the transaction's isolation level.
	Isolation() IsolationLevel
}

// NodeID identifies a cluster node. It is a thin string wrapper so affinity,
// transport, and topology packages all share one comparable, loggable type.
type NodeID string

// InMemoryTx is a minimal TxHandle usable in tests and for the reentrant-lock
// scenario (§8 scenario 6): it tracks its own xid version, the node mappings
// it has been told about, and whether MarkExplicit has fired for a node.
type InMemoryTx struct {
	mu             sync.Mutex
	xid            LockVersion
	minVer         LockVersion
	topologyVer    int64
	mappings       map[NodeID][]string
	explicitNodes  map[NodeID]bool
	rollbackOnly   bool
	implicit       bool
	implicitSingle bool
	ec             bool
	invalidate     bool
	syncCommit     bool
	syncRollback   bool
	isolation      IsolationLevel
}

// NewInMemoryTx constructs an InMemoryTx with a freshly allocated xid version.
func NewInMemoryTx() *InMemoryTx {
	return &InMemoryTx{
		xid:           NewLockVersion(),
		minVer:        NewLockVersion(),
		mappings:      make(map[NodeID][]string),
		explicitNodes: make(map[NodeID]bool),
		topologyVer:   -1,
	}
}

func (t *InMemoryTx) XIDVersion() LockVersion { return t.xid }
func (t *InMemoryTx) MinVersion() LockVersion { return t.minVer }

func (t *InMemoryTx) TopologyVersion(current int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.topologyVer == -1 {
		t.topologyVer = current
	}
	return t.topologyVer
}

func (t *InMemoryTx) AddKeyMapping(nodeToKeys map[NodeID][]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for n, keys := range nodeToKeys {
		t.mappings[n] = append(t.mappings[n], keys...)
	}
}

func (t *InMemoryTx) MarkExplicit(nodeID NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.explicitNodes[nodeID] = true
}

// IsExplicit reports whether MarkExplicit was called for nodeID. Test helper.
func (t *InMemoryTx) IsExplicit(nodeID NodeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.explicitNodes[nodeID]
}

func (t *InMemoryTx) RemoveMapping(nodeID NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.mappings, nodeID)
}

func (t *InMemoryTx) SetRollbackOnly() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollbackOnly = true
}

// IsRollbackOnly reports whether SetRollbackOnly was called. Test helper.
func (t *InMemoryTx) IsRollbackOnly() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rollbackOnly
}

func (t *InMemoryTx) Implicit() bool           { return t.implicit }
func (t *InMemoryTx) ImplicitSingle() bool     { return t.implicitSingle }
func (t *InMemoryTx) EC() bool                 { return t.ec }
func (t *InMemoryTx) Invalidate() bool         { return t.invalidate }
func (t *InMemoryTx) SyncCommit() bool         { return t.syncCommit }
func (t *InMemoryTx) SyncRollback() bool       { return t.syncRollback }
func (t *InMemoryTx) Isolation() IsolationLevel { return t.isolation }
