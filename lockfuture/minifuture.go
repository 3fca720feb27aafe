package lockfuture

import (
	"sync/atomic"

	"github.com/sharedcode/nlock"
	"github.com/sharedcode/nlock/transport"
)

// MiniFutureHandle is the non-owning reference to a MiniFuture the compound
// future keeps in its mini_futures list, and the tagged-variant shape §9
// describes ("Local(EmbeddedFuture), Remote(MiniFuture)"): a local shortcut
// has no node round trip, so it is represented as a MiniFuture whose
// Node equals the compound's own local node and whose terminal event fires
// synchronously from Coordinator.dispatchGroup.
type MiniFutureHandle = *MiniFuture

// MiniFuture represents the outstanding request to one peer node (§3, C3).
// received enforces that exactly one of on_response/on_error/on_peer_left
// ever takes effect (I4, P2).
type MiniFuture struct {
	MiniID nlock.UUID
	Node   nlock.NodeID
	Keys   []string

	received atomic.Bool
	parent   *LockAttempt
	applier  *ResponseApplier
}

// Received reports whether this mini-future has already resolved, for the
// admin introspection API.
func (m *MiniFuture) Received() bool {
	return m.received.Load()
}

func newMiniFuture(parent *LockAttempt, applier *ResponseApplier, node nlock.NodeID, keys []string) *MiniFuture {
	return &MiniFuture{
		MiniID:  nlock.NewUUID(),
		Node:    node,
		Keys:    keys,
		parent:  parent,
		applier: applier,
	}
}

// OnResponse applies resp to the parent attempt's enlisted entries. Only
// the first terminal event for this mini-future takes effect (P2).
func (m *MiniFuture) OnResponse(resp *transport.LockResponse) {
	if !m.received.CompareAndSwap(false, true) {
		return
	}
	if resp.Err != nil {
		m.fail(resp.Err)
		return
	}
	if err := m.applier.Apply(m.parent, m.Keys, resp); err != nil {
		m.fail(err)
		return
	}
	m.parent.coord.checkLocks(m.parent)
}

// OnError marks this mini-future failed with err. The LockTimeout sentinel
// is deliberately never routed here: timeouts are driven through
// LockAttempt.timedOut and the dedicated timeout path instead (§4.3).
func (m *MiniFuture) OnError(err error) {
	if !m.received.CompareAndSwap(false, true) {
		return
	}
	m.fail(err)
}

func (m *MiniFuture) fail(err error) {
	if m.parent.trySetError(err) {
		m.parent.coord.onComplete(m.parent, false, true)
	}
}

// OnPeerLeft handles a topology exception delivered for this mini-future's
// node (§4.3): the node is recorded in left_nodes, its tx mapping (if any)
// is dropped, and the coordinator remaps this mini-future's keys excluding
// that node before resolving this mini-future as a benign true (the
// compound keeps waiting on the freshly spawned replacement mini-futures).
func (m *MiniFuture) OnPeerLeft(c *Coordinator) {
	if !m.received.CompareAndSwap(false, true) {
		return
	}
	m.parent.addLeftNode(m.Node)
	if m.parent.Tx != nil {
		m.parent.Tx.RemoveMapping(nlock.NodeID(m.Node))
	}
	c.remapAfterPeerLeft(m.parent, m)
}
