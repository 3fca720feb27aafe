package lockfuture

import (
	"context"
	log "log/slog"

	"github.com/sharedcode/nlock"
	"github.com/sharedcode/nlock/affinity"
	"github.com/sharedcode/nlock/dht"
	"github.com/sharedcode/nlock/nearcache"
	"github.com/sharedcode/nlock/transport"
)

// ErrRemapToSameNode fires when a peer-left remap would re-target a key to
// a node that already held it during this attempt (§4.1 re-map guard, P6).
type ErrRemapToSameNode struct {
	Key  string
	Node nlock.NodeID
}

func (e *ErrRemapToSameNode) Error() string {
	return "lockfuture: remap for key " + e.Key + " would re-target the same node " + string(e.Node)
}

// Coordinator wires together the external collaborators (§6) and drives
// LockAttempt instances through INIT → MAPPED → AWAITING → DONE (§4.4, C4).
// It owns no per-attempt state itself; everything mutable lives on the
// LockAttempt.
type Coordinator struct {
	LocalNode nlock.NodeID
	Topology  affinity.Topology
	Mapper    *affinity.Mapper
	Near      *nearcache.Store
	Tier      dht.Tier
	Transport transport.Transport
	Registry   *Registry
	Timeouts   *TimeoutWheel
	Applier    *ResponseApplier
	Dispatcher *Dispatcher

	// BackupCount bounds how many rendezvous-ranked backup nodes are
	// considered as remap targets after a peer leaves.
	BackupCount int
}

// NewCoordinator builds a Coordinator from its collaborators. Registry and
// Timeouts may be nil for deployments that do not need MVCC registry
// tracking or wall-clock timeouts respectively.
func NewCoordinator(localNode nlock.NodeID, topo affinity.Topology, mapper *affinity.Mapper, near *nearcache.Store, tier dht.Tier, tr transport.Transport, registry *Registry, timeouts *TimeoutWheel) *Coordinator {
	return &Coordinator{
		LocalNode:   localNode,
		Topology:    topo,
		Mapper:      mapper,
		Near:        near,
		Tier:        tier,
		Transport:   tr,
		Registry:    registry,
		Timeouts:    timeouts,
		Applier:     NewResponseApplier(near),
		BackupCount: 2,
	}
}

// Start maps and dispatches a freshly-constructed LockAttempt: INIT →
// MAPPED, then implicitly → AWAITING while mini-futures remain outstanding
// (§4.4). It is the only call to map() this attempt will ever make (I2).
func (c *Coordinator) Start(ctx context.Context, a *LockAttempt) {
	a.coord = c

	if c.Registry != nil {
		c.Registry.register(a)
	}
	if a.TimeoutMs > 0 && c.Timeouts != nil {
		c.Timeouts.Add(newTimeoutBinding(a, c))
	}

	if err := c.Topology.ReadLock(ctx); err != nil {
		a.trySetError(err)
		c.onComplete(a, false, false)
		return
	}
	defer c.Topology.Unlock()

	ver := c.Topology.TopologyVersion()
	a.setTopologyVersion(ver)

	groups, remapErr := c.mapKeys(a.Keys, nil, a.LeftNodes())
	if remapErr != nil {
		a.trySetError(remapErr)
		c.onComplete(a, false, false)
		return
	}

	c.enlistAndDispatch(ctx, a, groups)

	if a.IsDone() {
		return
	}
	if len(a.MiniFutures()) == 0 {
		// Every key resolved via reentry or failed locally; nothing to await.
		c.checkLocks(a)
	}
}

// mapKeys groups keys by their current primary, excluding excludeNodes,
// and fails with *ErrRemapToSameNode when a key's new primary is also its
// entry in priorMapping (§4.1 re-map guard, P6).
func (c *Coordinator) mapKeys(keys []string, priorMapping map[string]nlock.NodeID, excludeNodes map[nlock.NodeID]bool) (map[nlock.NodeID][]string, error) {
	groups := make(map[nlock.NodeID][]string)
	for _, k := range keys {
		node, ok := c.Mapper.Primary(k)
		if !ok {
			continue
		}
		if excludeNodes[node] {
			backups := c.Mapper.Backups(k, c.BackupCount+1)
			node, ok = pickFirstUnexcluded(backups, excludeNodes)
			if !ok {
				continue
			}
		}
		if priorMapping != nil {
			if prev, had := priorMapping[k]; had && prev == node {
				return nil, &ErrRemapToSameNode{Key: k, Node: node}
			}
		}
		groups[node] = append(groups[node], k)
	}
	return groups, nil
}

func pickFirstUnexcluded(candidates []nlock.NodeID, excluded map[nlock.NodeID]bool) (nlock.NodeID, bool) {
	for _, c := range candidates {
		if !excluded[c] {
			return c, true
		}
	}
	return "", false
}

// enlistAndDispatch runs the Entry Enlister for every key in groups and
// dispatches one request per node, fanning out through the dispatcher.
func (c *Coordinator) enlistAndDispatch(ctx context.Context, a *LockAttempt, groups map[nlock.NodeID][]string) {
	for node, keys := range groups {
		if a.IsDone() {
			return
		}
		var blocks []transport.KeyBlock
		var liveKeys []string
		for _, k := range keys {
			kb, ok := c.enlistKey(ctx, a, k, node)
			if a.IsDone() {
				return
			}
			if !ok {
				continue
			}
			blocks = append(blocks, kb)
			liveKeys = append(liveKeys, k)
		}
		if len(blocks) == 0 {
			continue
		}
		c.dispatchGroup(ctx, a, node, liveKeys, blocks)
	}
}

// checkLocks implements the AWAITING → DONE.success transition (§4.4): once
// every mini-future has resolved, every enlisted entry must still be held
// locally by (lock_version | thread_id), as Entry.LockedLocallyBy reports.
// The filter is evaluated only during enlistment; it is not re-evaluated here.
func (c *Coordinator) checkLocks(a *LockAttempt) {
	if a.IsDone() {
		return
	}
	for _, mf := range a.MiniFutures() {
		if !mf.received.Load() {
			return
		}
	}
	if a.Err() != nil {
		c.onComplete(a, false, true)
		return
	}
	for _, ee := range a.Entries() {
		if !ee.Entry.LockedLocallyBy(a.LockVersion, a.ThreadID) {
			return
		}
	}
	c.onComplete(a, true, false)
}

// OnOwnerChanged is the optimistic short-circuit (§4.4): if new_owner's
// version matches this attempt's lock version, that alone is sufficient to
// resolve success without re-scanning every entry.
func (c *Coordinator) OnOwnerChanged(a *LockAttempt, newOwnerVersion nlock.LockVersion) {
	if newOwnerVersion.Equal(a.LockVersion) {
		c.onComplete(a, true, false)
	}
}

// OnNodeLeft finds the mini-future addressed to node and delivers
// on_peer_left to it, returning false if no such mini-future exists.
func (c *Coordinator) OnNodeLeft(a *LockAttempt, node nlock.NodeID) bool {
	for _, mf := range a.MiniFutures() {
		if mf.Node == node {
			mf.OnPeerLeft(c)
			return true
		}
	}
	return false
}

// remapAfterPeerLeft re-invokes the mapper on mf's keys, excluding left
// nodes, and issues a fresh request/mini-future pair for the new target
// (§4.3 on_peer_left).
func (c *Coordinator) remapAfterPeerLeft(a *LockAttempt, mf *MiniFuture) {
	prior := make(map[string]nlock.NodeID, len(mf.Keys))
	for _, k := range mf.Keys {
		prior[k] = mf.Node
	}
	groups, err := c.mapKeys(mf.Keys, prior, a.LeftNodes())
	if err != nil {
		a.trySetError(err)
		c.onComplete(a, false, true)
		return
	}
	if len(groups) == 0 {
		// No replacement exists for any of these keys.
		a.trySetError(&ErrRemapToSameNode{Key: mf.Keys[0], Node: mf.Node})
		c.onComplete(a, false, true)
		return
	}
	c.enlistAndDispatch(context.Background(), a, groups)
	c.checkLocks(a)
}

// dispatchGroup sends one LockRequest for keys to node, either via the
// local DHT shortcut or through Transport, wiring the response into a new
// mini-future (§4.4 "Local-primary shortcut").
func (c *Coordinator) dispatchGroup(ctx context.Context, a *LockAttempt, node nlock.NodeID, keys []string, blocks []transport.KeyBlock) {
	req := &transport.LockRequest{
		TopologyVersion:  a.TopologyVersion(),
		SenderNode:       c.LocalNode,
		ThreadID:         a.ThreadID,
		FutureID:         a.FutureID,
		LockVersion:      a.LockVersion,
		InTx:             a.Tx != nil,
		ImplicitSingleTx: a.ImplicitSingleTx,
		Read:             a.Read,
		Invalidate:       a.Invalidate,
		TimeoutMs:        a.TimeoutMs,
		SyncCommit:       a.SyncCommit,
		SyncRollback:     a.SyncRollback,
		MiniID:           nlock.NewUUID(),
		Keys:             blocks,
		Filter:           a.cellFilter(),
	}

	mf := newMiniFuture(a, c.Applier, node, keys)
	mf.MiniID = req.MiniID
	a.addMiniFuture(mf)

	if node == c.LocalNode {
		resp, err := c.Tier.LockAllAsync(ctx, c.LocalNode, req, keys, a.cellFilter())
		if err != nil {
			mf.OnError(err)
			return
		}
		mf.OnResponse(resp)
		return
	}

	send := func() error {
		resp, err := c.Transport.Send(ctx, node, req)
		if err != nil {
			if _, ok := err.(*transport.ErrTopologyChanged); ok {
				mf.OnPeerLeft(c)
				return nil
			}
			mf.OnError(err)
			return nil
		}
		mf.OnResponse(resp)
		return nil
	}
	if c.Dispatcher != nil {
		c.Dispatcher.Go(send)
		return
	}
	go send()
}

// onComplete implements §4.4 "Completion": undo on failure (marking any
// enclosing tx rollback-only), CAS into done exactly once, deregister from
// the registry and timeout wheel only for the caller that won the CAS. No
// per-thread transaction context is re-bound.
func (c *Coordinator) onComplete(a *LockAttempt, success bool, distribute bool) bool {
	if !success {
		c.undoLocks(a, distribute)
		if a.Tx != nil {
			a.Tx.SetRollbackOnly()
		}
	}

	outcome := nlock.Failed
	switch {
	case success:
		outcome = nlock.Success
	case a.Cancelled():
		outcome = nlock.Cancelled
	case a.TimedOut():
		outcome = nlock.TimedOut
	}

	won := a.complete(outcome)
	if !won {
		return false
	}
	if c.Registry != nil {
		c.Registry.removeFuture(a)
	}
	if c.Timeouts != nil {
		c.Timeouts.Remove(a.LockVersion.ID)
	}
	log.Debug("lock attempt completed", "lock_version", a.LockVersion.String(), "outcome", outcome.String())
	return true
}

// undoLocks removes the local candidate from every enlisted entry, and
// when distribute is true and there is no enclosing transaction, asks each
// node that was granted a candidate to release it (§7 propagation policy).
func (c *Coordinator) undoLocks(a *LockAttempt, distribute bool) {
	for _, ee := range a.Entries() {
		ee.Entry.RemoveLock(a.LockVersion)
	}
	if !distribute || a.Tx != nil {
		return
	}
	nodes := map[nlock.NodeID][]string{}
	for _, mf := range a.MiniFutures() {
		if mf.Node == c.LocalNode {
			continue
		}
		nodes[mf.Node] = append(nodes[mf.Node], mf.Keys...)
	}
	for node, keys := range nodes {
		c.sendRelease(node, keys, a.LockVersion)
	}
}

func (c *Coordinator) sendRelease(node nlock.NodeID, keys []string, lv nlock.LockVersion) {
	req := &transport.LockRequest{
		LockVersion: lv,
		Keys:        make([]transport.KeyBlock, len(keys)),
	}
	for i, k := range keys {
		req.Keys[i] = transport.KeyBlock{Key: k}
	}
	go func() {
		_, _ = c.Transport.Send(context.Background(), node, req)
	}()
}

// Cancel sets the cancelled state and completes the attempt (§5
// "Cancellation & timeouts"). Outstanding mini-future responses that arrive
// afterward are discarded as "future is done" by their own received CAS.
func (c *Coordinator) Cancel(a *LockAttempt) {
	a.cancelled.Store(true)
	c.onComplete(a, false, true)
}

// ForceExpire drives a as if its timeout binding had fired, for the admin
// introspection API's "force-expire a stuck attempt" operation. Returns
// false if a had already resolved.
func (c *Coordinator) ForceExpire(a *LockAttempt) bool {
	if a.IsDone() {
		return false
	}
	a.timedOut.Store(true)
	if c.Timeouts != nil {
		c.Timeouts.Remove(a.LockVersion.ID)
	}
	return c.onComplete(a, false, true)
}

// cellFilter adapts LockAttempt.Filter into the map-based predicate shape
// the DHT tier and transport layer expect for server-side evaluation.
func (a *LockAttempt) cellFilter() func(map[string]any) bool {
	return a.Filter
}
