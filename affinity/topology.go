package affinity

import (
	"context"
	"sync"

	"github.com/sharedcode/nlock"
)

// NodeRef describes one cluster member as seen by a Topology snapshot.
type NodeRef struct {
	ID     nlock.NodeID
	Addr   string
	Weight int64
}

// Topology is the external membership contract (§6). ReadLock/Unlock bracket
// one map() invocation so the whole attempt observes one consistent node
// set and topology version (P4); AllNodes is only meaningful between those
// two calls.
type Topology interface {
	ReadLock(ctx context.Context) error
	Unlock()
	TopologyVersion() int64
	AllNodes(version int64) ([]NodeRef, error)
}

// StaticTopology is an in-memory Topology for tests and single-process
// deployments. ReadLock/Unlock are a plain RWMutex; there is no remote
// membership feed, so TopologyVersion only changes via Set or Remove.
type StaticTopology struct {
	mu      sync.RWMutex
	version int64
	nodes   []NodeRef
}

// NewStaticTopology builds a StaticTopology at version 1 with the given nodes.
func NewStaticTopology(nodes ...NodeRef) *StaticTopology {
	return &StaticTopology{version: 1, nodes: nodes}
}

func (t *StaticTopology) ReadLock(ctx context.Context) error {
	t.mu.RLock()
	return nil
}

func (t *StaticTopology) Unlock() {
	t.mu.RUnlock()
}

func (t *StaticTopology) TopologyVersion() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

func (t *StaticTopology) AllNodes(version int64) ([]NodeRef, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]NodeRef, len(t.nodes))
	copy(out, t.nodes)
	return out, nil
}

// Set replaces the node list and bumps the topology version. Used by tests
// to simulate a peer join/leave.
func (t *StaticTopology) Set(nodes ...NodeRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes = nodes
	t.version++
}

// Remove drops id from the node list and bumps the topology version,
// simulating a peer-left membership event (P5).
func (t *StaticTopology) Remove(id nlock.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.nodes[:0]
	for _, n := range t.nodes {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	t.nodes = kept
	t.version++
}
