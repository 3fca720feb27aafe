package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/sharedcode/nlock"
)

// ErrTopologyChanged is returned by Send when the destination node has left
// the cluster, deliverable to the mini-future as a peer-left event (§4.3
// on_peer_left, §7 TopologyChanged).
type ErrTopologyChanged struct {
	Node nlock.NodeID
}

func (e *ErrTopologyChanged) Error() string {
	return fmt.Sprintf("transport: node %s is no longer a member", e.Node)
}

// Handler processes an inbound LockRequest on the node that owns it and
// returns the LockResponse to send back.
type Handler func(ctx context.Context, req *LockRequest) (*LockResponse, error)

// Transport delivers LockRequest/LockResponse messages between nodes (§6
// "I/O transport"). Send may fail with *ErrTopologyChanged when node is no
// longer a cluster member.
type Transport interface {
	Send(ctx context.Context, node nlock.NodeID, req *LockRequest) (*LockResponse, error)
	// RegisterHandler installs the handler this node uses to answer requests
	// addressed to it, keyed by its own NodeID.
	RegisterHandler(self nlock.NodeID, h Handler)
}

// InMemory is a Transport for single-process tests and deployments: it
// dispatches directly to the registered handler for the destination node,
// with no real network hop. Nodes not yet registered, or explicitly marked
// departed, yield *ErrTopologyChanged.
type InMemory struct {
	mu       sync.RWMutex
	handlers map[nlock.NodeID]Handler
	departed map[nlock.NodeID]bool
}

// NewInMemory builds an empty InMemory transport.
func NewInMemory() *InMemory {
	return &InMemory{
		handlers: make(map[nlock.NodeID]Handler),
		departed: make(map[nlock.NodeID]bool),
	}
}

func (t *InMemory) RegisterHandler(self nlock.NodeID, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[self] = h
}

// MarkDeparted simulates node leaving the cluster: subsequent Send calls to
// it fail with *ErrTopologyChanged until it is re-registered.
func (t *InMemory) MarkDeparted(node nlock.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.departed[node] = true
}

func (t *InMemory) Send(ctx context.Context, node nlock.NodeID, req *LockRequest) (*LockResponse, error) {
	t.mu.RLock()
	departed := t.departed[node]
	h, ok := t.handlers[node]
	t.mu.RUnlock()
	if departed || !ok {
		return nil, &ErrTopologyChanged{Node: node}
	}
	return h(ctx, req)
}
