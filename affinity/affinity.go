// Package affinity maps cache keys to owning nodes and tracks the cluster
// topology version those mappings are valid for.
//
// The mapping uses rendezvous (highest random weight) hashing over the set
// of nodes currently marked alive in the topology, so a node leaving or
// joining only reshuffles the keys that hashed closest to it rather than
// the whole keyspace.
package affinity

import (
	"sync"

	"github.com/dgryski/go-rendezvous"
	"github.com/sharedcode/nlock"
)

// Mapper resolves a key to its primary and backup owning nodes for a given
// topology version. It is safe for concurrent use.
type Mapper struct {
	mu      sync.RWMutex
	rdv     *rendezvous.Rendezvous
	nodes   []nlock.NodeID
	version int64
}

// NewMapper builds a Mapper seeded with nodes, at topology version.
func NewMapper(nodes []nlock.NodeID, version int64) *Mapper {
	m := &Mapper{}
	m.reset(nodes, version)
	return m
}

func nodeHash(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

func (m *Mapper) reset(nodes []nlock.NodeID, version int64) {
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = string(n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = append([]nlock.NodeID(nil), nodes...)
	m.version = version
	if len(names) == 0 {
		m.rdv = nil
		return
	}
	m.rdv = rendezvous.New(names, nodeHash)
}

// Update replaces the live node set and records version as the mapping's
// topology version. Callers
// (the topology watcher) call this whenever membership changes.
func (m *Mapper) Update(nodes []nlock.NodeID, version int64) {
	m.reset(nodes, version)
}

// Version returns the topology version the current mapping was built from.
func (m *Mapper) Version() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Primary returns the node that owns key under the current mapping. The
// second return is false if no nodes are known.
func (m *Mapper) Primary(key string) (nlock.NodeID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.rdv == nil {
		return "", false
	}
	return nlock.NodeID(m.rdv.Lookup(key)), true
}

// Backups returns up to n additional nodes for key, ordered by rendezvous
// weight after the primary, used for replica placement and for choosing a
// remap target that excludes a node that just left (§4.1, P6).
func (m *Mapper) Backups(key string, n int) []nlock.NodeID {
	m.mu.RLock()
	nodes := append([]nlock.NodeID(nil), m.nodes...)
	m.mu.RUnlock()
	if len(nodes) == 0 {
		return nil
	}
	primary, ok := m.Primary(key)
	if !ok {
		return nil
	}
	ranked := make([]nlock.NodeID, 0, len(nodes)-1)
	for _, nd := range nodes {
		if nd == primary {
			continue
		}
		ranked = append(ranked, nd)
	}
	// Re-derive order by hashing each candidate against the key so the
	// result is deterministic across calls rather than input-order-dependent.
	sortByWeight(key, ranked)
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func sortByWeight(key string, nodes []nlock.NodeID) {
	weight := func(n nlock.NodeID) uint64 {
		return nodeHash(key + "|" + string(n))
	}
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && weight(nodes[j-1]) < weight(nodes[j]); j-- {
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
		}
	}
}
