package lockfuture

import (
	"context"
	log "log/slog"
	"time"

	"github.com/sharedcode/nlock"
	"github.com/sharedcode/nlock/affinity"
)

// Watcher polls a Topology for membership changes and, on every change,
// refreshes the Coordinator's affinity.Mapper and delivers on_node_left to
// every in-flight attempt that had a mini-future outstanding against a node
// that dropped out of the node list (§4.4 "on_node_left", supplementing the
// spec's membership-event contract with a concrete poller since no push
// feed is assumed to exist).
type Watcher struct {
	topo     affinity.Topology
	mapper   *affinity.Mapper
	registry *Registry
	coord    *Coordinator
	interval time.Duration

	lastNodes map[nlock.NodeID]bool
}

// NewWatcher builds a Watcher polling topo every interval.
func NewWatcher(topo affinity.Topology, mapper *affinity.Mapper, registry *Registry, coord *Coordinator, interval time.Duration) *Watcher {
	return &Watcher{
		topo:      topo,
		mapper:    mapper,
		registry:  registry,
		coord:     coord,
		interval:  interval,
		lastNodes: make(map[nlock.NodeID]bool),
	}
}

// Run polls until ctx is done. Intended to run in its own goroutine.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	if err := w.topo.ReadLock(ctx); err != nil {
		log.Warn("topology watcher: read lock failed", "err", err)
		return
	}
	version := w.topo.TopologyVersion()
	nodes, err := w.topo.AllNodes(version)
	w.topo.Unlock()
	if err != nil {
		log.Warn("topology watcher: all_nodes failed", "err", err)
		return
	}

	current := make(map[nlock.NodeID]bool, len(nodes))
	ids := make([]nlock.NodeID, len(nodes))
	for i, n := range nodes {
		current[n.ID] = true
		ids[i] = n.ID
	}

	var departed []nlock.NodeID
	for n := range w.lastNodes {
		if !current[n] {
			departed = append(departed, n)
		}
	}
	joined := false
	for n := range current {
		if !w.lastNodes[n] {
			joined = true
			break
		}
	}
	w.lastNodes = current

	if len(departed) == 0 && !joined {
		return
	}
	w.mapper.Update(ids, version)
	for _, n := range departed {
		log.Debug("topology watcher: node departed", "node", n)
		for _, a := range w.registry.InFlight() {
			w.coord.OnNodeLeft(a, n)
		}
	}
	w.registry.RecheckPendingLocks(w.coord)
}
