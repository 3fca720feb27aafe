package affinity

import (
	"context"
	"sync"
	"time"

	"github.com/gocql/gocql"

	"github.com/sharedcode/nlock"
	"github.com/sharedcode/nlock/cassandra"
)

// CassandraTopology reads cluster membership and the topology version from
// the node/topology_version tables created by cassandra.OpenConnection.
// ReadLock is a process-local RWMutex: it only serializes this process's
// view of one map() invocation (§5 ordering guarantees) and is not a
// cluster-wide lock.
type CassandraTopology struct {
	mu   sync.RWMutex
	conn *cassandra.Connection
}

// NewCassandraTopology wraps an already-open Cassandra connection.
func NewCassandraTopology(conn *cassandra.Connection) *CassandraTopology {
	return &CassandraTopology{conn: conn}
}

func (t *CassandraTopology) ReadLock(ctx context.Context) error {
	t.mu.RLock()
	return nil
}

func (t *CassandraTopology) Unlock() {
	t.mu.RUnlock()
}

func (t *CassandraTopology) TopologyVersion() int64 {
	var version int64
	q := t.conn.Session.Query(
		"SELECT version FROM " + t.conn.Config.Keyspace + ".topology_version WHERE id = 0")
	q.Consistency(t.consistency(t.conn.Config.ConsistencyBook.TopologyGet))
	if err := q.Scan(&version); err != nil {
		return 0
	}
	return version
}

func (t *CassandraTopology) AllNodes(version int64) ([]NodeRef, error) {
	iter := t.conn.Session.Query(
		"SELECT node_id, addr, weight FROM " + t.conn.Config.Keyspace + ".node WHERE left_at = 0 ALLOW FILTERING").
		Consistency(t.consistency(t.conn.Config.ConsistencyBook.TopologyGet)).Iter()

	var nodes []NodeRef
	var id, addr string
	var weight int64
	for iter.Scan(&id, &addr, &weight) {
		nodes = append(nodes, NodeRef{ID: nlock.NodeID(id), Addr: addr, Weight: weight})
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (t *CassandraTopology) consistency(c gocql.Consistency) gocql.Consistency {
	if c == gocql.Any {
		return gocql.LocalQuorum
	}
	return c
}

// Join inserts or refreshes a node row and bumps the topology version.
func (t *CassandraTopology) Join(ctx context.Context, node NodeRef) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ks := t.conn.Config.Keyspace
	if err := t.conn.Session.Query(
		"INSERT INTO "+ks+".node (node_id, addr, weight, joined_at, left_at) VALUES (?, ?, ?, ?, 0)",
		string(node.ID), node.Addr, node.Weight, time.Now().Unix(),
	).Consistency(t.consistency(t.conn.Config.ConsistencyBook.TopologyUpdate)).Exec(); err != nil {
		return err
	}
	return t.bumpVersion()
}

// Leave marks a node as departed and bumps the topology version (P5).
func (t *CassandraTopology) Leave(ctx context.Context, id nlock.NodeID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ks := t.conn.Config.Keyspace
	if err := t.conn.Session.Query(
		"UPDATE "+ks+".node SET left_at = ? WHERE node_id = ?",
		time.Now().Unix(), string(id),
	).Consistency(t.consistency(t.conn.Config.ConsistencyBook.TopologyUpdate)).Exec(); err != nil {
		return err
	}
	return t.bumpVersion()
}

func (t *CassandraTopology) bumpVersion() error {
	ks := t.conn.Config.Keyspace
	return t.conn.Session.Query(
		"UPDATE "+ks+".topology_version SET version = version + 1 WHERE id = 0",
	).Consistency(t.consistency(t.conn.Config.ConsistencyBook.TopologyUpdate)).Exec()
}
