package affinity

import (
	"testing"

	"github.com/sharedcode/nlock"
)

func TestMapper_PrimaryStableAcrossCalls(t *testing.T) {
	nodes := []nlock.NodeID{"n1", "n2", "n3"}
	m := NewMapper(nodes, 1)

	p1, ok := m.Primary("order-42")
	if !ok {
		t.Fatal("expected a primary")
	}
	p2, _ := m.Primary("order-42")
	if p1 != p2 {
		t.Fatalf("primary changed across calls: %v != %v", p1, p2)
	}
}

func TestMapper_NoNodes(t *testing.T) {
	m := NewMapper(nil, 1)
	if _, ok := m.Primary("k"); ok {
		t.Fatal("expected no primary when node set is empty")
	}
}

func TestMapper_RemovingNodeOnlyMovesItsKeys(t *testing.T) {
	nodes := []nlock.NodeID{"n1", "n2", "n3"}
	m := NewMapper(nodes, 1)

	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	before := make(map[string]nlock.NodeID)
	for _, k := range keys {
		p, _ := m.Primary(k)
		before[k] = p
	}

	remaining := []nlock.NodeID{"n1", "n3"}
	m.Update(remaining, 2)

	for _, k := range keys {
		p, _ := m.Primary(k)
		if before[k] != "n2" && before[k] != p {
			t.Fatalf("key %q moved from %v to %v despite its owner staying alive", k, before[k], p)
		}
		if p == "n2" {
			t.Fatalf("key %q still mapped to removed node n2", k)
		}
	}
}

func TestMapper_BackupsExcludePrimary(t *testing.T) {
	nodes := []nlock.NodeID{"n1", "n2", "n3", "n4"}
	m := NewMapper(nodes, 1)

	primary, _ := m.Primary("k1")
	backups := m.Backups("k1", 2)
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups, got %d", len(backups))
	}
	for _, b := range backups {
		if b == primary {
			t.Fatal("backup list must not include the primary")
		}
	}
}

func TestStaticTopology_VersionBumpsOnChange(t *testing.T) {
	topo := NewStaticTopology(NodeRef{ID: "n1"}, NodeRef{ID: "n2"})
	v0 := topo.TopologyVersion()

	topo.Remove("n2")
	v1 := topo.TopologyVersion()
	if v1 <= v0 {
		t.Fatalf("expected version to increase after Remove, got %d -> %d", v0, v1)
	}

	nodes, err := topo.AllNodes(v1)
	if err != nil {
		t.Fatalf("AllNodes: %v", err)
	}
	if len(nodes) != 1 || nodes[0].ID != "n1" {
		t.Fatalf("expected only n1 to remain, got %+v", nodes)
	}
}

func TestStaticTopology_ReadLockUnlock(t *testing.T) {
	topo := NewStaticTopology(NodeRef{ID: "n1"})
	if err := topo.ReadLock(nil); err != nil {
		t.Fatalf("ReadLock: %v", err)
	}
	defer topo.Unlock()

	nodes, err := topo.AllNodes(topo.TopologyVersion())
	if err != nil {
		t.Fatalf("AllNodes: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(nodes))
	}
}
