package dht

import (
	"context"
	"testing"

	"github.com/sharedcode/nlock"
	"github.com/sharedcode/nlock/transport"
)

func TestLocalTier_PeekExxMissingKey(t *testing.T) {
	tier := NewLocalTier()
	if _, ok := tier.PeekExx(context.Background(), "missing"); ok {
		t.Fatal("expected no entry for an unseeded key")
	}
}

func TestLocalTier_LockAllAsyncGrantsAndReturnsVersion(t *testing.T) {
	tier := NewLocalTier()
	tier.Seed("k1", Entry{Value: "v", Bytes: []byte("v"), Version: nlock.NewLockVersion()})

	lv := nlock.NewLockVersion()
	req := &transport.LockRequest{LockVersion: lv, FutureID: nlock.NewUUID(), MiniID: nlock.NewUUID()}
	resp, err := tier.LockAllAsync(context.Background(), "n1", req, []string{"k1"}, nil)
	if err != nil {
		t.Fatalf("LockAllAsync: %v", err)
	}
	if len(resp.Keys) != 1 {
		t.Fatalf("expected 1 key result, got %d", len(resp.Keys))
	}
	if resp.Keys[0].DhtVersion == nil || !resp.Keys[0].DhtVersion.Equal(lv) {
		t.Fatalf("expected granted key to carry the request's lock version, got %v", resp.Keys[0].DhtVersion)
	}

	got, ok := tier.PeekExx(context.Background(), "k1")
	if !ok || !got.Version.Equal(lv) {
		t.Fatalf("expected PeekExx to observe the newly granted version, got %+v ok=%v", got, ok)
	}
}

func TestLocalTier_LockAllAsyncFilterRejects(t *testing.T) {
	tier := NewLocalTier()
	tier.Seed("k1", Entry{Value: "v"})

	reject := func(map[string]any) bool { return false }
	_, err := tier.LockAllAsync(context.Background(), "n1", &transport.LockRequest{}, []string{"k1"}, reject)
	if _, ok := err.(*ErrFilterRejected); !ok {
		t.Fatalf("expected *ErrFilterRejected, got %v", err)
	}
}

func TestLocalTier_CommitMovesVersionOutOfPending(t *testing.T) {
	tier := NewLocalTier()
	tier.Seed("k1", Entry{})
	lv := nlock.NewLockVersion()
	req := &transport.LockRequest{LockVersion: lv}
	if _, err := tier.LockAllAsync(context.Background(), "n1", req, []string{"k1"}, nil); err != nil {
		t.Fatalf("LockAllAsync: %v", err)
	}

	tier.Commit([]string{"k1"}, lv)

	resp, err := tier.LockAllAsync(context.Background(), "n1", &transport.LockRequest{LockVersion: nlock.NewLockVersion()}, []string{"k1"}, nil)
	if err != nil {
		t.Fatalf("LockAllAsync: %v", err)
	}
	for _, v := range resp.PendingVersions {
		if v.Equal(lv) {
			t.Fatal("expected committed version to be removed from pending set")
		}
	}
	found := false
	for _, v := range resp.CommittedVersions {
		if v.Equal(lv) {
			found = true
		}
	}
	if !found {
		t.Fatal("expected committed version to appear in committed set")
	}
}
