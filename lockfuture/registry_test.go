package lockfuture

import (
	"testing"

	"github.com/sharedcode/nlock"
)

func TestRegistry_RegisterLookupRemove(t *testing.T) {
	r := NewRegistry()
	a := New([]string{"k1"}, 1, 0, nil, nil)

	r.register(a)
	got, ok := r.Lookup(a.FutureID)
	if !ok || got != a {
		t.Fatal("expected Lookup to find the registered attempt")
	}
	if len(r.InFlight()) != 1 {
		t.Fatalf("expected 1 in-flight attempt, got %d", len(r.InFlight()))
	}

	r.removeFuture(a)
	if _, ok := r.Lookup(a.FutureID); ok {
		t.Fatal("expected Lookup to fail after removeFuture")
	}
	if len(r.InFlight()) != 0 {
		t.Fatalf("expected 0 in-flight attempts after removeFuture, got %d", len(r.InFlight()))
	}
}

func TestRegistry_NotifyOwnerChangedResolvesWaitingAttempt(t *testing.T) {
	r := NewRegistry()
	a := New([]string{"k1"}, 1, 0, nil, nil)
	r.register(a)

	c := &Coordinator{Registry: r}
	r.NotifyOwnerChanged(c, a.LockVersion)

	if !a.IsDone() {
		t.Fatal("expected the optimistic short-circuit to resolve the waiting attempt")
	}
	if got := a.Wait(); got != nlock.Success {
		t.Fatalf("expected Success, got %v", got)
	}
}

func TestRegistry_NotifyOwnerChangedIgnoresOtherVersions(t *testing.T) {
	r := NewRegistry()
	a := New([]string{"k1"}, 1, 0, nil, nil)
	r.register(a)

	c := &Coordinator{Registry: r}
	r.NotifyOwnerChanged(c, nlock.NewLockVersion())

	if a.IsDone() {
		t.Fatal("expected an unrelated lock version to leave the attempt pending")
	}
}
