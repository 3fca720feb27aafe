package lockfuture

import (
	"testing"

	"github.com/sharedcode/nlock"
	"github.com/sharedcode/nlock/filterlang"
)

func TestLockAttempt_CompleteIsAtMostOnce(t *testing.T) {
	a := New([]string{"k1"}, 1, 0, nil, nil)

	wins := 0
	for i := 0; i < 5; i++ {
		if a.complete(nlock.Success) {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning complete() call, got %d", wins)
	}
	if got := a.Wait(); got != nlock.Success {
		t.Fatalf("expected outcome Success, got %v", got)
	}
}

func TestLockAttempt_SetTopologyVersionPanicsOnSecondCall(t *testing.T) {
	a := New([]string{"k1"}, 1, 0, nil, nil)
	a.setTopologyVersion(3)
	if a.TopologyVersion() != 3 {
		t.Fatalf("expected topology version 3, got %d", a.TopologyVersion())
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic setting topology version a second time")
		}
	}()
	a.setTopologyVersion(4)
}

func TestLockAttempt_TrySetErrorIsWriteOnce(t *testing.T) {
	a := New([]string{"k1"}, 1, 0, nil, nil)
	first := &ErrLockUnavailable{Key: "k1"}
	second := &ErrLockUnavailable{Key: "k2"}

	if !a.trySetError(first) {
		t.Fatal("expected first trySetError call to win")
	}
	if a.trySetError(second) {
		t.Fatal("expected second trySetError call to lose")
	}
	if a.Err() != first {
		t.Fatalf("expected Err() to report the first error, got %v", a.Err())
	}
}

func TestLockAttempt_DefaultFilterAcceptsEverything(t *testing.T) {
	a := New([]string{"k1"}, 1, 0, nil, nil)
	if !a.Filter(map[string]any{"key": "k1"}) {
		t.Fatal("expected default filter (filterlang.Always) to accept")
	}
}

func TestLockAttempt_ReusesTxXIDVersion(t *testing.T) {
	tx := nlock.NewInMemoryTx()
	a := New([]string{"k1"}, 1, 0, filterlang.Always(), tx)
	if !a.LockVersion.Equal(tx.XIDVersion()) {
		t.Fatal("expected lock_version to be reused from the enclosing transaction's xid version")
	}
}
