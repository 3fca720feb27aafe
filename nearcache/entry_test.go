package nearcache

import (
	"testing"

	"github.com/sharedcode/nlock"
)

func TestEntry_AddNearLocal_FreshThenReentry(t *testing.T) {
	e := NewEntry("k1")
	lv := nlock.NewLockVersion()

	c1, reentry, err := e.AddNearLocal("n1", 1, lv, 1000, 1)
	if err != nil {
		t.Fatalf("AddNearLocal: %v", err)
	}
	if reentry {
		t.Fatal("first candidate for a thread must not be reported as reentry")
	}
	if !e.LockedLocallyBy(lv, 1) {
		t.Fatal("expected the sole candidate to be the owner")
	}

	c2, reentry2, err := e.AddNearLocal("n1", 1, nlock.NewLockVersion(), 1000, 1)
	if err != nil {
		t.Fatalf("AddNearLocal (reentry): %v", err)
	}
	if !reentry2 {
		t.Fatal("second call from same thread must be a reentry")
	}
	if c2 != c1 {
		t.Fatal("reentry must return the existing candidate")
	}
}

func TestEntry_AddNearLocal_AfterRemoved(t *testing.T) {
	e := NewEntry("k1")
	e.MarkRemoved()
	if _, _, err := e.AddNearLocal("n1", 1, nlock.NewLockVersion(), 1000, 1); err != ErrEntryRemoved {
		t.Fatalf("expected ErrEntryRemoved, got %v", err)
	}
}

func TestEntry_RemoveLock_IdempotentAfterFirst(t *testing.T) {
	e := NewEntry("k1")
	lv := nlock.NewLockVersion()
	e.AddNearLocal("n1", 1, lv, 1000, 1)

	e.RemoveLock(lv)
	if e.LockedLocallyBy(lv, 1) {
		t.Fatal("expected candidate to be gone after RemoveLock")
	}
	// Second call must be a no-op, not a panic or error.
	e.RemoveLock(lv)
}

func TestEntry_ResetFromPrimary_InstallsAuthoritativeValue(t *testing.T) {
	e := NewEntry("k1")
	lv := nlock.NewLockVersion()
	dhtVer := nlock.NewLockVersion()

	if err := e.ResetFromPrimary("v1", []byte("v1"), lv, dhtVer, "n1"); err != nil {
		t.Fatalf("ResetFromPrimary: %v", err)
	}
	got, val, _, ok := e.VersionedValue()
	if !ok {
		t.Fatal("expected a versioned value after ResetFromPrimary")
	}
	if !got.Equal(dhtVer) {
		t.Fatalf("expected dht version %v, got %v", dhtVer, got)
	}
	if val != "v1" {
		t.Fatalf("expected value v1, got %v", val)
	}
}

func TestEntry_Recheck_DropsRolledBackOwner(t *testing.T) {
	e := NewEntry("k1")
	lv := nlock.NewLockVersion()
	e.AddNearLocal("n1", 1, lv, 1000, 1)
	e.DoneRemote(lv, lv, nil, nil, []nlock.LockVersion{lv})

	e.Recheck()
	if e.LockedLocallyBy(lv, 1) {
		t.Fatal("expected rolled-back owner candidate to be dropped by Recheck")
	}
}
