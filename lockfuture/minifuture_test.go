package lockfuture

import (
	"errors"
	"testing"

	"github.com/sharedcode/nlock"
	"github.com/sharedcode/nlock/dht"
	"github.com/sharedcode/nlock/nearcache"
	"github.com/sharedcode/nlock/transport"
)

func newTestMiniFuture(t *testing.T, keys []string) (*MiniFuture, *LockAttempt, *Coordinator) {
	t.Helper()
	a := New(keys, 1, 0, nil, nil)
	near := nearcache.NewStore(4, 16, nil)
	c := &Coordinator{
		LocalNode: "n1",
		Near:      near,
		Tier:      dht.NewLocalTier(),
		Applier:   NewResponseApplier(near),
	}
	a.coord = c
	mf := newMiniFuture(a, c.Applier, "n1", keys)
	a.addMiniFuture(mf)
	return mf, a, c
}

func TestMiniFuture_OnResponseIsAtMostOnce(t *testing.T) {
	mf, a, _ := newTestMiniFuture(t, []string{"k1"})
	v := nlock.NewLockVersion()
	resp := &transport.LockResponse{
		Keys: []transport.KeyResult{{Value: "v1", DhtVersion: &v}},
	}

	mf.OnResponse(resp)
	if a.Err() != nil {
		t.Fatalf("unexpected error after first response: %v", a.Err())
	}

	// A second terminal event must be a no-op: feeding an error here must
	// not retroactively fail an attempt whose mini-future already resolved.
	mf.OnError(errors.New("late duplicate"))
	if a.Err() != nil {
		t.Fatalf("expected second terminal event on a resolved mini-future to be ignored, got err=%v", a.Err())
	}
}

func TestMiniFuture_OnErrorFailsTheAttempt(t *testing.T) {
	mf, a, _ := newTestMiniFuture(t, []string{"k1"})
	mf.OnError(errors.New("boom"))
	if a.Err() == nil {
		t.Fatal("expected OnError to set the attempt's error")
	}
	if !a.IsDone() {
		t.Fatal("expected the attempt to be completed after a failing mini-future")
	}
}

func TestMiniFuture_OnResponseWithErrFailsTheAttempt(t *testing.T) {
	mf, a, _ := newTestMiniFuture(t, []string{"k1"})
	mf.OnResponse(&transport.LockResponse{Err: errors.New("primary rejected")})
	if a.Err() == nil {
		t.Fatal("expected a response carrying Err to fail the attempt")
	}
}

func TestMiniFuture_MissingDhtVersionFailsTheAttempt(t *testing.T) {
	mf, a, _ := newTestMiniFuture(t, []string{"k1"})
	mf.OnResponse(&transport.LockResponse{Keys: []transport.KeyResult{{Value: "v1"}}})
	var missing *ErrMissingDhtVersion
	if !errors.As(a.Err(), &missing) {
		t.Fatalf("expected *ErrMissingDhtVersion, got %v", a.Err())
	}
}
