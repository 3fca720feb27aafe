package lockfuture

import (
	"testing"
	"time"

	"github.com/sharedcode/nlock"
)

func TestTimeoutWheel_FiresAndCompletesAttempt(t *testing.T) {
	a := New([]string{"k1"}, 1, 5, nil, nil)
	c := &Coordinator{Registry: NewRegistry(), Timeouts: NewTimeoutWheel()}
	c.Registry.register(a)

	b := newTimeoutBinding(a, c)
	c.Timeouts.Add(b)
	if c.Timeouts.Len() != 1 {
		t.Fatalf("expected 1 scheduled binding, got %d", c.Timeouts.Len())
	}

	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the timeout binding to fire")
	}

	if !a.TimedOut() {
		t.Fatal("expected TimedOut() to be true")
	}
	if got := a.Wait(); got != nlock.TimedOut {
		t.Fatalf("expected outcome TimedOut, got %v", got)
	}
	if c.Timeouts.Len() != 0 {
		t.Fatalf("expected the wheel to deregister the fired binding, got %d remaining", c.Timeouts.Len())
	}
}

func TestTimeoutWheel_RemoveCancelsPendingBinding(t *testing.T) {
	a := New([]string{"k1"}, 1, 200, nil, nil)
	c := &Coordinator{Registry: NewRegistry(), Timeouts: NewTimeoutWheel()}
	c.Registry.register(a)

	b := newTimeoutBinding(a, c)
	c.Timeouts.Add(b)
	c.Timeouts.Remove(b.id)

	time.Sleep(300 * time.Millisecond)
	if a.IsDone() {
		t.Fatal("expected a removed binding to never fire")
	}
	if c.Timeouts.Len() != 0 {
		t.Fatalf("expected 0 bindings after Remove, got %d", c.Timeouts.Len())
	}
}

func TestTimeoutWheel_RemoveIsIdempotent(t *testing.T) {
	w := NewTimeoutWheel()
	id := nlock.NewUUID()
	w.Remove(id)
	w.Remove(id)
}

func TestNewTimeoutBinding_SaturatesOnOverflow(t *testing.T) {
	a := New([]string{"k1"}, 1, int64(1)<<62, nil, nil)
	c := &Coordinator{}
	b := newTimeoutBinding(a, c)
	if !b.endTime.After(time.Now().Add(24 * time.Hour)) {
		t.Fatal("expected an overflowing timeout to saturate to a very distant end time")
	}
}
