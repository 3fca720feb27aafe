package nlock

import "fmt"

// LockVersion is a globally unique, monotonically ordered identifier for one
// lock attempt (§3 Data model). order increases across the process lifetime
// so versions can be compared cheaply without touching the uuid half; id
// disambiguates versions minted concurrently with the same order and gives
// the version a cluster-wide unique identity for wire messages.
type LockVersion struct {
	Order uint64
	ID    UUID
}

var lockVersionOrder = newMonotonicCounter()

// NewLockVersion allocates a fresh LockVersion. Used whenever an attempt is
// not reusing an enclosing transaction's xid version (§3).
func NewLockVersion() LockVersion {
	return LockVersion{
		Order: lockVersionOrder.next(),
		ID:    NewUUID(),
	}
}

// IsNil reports whether v is the zero LockVersion.
func (v LockVersion) IsNil() bool {
	return v.Order == 0 && v.ID.IsNil()
}

// Equal compares two LockVersions for equality on both fields (§3 I1: at
// most one candidate per (key, lock_version) relies on this identity).
func (v LockVersion) Equal(o LockVersion) bool {
	return v.Order == o.Order && v.ID.Compare(o.ID) == 0
}

// Compare orders LockVersions by Order first, then by ID, giving a total
// order usable for the anti-ping-pong "previously held it" comparisons (P6).
func (v LockVersion) Compare(o LockVersion) int {
	if v.Order != o.Order {
		if v.Order < o.Order {
			return -1
		}
		return 1
	}
	return v.ID.Compare(o.ID)
}

// String renders the version for logging and wire debugging.
func (v LockVersion) String() string {
	return fmt.Sprintf("%d/%s", v.Order, v.ID.String())
}

// monotonicCounter is a small counter kept in a one-slot buffered channel,
// which serializes increments; it is used instead of a wall-clock
// timestamp so LockVersion.Order is strictly increasing even under clock
// skew or rapid allocation within the same millisecond.
type monotonicCounter struct {
	ch chan uint64
}

func newMonotonicCounter() *monotonicCounter {
	c := &monotonicCounter{ch: make(chan uint64, 1)}
	c.ch <- 1
	return c
}

func (c *monotonicCounter) next() uint64 {
	v := <-c.ch
	c.ch <- v + 1
	return v
}
