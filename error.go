package nlock

import "fmt"

// ErrorCode enumerates the lock coordinator's error categories (§7).
// LockTimeout is deliberately not a member of this set: it is a sentinel
// LockOutcome, swallowed before it ever reaches the write-once error field.
type ErrorCode int

const (
	// Unknown represents an unspecified error condition.
	Unknown ErrorCode = iota
	// LockAcquisitionFailure indicates a generic failure to acquire a required lock.
	LockAcquisitionFailure
	// RemapToSameNode indicates a key was about to be re-mapped to a node that
	// already held it during this attempt (§4.1 re-map guard, P6).
	RemapToSameNode
	// FilterRejected indicates the caller-supplied filter predicate rejected an
	// enlisted entry (§4.2 step 2).
	FilterRejected
	// EntryRemoved names the case of a near-cache entry evicted mid-enlist; the
	// enlister retries on nearcache.ErrEntryRemoved, and no Error with this code is raised.
	EntryRemoved
	// MissingDhtVersion indicates a peer response omitted the DHT version for a key,
	// a broken peer invariant (§4.6 step 2).
	MissingDhtVersion
	// TransportFailure wraps an error surfaced by the I/O transport when delivering
	// or receiving a LockRequest/LockResponse.
	TransportFailure
	// Cancelled indicates the caller explicitly cancelled the attempt.
	Cancelled
)

// Error is the coordinator's error type, carrying a code, the wrapped error, and
// optional user data (typically the offending key or node).
type Error struct {
	Code     ErrorCode
	Err      error
	UserData any
}

// Error implements the error interface.
func (e Error) Error() string {
	return fmt.Errorf("error code: %d, user data: %v, details: %w", e.Code, e.UserData, e.Err).Error()
}

// Unwrap allows errors.Is/As to see through to the wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}
