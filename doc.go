// Package nlock defines the core interfaces, identifiers, and ambient helpers shared
// across the lock acquisition coordinator: UUIDs, the write-once Error type, cache
// factory registration, logging setup, retry/backoff, and the external TxHandle
// contract. The coordinator itself lives in the lockfuture package; nearcache, dht,
// affinity, and transport define the collaborators it talks to (see SPEC_FULL.md §6).
//
// This package is foundational — other packages build on it rather than the reverse.
package nlock

// Timeout model
//
// A lock attempt is bounded by two timers:
//  1. The caller-provided context deadline/cancellation, which propagates across
//     the enlistment and transport calls the attempt makes.
//  2. The attempt's own timeout_ms (§4.5), registered once at construction time and
//     converted into a deadline against the timeout wheel.
//
// The timeout wheel deadline is what ultimately flips timed_out and drives the
// compound future to failure; a canceled context only aborts the specific call in
// flight (an enlistment retry, a transport send) and is reported through the normal
// error path, not through the timed_out flag.
