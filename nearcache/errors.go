package nearcache

import "errors"

// ErrEntryRemoved is returned when an operation targets an entry that has
// been concurrently evicted from the near cache. Callers retry after
// re-fetching via Store.Entry (§4.2 step 4).
var ErrEntryRemoved = errors.New("nearcache: entry removed")
