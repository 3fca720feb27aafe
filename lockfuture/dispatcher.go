package lockfuture

import (
	"context"

	"github.com/sharedcode/nlock"
)

// Dispatcher bounds the number of concurrent outbound LockRequest sends a
// Coordinator issues, adapted from the teacher's TaskRunner
// (errgroup+channel-limiter) so a compound future fanning out to many
// nodes at once cannot spawn unbounded goroutines.
type Dispatcher struct {
	runner *nlock.TaskRunner
}

// NewDispatcher builds a Dispatcher capped at maxInFlight concurrent sends.
func NewDispatcher(ctx context.Context, maxInFlight int) *Dispatcher {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &Dispatcher{runner: nlock.NewTaskRunner(ctx, maxInFlight)}
}

// Go schedules task on the dispatcher, blocking only if maxInFlight sends
// are already outstanding.
func (d *Dispatcher) Go(task func() error) {
	d.runner.Go(task)
}

// Wait blocks until every scheduled task has completed.
func (d *Dispatcher) Wait() error {
	return d.runner.Wait()
}

// Context returns the dispatcher's derived context, cancelled if any
// scheduled task returns a non-nil error.
func (d *Dispatcher) Context() context.Context {
	return d.runner.GetContext()
}
