package scheduler

import (
	"context"
	"time"
)

// ExecutionContext is handed to a running task body. It carries the
// scheduler's name and a read-only view of its lifecycle state, so
// long-running task code can cooperatively check for shutdown; the
// scheduler never force-terminates user code.
type ExecutionContext struct {
	SchedulerName string
	state         *SchedulerState
}

// ShuttingDown reports whether the owning scheduler has begun shutdown.
// Tasks that run for a while should poll this periodically.
func (c ExecutionContext) ShuttingDown() bool {
	return c.state.ShuttingDown()
}

// ExecutionOperations is the handle a CompletionHandler or
// DeadExecutionHandler uses to act on the one execution it was invoked
// for — and only that one. Reschedule and Remove are no-ops (returning
// ErrVersionMismatch) if the claim has since moved to someone else.
type ExecutionOperations interface {
	Reschedule(ctx context.Context, nextExecutionTime time.Time) error
	Remove(ctx context.Context) error
}

// CompletionHandler decides what happens to a row once its task body has
// returned. Called with the terminal outcome and a handle scoped to
// that execution. If the handler itself returns an error, the row is
// deliberately left claimed: dead detection will pick it up later. This
// is the intentional recovery path and must never be second-guessed by
// retrying the handler inline.
type CompletionHandler func(ctx context.Context, complete ExecutionComplete, ops ExecutionOperations) error

// DeadExecutionHandler decides how to recover a claimed row whose
// heartbeat has gone stale past the dead threshold. Typical policies:
// reschedule with backoff, or mark failed and remove.
type DeadExecutionHandler func(ctx context.Context, exec Execution, ops ExecutionOperations) error

// Task is the contract a caller registers with the scheduler.
type Task interface {
	Name() string
	Execute(ctx context.Context, instance TaskInstance, execCtx ExecutionContext) error
	CompletionHandler() CompletionHandler
	DeadExecutionHandler() DeadExecutionHandler
}

// OnStartup is an optional interface a Task may additionally implement
// to run startup-seeding logic (typically scheduling its own first
// instance) before the loops start. Registered separately from the
// task set via Builder.StartTasks.
type OnStartup interface {
	Task
	Startup(ctx context.Context, client SchedulerClient) error
}

// SchedulerClient is the narrow interface exposed to startup hooks and
// to task bodies that need to schedule follow-up work, rather than the
// full Scheduler surface (lifecycle, introspection).
type SchedulerClient interface {
	Schedule(ctx context.Context, instance TaskInstance, executionTime time.Time) (bool, error)
}
