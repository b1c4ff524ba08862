package scheduler

import (
	"context"
	"time"
)

// OnCompleteRemove is a CompletionHandler for one-shot tasks: whatever
// the outcome, the row is deleted.
func OnCompleteRemove(ctx context.Context, complete ExecutionComplete, ops ExecutionOperations) error {
	return ops.Remove(ctx)
}

// OnCompleteReschedule returns a CompletionHandler for recurring tasks:
// the row is always rescheduled next+interval from now, regardless of
// outcome.
func OnCompleteReschedule(interval time.Duration) CompletionHandler {
	return func(ctx context.Context, complete ExecutionComplete, ops ExecutionOperations) error {
		return ops.Reschedule(ctx, complete.Time.Add(interval))
	}
}

// ReviveDeadExecution returns a DeadExecutionHandler that reschedules a
// dead row to run again after delay — the default recovery policy for
// recurring tasks, matching scenario 4 of the testable properties
// (reschedule to now+1m after dead detection).
//
// DeadExecutionHandler's contract (§4.7) carries no Clock, so this
// default reads the wall clock directly rather than the scheduler's
// injected one — the same documented exception as
// GetExecutionsFailingLongerThan. Tests that need deterministic
// recovery timestamps under a FakeClock supply their own handler
// instead of this default, as the integration tests do.
func ReviveDeadExecution(delay time.Duration) DeadExecutionHandler {
	return func(ctx context.Context, exec Execution, ops ExecutionOperations) error {
		return ops.Reschedule(ctx, time.Now().Add(delay))
	}
}

// CancelDeadExecution is a DeadExecutionHandler for one-shot tasks: a
// dead row is simply dropped rather than retried.
func CancelDeadExecution(ctx context.Context, exec Execution, ops ExecutionOperations) error {
	return ops.Remove(ctx)
}

// simpleTask adapts a plain execute function into a Task, for callers
// that don't need a dedicated type per task.
type simpleTask struct {
	name       string
	execute    func(ctx context.Context, instance TaskInstance, execCtx ExecutionContext) error
	onComplete CompletionHandler
	onDead     DeadExecutionHandler
}

func (t *simpleTask) Name() string                             { return t.name }
func (t *simpleTask) CompletionHandler() CompletionHandler      { return t.onComplete }
func (t *simpleTask) DeadExecutionHandler() DeadExecutionHandler { return t.onDead }
func (t *simpleTask) Execute(ctx context.Context, instance TaskInstance, execCtx ExecutionContext) error {
	return t.execute(ctx, instance, execCtx)
}

// NewOneTimeTask builds a Task that removes its row on completion and
// drops it (without retry) if it goes dead.
func NewOneTimeTask(name string, execute func(ctx context.Context, instance TaskInstance, execCtx ExecutionContext) error) Task {
	return &simpleTask{
		name:       name,
		execute:    execute,
		onComplete: OnCompleteRemove,
		onDead:     CancelDeadExecution,
	}
}

// NewRecurringTask builds a Task that reschedules itself interval after
// every completion, and is rescheduled one minute out if it goes dead.
func NewRecurringTask(name string, interval time.Duration, execute func(ctx context.Context, instance TaskInstance, execCtx ExecutionContext) error) Task {
	return &simpleTask{
		name:       name,
		execute:    execute,
		onComplete: OnCompleteReschedule(interval),
		onDead:     ReviveDeadExecution(time.Minute),
	}
}
