package scheduler

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by Repository implementations. Callers
// distinguish "no effect, not an error" (a nil, false, or empty return)
// from these genuine failure conditions.
var (
	// ErrNotImplemented is returned by UpdateHeartbeat on repositories
	// that don't track heartbeats durably (the in-memory repository).
	ErrNotImplemented = errors.New("scheduler: operation not implemented by this repository")

	// ErrVersionMismatch is returned by Reschedule and Remove when the
	// calling scheduler no longer owns the claim — the row was picked,
	// released, or re-picked by someone else since it was observed.
	ErrVersionMismatch = errors.New("scheduler: execution version mismatch, claim no longer held")
)

// Repository is the Execution Repository contract (C4). Every mutating
// operation is a single atomic store operation gated by Execution.Version;
// there is no multi-row transactional API. Two implementations must
// coexist: a durable one and a non-durable in-memory one for tests (C10).
type Repository interface {
	// CreateIfNotExists inserts exec iff no row exists for its
	// TaskInstance. Returns true iff this call performed the insert.
	// Must be safe under concurrent calls from multiple schedulers for
	// the same TaskInstance: exactly one caller observes true.
	CreateIfNotExists(ctx context.Context, exec Execution) (bool, error)

	// GetDue returns all free rows with ExecutionTime <= now, ordered
	// ascending by ExecutionTime, ties broken by TaskInstance string
	// order.
	GetDue(ctx context.Context, now time.Time) ([]Execution, error)

	// Pick atomically transitions exec from free to claimed by
	// schedulerName iff the row still exists, is still free, and its
	// version still matches exec.Version. On success it returns the
	// updated row with Picked=true, PickedBy=schedulerName,
	// LastHeartbeat=timePicked, Version+1. On failure (lost the race,
	// or the row is gone) it returns ok=false with no error.
	Pick(ctx context.Context, exec Execution, schedulerName string, timePicked time.Time) (picked Execution, ok bool, err error)

	// UpdateHeartbeat sets LastHeartbeat=t iff the row is still claimed
	// at exec.Version (the claim this scheduler took). A version mismatch is a silent
	// no-op, not an error: the execution simply isn't ours anymore.
	// Implementations that don't track heartbeats durably return
	// ErrNotImplemented.
	UpdateHeartbeat(ctx context.Context, exec Execution, t time.Time) error

	// Reschedule atomically returns the row to free with a new
	// ExecutionTime and outcome timestamps, iff the row's version still
	// equals exec.Version. Returns ErrVersionMismatch
	// otherwise — a recurring task must never double-schedule.
	Reschedule(ctx context.Context, exec Execution, nextExecutionTime time.Time, lastSuccess, lastFailure time.Time) error

	// Remove deletes the row iff the row's version still equals
	// exec.Version. Returns ErrVersionMismatch otherwise.
	Remove(ctx context.Context, exec Execution) error

	// GetOldExecutions returns all claimed rows, any owner, whose
	// LastHeartbeat <= olderThan, ordered ascending by ExecutionTime.
	GetOldExecutions(ctx context.Context, olderThan time.Time) ([]Execution, error)

	// GetExecutionsFailingLongerThan returns rows whose LastFailure is
	// older than now-duration with no newer LastSuccess. May be empty
	// on non-durable stores.
	GetExecutionsFailingLongerThan(ctx context.Context, duration time.Duration) ([]Execution, error)
}
