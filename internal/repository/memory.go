// Package repository provides the two Execution Repository
// implementations required by the scheduler core: a durable,
// sqlite-backed store and a non-durable in-memory one for tests.
package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ChuLiYu/taskscheduler/pkg/scheduler"
)

// InMemoryRepository is C10: a non-durable Repository for tests and
// single-node use. Semantics are grounded directly on the original
// library's InMemoryTaskRespository test double — in particular,
// UpdateHeartbeat is intentionally unimplemented and
// GetExecutionsFailingLongerThan always returns empty, matching that
// double rather than a faithful production store.
//
// The mutex+map shape is the teacher's own idiom for shared in-process
// state (internal/jobmanager.JobManager).
type InMemoryRepository struct {
	mu   sync.RWMutex
	rows map[scheduler.TaskInstance]scheduler.Execution
}

// NewInMemoryRepository returns an empty InMemoryRepository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{rows: make(map[scheduler.TaskInstance]scheduler.Execution)}
}

func (r *InMemoryRepository) CreateIfNotExists(ctx context.Context, exec scheduler.Execution) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rows[exec.TaskInstance]; exists {
		return false, nil
	}
	exec.Version = 1
	r.rows[exec.TaskInstance] = exec
	return true, nil
}

func (r *InMemoryRepository) GetDue(ctx context.Context, now time.Time) ([]scheduler.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []scheduler.Execution
	for _, row := range r.rows {
		if row.IsFree() && !row.ExecutionTime.After(now) {
			due = append(due, row)
		}
	}
	sortByExecutionTime(due)
	return due, nil
}

func (r *InMemoryRepository) Pick(ctx context.Context, exec scheduler.Execution, schedulerName string, timePicked time.Time) (scheduler.Execution, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, exists := r.rows[exec.TaskInstance]
	if !exists || row.Picked || row.Version != exec.Version {
		return scheduler.Execution{}, false, nil
	}

	row.Picked = true
	row.PickedBy = schedulerName
	row.LastHeartbeat = timePicked
	row.Version++
	r.rows[exec.TaskInstance] = row
	return row, true, nil
}

// UpdateHeartbeat is unimplemented: this store is for tests, which
// don't run long enough to need heartbeat refresh to matter, exactly
// as the original test double throws UnsupportedOperationException.
func (r *InMemoryRepository) UpdateHeartbeat(ctx context.Context, exec scheduler.Execution, t time.Time) error {
	return scheduler.ErrNotImplemented
}

func (r *InMemoryRepository) Reschedule(ctx context.Context, exec scheduler.Execution, nextExecutionTime time.Time, lastSuccess, lastFailure time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, exists := r.rows[exec.TaskInstance]
	if !exists || row.Version != exec.Version {
		return scheduler.ErrVersionMismatch
	}

	row.Picked = false
	row.PickedBy = ""
	row.LastHeartbeat = time.Time{}
	row.ExecutionTime = nextExecutionTime
	row.LastSuccess = lastSuccess
	row.LastFailure = lastFailure
	row.Version++
	r.rows[exec.TaskInstance] = row
	return nil
}

func (r *InMemoryRepository) Remove(ctx context.Context, exec scheduler.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, exists := r.rows[exec.TaskInstance]
	if !exists || row.Version != exec.Version {
		return scheduler.ErrVersionMismatch
	}
	delete(r.rows, exec.TaskInstance)
	return nil
}

func (r *InMemoryRepository) GetOldExecutions(ctx context.Context, olderThan time.Time) ([]scheduler.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var old []scheduler.Execution
	for _, row := range r.rows {
		if row.Picked && !row.LastHeartbeat.After(olderThan) {
			old = append(old, row)
		}
	}
	sortByExecutionTime(old)
	return old, nil
}

// GetExecutionsFailingLongerThan always returns empty: this store
// doesn't track failure history, matching the original test double
// (see DESIGN.md's Open Question decision on this point).
func (r *InMemoryRepository) GetExecutionsFailingLongerThan(ctx context.Context, duration time.Duration) ([]scheduler.Execution, error) {
	return []scheduler.Execution{}, nil
}

func sortByExecutionTime(execs []scheduler.Execution) {
	sort.Slice(execs, func(i, j int) bool {
		if execs[i].ExecutionTime.Equal(execs[j].ExecutionTime) {
			return execs[i].TaskInstance.String() < execs[j].TaskInstance.String()
		}
		return execs[i].ExecutionTime.Before(execs[j].ExecutionTime)
	})
}
