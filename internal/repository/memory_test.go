package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/taskscheduler/pkg/scheduler"
)

func instance(task, id string) scheduler.TaskInstance {
	return scheduler.TaskInstance{TaskName: task, ID: id}
}

func TestCreateIfNotExistsIsIdempotent(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	t0 := time.Unix(0, 0)

	ok, err := repo.CreateIfNotExists(ctx, scheduler.Execution{TaskInstance: instance("X", "1"), ExecutionTime: t0})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CreateIfNotExists(ctx, scheduler.Execution{TaskInstance: instance("X", "1"), ExecutionTime: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, ok, "second create for the same task instance must fail")

	due, err := repo.GetDue(ctx, t0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.True(t, due[0].ExecutionTime.Equal(t0), "surviving row must keep the winner's execution time")
}

func TestGetDueOnlyReturnsFreeRowsAtOrBeforeNow(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	t0 := time.Unix(1000, 0)

	_, err := repo.CreateIfNotExists(ctx, scheduler.Execution{TaskInstance: instance("X", "1"), ExecutionTime: t0})
	require.NoError(t, err)
	_, err = repo.CreateIfNotExists(ctx, scheduler.Execution{TaskInstance: instance("X", "2"), ExecutionTime: t0.Add(time.Minute)})
	require.NoError(t, err)

	due, err := repo.GetDue(ctx, t0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, instance("X", "1"), due[0].TaskInstance)
}

func TestPickIsAtomicAndContended(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	t0 := time.Unix(0, 0)

	_, err := repo.CreateIfNotExists(ctx, scheduler.Execution{TaskInstance: instance("Y", "1"), ExecutionTime: t0})
	require.NoError(t, err)

	due, err := repo.GetDue(ctx, t0)
	require.NoError(t, err)
	require.Len(t, due, 1)

	picked, ok, err := repo.Pick(ctx, due[0], "scheduler-a", t0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "scheduler-a", picked.PickedBy)
	assert.True(t, picked.LastHeartbeat.Equal(t0))

	// A second scheduler racing on the same observed row loses.
	_, ok, err = repo.Pick(ctx, due[0], "scheduler-b", t0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRescheduleRequiresCurrentVersion(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	t0 := time.Unix(0, 0)

	_, err := repo.CreateIfNotExists(ctx, scheduler.Execution{TaskInstance: instance("Z", "1"), ExecutionTime: t0})
	require.NoError(t, err)
	due, _ := repo.GetDue(ctx, t0)
	picked, ok, err := repo.Pick(ctx, due[0], "scheduler-a", t0)
	require.NoError(t, err)
	require.True(t, ok)

	// Stale version (as observed before pick) must be rejected.
	err = repo.Reschedule(ctx, due[0], t0.Add(time.Hour), time.Time{}, time.Time{})
	assert.ErrorIs(t, err, scheduler.ErrVersionMismatch)

	// Current version succeeds and frees the row.
	err = repo.Reschedule(ctx, picked, t0.Add(time.Hour), t0, time.Time{})
	require.NoError(t, err)

	dueAfter, err := repo.GetDue(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, dueAfter, 1)
	assert.False(t, dueAfter[0].Picked)
}

func TestGetOldExecutionsFindsStaleHeartbeats(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	t0 := time.Unix(0, 0)

	_, err := repo.CreateIfNotExists(ctx, scheduler.Execution{TaskInstance: instance("Dead", "1"), ExecutionTime: t0})
	require.NoError(t, err)
	due, _ := repo.GetDue(ctx, t0)
	_, ok, err := repo.Pick(ctx, due[0], "scheduler-a", t0)
	require.NoError(t, err)
	require.True(t, ok)

	old, err := repo.GetOldExecutions(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, instance("Dead", "1"), old[0].TaskInstance)
}

func TestUpdateHeartbeatIsUnimplemented(t *testing.T) {
	repo := NewInMemoryRepository()
	err := repo.UpdateHeartbeat(context.Background(), scheduler.Execution{}, time.Now())
	assert.ErrorIs(t, err, scheduler.ErrNotImplemented)
}

func TestGetExecutionsFailingLongerThanIsAlwaysEmpty(t *testing.T) {
	repo := NewInMemoryRepository()
	out, err := repo.GetExecutionsFailingLongerThan(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Empty(t, out)
}
