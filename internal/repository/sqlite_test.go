package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/taskscheduler/pkg/scheduler"
)

func newTestSQLiteRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteCreateIfNotExistsIsIdempotent(t *testing.T) {
	repo := newTestSQLiteRepo(t)
	ctx := context.Background()
	t0 := time.Unix(1000, 0)

	ok, err := repo.CreateIfNotExists(ctx, scheduler.Execution{TaskInstance: instance("X", "1"), ExecutionTime: t0})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CreateIfNotExists(ctx, scheduler.Execution{TaskInstance: instance("X", "1"), ExecutionTime: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, ok)

	due, err := repo.GetDue(ctx, t0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, int64(1), due[0].Version)
}

func TestSQLitePickIsVersionGated(t *testing.T) {
	repo := newTestSQLiteRepo(t)
	ctx := context.Background()
	t0 := time.Unix(1000, 0)

	_, err := repo.CreateIfNotExists(ctx, scheduler.Execution{TaskInstance: instance("Y", "1"), ExecutionTime: t0})
	require.NoError(t, err)
	due, err := repo.GetDue(ctx, t0)
	require.NoError(t, err)
	require.Len(t, due, 1)

	picked, ok, err := repo.Pick(ctx, due[0], "scheduler-a", t0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "scheduler-a", picked.PickedBy)
	assert.Equal(t, int64(2), picked.Version)

	// Same observed row, now stale: loses the race.
	_, ok, err = repo.Pick(ctx, due[0], "scheduler-b", t0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteRescheduleRoundTrip(t *testing.T) {
	repo := newTestSQLiteRepo(t)
	ctx := context.Background()
	t0 := time.Unix(1000, 0)

	_, err := repo.CreateIfNotExists(ctx, scheduler.Execution{TaskInstance: instance("Z", "1"), ExecutionTime: t0})
	require.NoError(t, err)
	due, _ := repo.GetDue(ctx, t0)
	picked, ok, err := repo.Pick(ctx, due[0], "scheduler-a", t0)
	require.NoError(t, err)
	require.True(t, ok)

	next := t0.Add(time.Hour)
	require.NoError(t, repo.Reschedule(ctx, picked, next, t0, time.Time{}))

	dueAfter, err := repo.GetDue(ctx, next)
	require.NoError(t, err)
	require.Len(t, dueAfter, 1)
	assert.False(t, dueAfter[0].Picked)
	assert.True(t, dueAfter[0].ExecutionTime.Equal(next))
}

func TestSQLiteRemoveRequiresCurrentVersion(t *testing.T) {
	repo := newTestSQLiteRepo(t)
	ctx := context.Background()
	t0 := time.Unix(1000, 0)

	_, err := repo.CreateIfNotExists(ctx, scheduler.Execution{TaskInstance: instance("W", "1"), ExecutionTime: t0})
	require.NoError(t, err)
	due, _ := repo.GetDue(ctx, t0)

	err = repo.Remove(ctx, due[0])
	require.NoError(t, err)

	// Removing again with a stale version fails; row is gone anyway.
	err = repo.Remove(ctx, due[0])
	assert.ErrorIs(t, err, scheduler.ErrVersionMismatch)
}

func TestSQLiteGetOldExecutions(t *testing.T) {
	repo := newTestSQLiteRepo(t)
	ctx := context.Background()
	t0 := time.Unix(1000, 0)

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
