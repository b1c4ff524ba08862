package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pickFailingRepo wraps fakeRepo's zero-value behavior but returns due
// rows in a fixed order and fails Pick for a chosen TaskInstance with a
// genuine store error (not a contended claim).
type pickFailingRepo struct {
	fakeRepo
	due      []Execution
	failFor  TaskInstance
	pickErr  error
	pickCall []TaskInstance
}

func (r *pickFailingRepo) GetDue(ctx context.Context, now time.Time) ([]Execution, error) {
	return r.due, nil
}

func (r *pickFailingRepo) Pick(ctx context.Context, exec Execution, schedulerName string, timePicked time.Time) (Execution, bool, error) {
	r.pickCall = append(r.pickCall, exec.TaskInstance)
	if exec.TaskInstance == r.failFor {
		return Execution{}, false, r.pickErr
	}
	exec.Picked = true
	exec.PickedBy = schedulerName
	exec.LastHeartbeat = timePicked
	exec.Version++
	return exec, true, nil
}

func TestDueTickAbortsScanOnTransientPickError(t *testing.T) {
	instanceA := TaskInstance{TaskName: "a", ID: "1"}
	instanceB := TaskInstance{TaskName: "a", ID: "2"}

	repo := &pickFailingRepo{
		due: []Execution{
			{TaskInstance: instanceA, ExecutionTime: time.Unix(0, 0)},
			{TaskInstance: instanceB, ExecutionTime: time.Unix(1, 0)},
		},
		failFor: instanceA,
		pickErr: errors.New("store unavailable"),
	}

	s, err := NewBuilder(repo, noopTask{name: "a"}).
		ExecutorThreads(4).
		Build()
	require.NoError(t, err)

	s.dueTick(context.Background())

	assert.Equal(t, []TaskInstance{instanceA}, repo.pickCall,
		"a transient Pick error must abort the rest of the tick's scan, not continue to the next due row")
}
