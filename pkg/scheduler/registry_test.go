package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopTask struct{ name string }

func (t noopTask) Name() string { return t.name }
func (t noopTask) Execute(ctx context.Context, instance TaskInstance, execCtx ExecutionContext) error {
	return nil
}
func (t noopTask) CompletionHandler() CompletionHandler       { return OnCompleteRemove }
func (t noopTask) DeadExecutionHandler() DeadExecutionHandler { return CancelDeadExecution }

func TestRegistryResolveKnownTask(t *testing.T) {
	r := NewRegistry(WarnAndSkip, nil, noopTask{name: "known"})

	task, err := r.Resolve("known")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "known", task.Name())
}

func TestRegistryResolveUnknownTaskUnderWarnAndSkip(t *testing.T) {
	r := NewRegistry(WarnAndSkip, nil, noopTask{name: "known"})

	task, err := r.Resolve("mystery")
	assert.NoError(t, err)
	assert.Nil(t, task)
	assert.Equal(t, WarnAndSkip, r.Policy())
}

func TestRegistryResolveUnknownTaskUnderFailOnUnresolved(t *testing.T) {
	r := NewRegistry(FailOnUnresolved, nil, noopTask{name: "known"})

	task, err := r.Resolve("mystery")
	assert.Nil(t, task)
	require.Error(t, err)

	var unknownErr *ErrUnknownTask
	require.True(t, errors.As(err, &unknownErr))
	assert.Equal(t, "mystery", unknownErr.TaskName)
	assert.Equal(t, FailOnUnresolved, r.Policy())
}

func TestErrUnknownTaskMessage(t *testing.T) {
	err := &ErrUnknownTask{TaskName: "ghost"}
	assert.Contains(t, err.Error(), "ghost")
}
