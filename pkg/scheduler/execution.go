package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// TaskInstance identifies a scheduled occurrence of a task: the pair
// (task_name, instance_id) is globally unique while scheduled.
type TaskInstance struct {
	TaskName string
	ID       string
}

func (t TaskInstance) String() string {
	return t.TaskName + "/" + t.ID
}

// NewTaskInstance returns a TaskInstance for taskName with a
// uuid-generated instance ID, for callers that don't need to supply
// their own instance identity (e.g. a task scheduling a one-off
// follow-up run of itself).
func NewTaskInstance(taskName string) TaskInstance {
	return TaskInstance{TaskName: taskName, ID: uuid.NewString()}
}

// Execution is the central entity of the store: a task instance, its
// next run time, and its claim/heartbeat state. At most one row exists
// per TaskInstance at any time (see §3 of the design).
type Execution struct {
	TaskInstance  TaskInstance
	ExecutionTime time.Time

	Picked        bool
	PickedBy      string
	LastHeartbeat time.Time

	LastSuccess time.Time
	LastFailure time.Time

	// Version is bumped on every mutating store operation and checked
	// on every subsequent one; it is the sole concurrency-control
	// mechanism between competing schedulers (see repository.go).
	Version int64
}

// IsFree reports whether the row is unclaimed.
func (e Execution) IsFree() bool { return !e.Picked }

// CurrentlyExecuting is the per-scheduler, in-process record of a
// running execution, held for the duration a worker is processing it.
// Created at successful claim, removed when the worker releases its
// slot. Read by the heartbeat loop and by shutdown diagnostics.
type CurrentlyExecuting struct {
	Execution Execution
	StartedAt time.Time
}

// ExecutionComplete is passed to a task's CompletionHandler once the
// task body has returned or failed.
type ExecutionComplete struct {
	Execution Execution
	Result    ExecutionResult
	Time      time.Time
}

// ExecutionResult is the terminal outcome of a task body.
type ExecutionResult int

const (
	ExecutionResultOK ExecutionResult = iota
	ExecutionResultFailed
)

func (r ExecutionResult) String() string {
	if r == ExecutionResultOK {
		return "OK"
	}
	return "FAILED"
}
