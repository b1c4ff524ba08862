package scheduler

import (
	"fmt"
	"log/slog"
)

// UnresolvedPolicy controls what the registry does when a durable row
// references a task name nobody registered.
type UnresolvedPolicy int

const (
	// WarnAndSkip leaves the row in place, logs a warning, and excludes
	// it from due/dead scans. This is the default.
	WarnAndSkip UnresolvedPolicy = iota
	// FailOnUnresolved treats an unknown task name as a hard error.
	FailOnUnresolved
)

// ErrUnknownTask is returned by Resolve itself when FailOnUnresolved is
// configured and a row's task name isn't registered; the due-polling
// and dead-detection loops treat it as an unexpected error (logged,
// counted) rather than a silent skip.
type ErrUnknownTask struct {
	TaskName string
}

func (e *ErrUnknownTask) Error() string {
	return fmt.Sprintf("scheduler: unknown task %q", e.TaskName)
}

// Registry maps a task name to its Task. Immutable after construction,
// as required by §4.2 — tasks are registered once, at scheduler build
// time, never added or removed at runtime.
type Registry struct {
	policy UnresolvedPolicy
	tasks  map[string]Task
	log    *slog.Logger
}

// NewRegistry builds an immutable Registry from tasks, keyed by
// Task.Name(). Duplicate names are rejected at Builder validation time,
// not here, to keep Registry construction infallible.
func NewRegistry(policy UnresolvedPolicy, log *slog.Logger, tasks ...Task) *Registry {
	if log == nil {
		log = slog.Default()
	}
	m := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		m[t.Name()] = t
	}
	return &Registry{policy: policy, tasks: m, log: log}
}

// Resolve looks up a task by name. When found, it returns (task, nil).
// When the name is unregistered, behavior depends on the registry's
// UnresolvedPolicy:
//
//   - WarnAndSkip (default): returns (nil, nil) after logging a
//     warning. The caller's contract is to silently skip the row — this
//     is not an error.
//   - FailOnUnresolved: returns (nil, &ErrUnknownTask{TaskName: name})
//     without logging itself; the caller is expected to log it and
//     count it as an unexpected error (§6), surfacing the condition
//     rather than skipping it.
func (r *Registry) Resolve(name string) (Task, error) {
	if t, ok := r.tasks[name]; ok {
		return t, nil
	}
	if r.policy == FailOnUnresolved {
		return nil, &ErrUnknownTask{TaskName: name}
	}
	r.log.Warn("skipping row for unresolved task name", slog.String("task", name))
	return nil, nil
}

// Policy reports the registry's unresolved-task policy.
func (r *Registry) Policy() UnresolvedPolicy { return r.policy }
