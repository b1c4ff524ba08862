package scheduler

import "sync/atomic"

// SchedulerState is the process-wide flag pair described in §3: single
// writer (the lifecycle), many readers (all loops and running task
// bodies). Plain atomics are enough — there's exactly one writer.
type SchedulerState struct {
	running      atomic.Bool
	shuttingDown atomic.Bool
}

func (s *SchedulerState) setRunning(v bool)      { s.running.Store(v) }
func (s *SchedulerState) Running() bool          { return s.running.Load() }
func (s *SchedulerState) setShuttingDown(v bool) { s.shuttingDown.Store(v) }
func (s *SchedulerState) ShuttingDown() bool      { return s.shuttingDown.Load() }
