package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChuLiYu/taskscheduler/internal/workerpool"
)

// errNoAvailableExecutors is an internal signal, not a reported error:
// it breaks the due-scan for the current tick once no worker slot is
// available, exactly as the original library's aquireExecutorAndPickExecution
// throws NoAvailableExecutors to short-circuit the scan.
var errNoAvailableExecutors = errors.New("scheduler: no available executors")

const (
	defaultExecutorThreads   = 10
	defaultPollingInterval   = 10 * time.Second
	defaultHeartbeatInterval = 5 * time.Minute
	deadDetectionMultiplier  = 2
	deadThresholdMultiplier  = 4
	loopShutdownGrace        = 5 * time.Second
	poolShutdownGrace        = 30 * time.Minute
)

// Scheduler is the lifecycle component (C9): it owns the three
// background loops and the worker pool, and is the process's single
// point of contact with the Execution Repository.
type Scheduler struct {
	repo     Repository
	registry *Registry
	clock    Clock
	pool     *workerpool.Pool
	stats    StatsRegistry
	log      *slog.Logger

	schedulerName     string
	pollingInterval   time.Duration
	heartbeatInterval time.Duration
	startTasks        []Task

	pollWaiter      *Waiter
	deadWaiter      *Waiter
	heartbeatWaiter *Waiter

	state *SchedulerState

	executingMu sync.Mutex
	executing   map[string]CurrentlyExecuting

	loopsWG sync.WaitGroup
}

// Builder assembles a Scheduler, mirroring the original library's
// Scheduler.Builder: a handful of named knobs over sensible defaults.
type Builder struct {
	repo              Repository
	tasks             []Task
	startTaskNames    []string
	startTaskSeen     map[string]bool
	unresolvedPolicy  UnresolvedPolicy
	schedulerName     string
	executorThreads   int
	pollingInterval   time.Duration
	heartbeatInterval time.Duration
	clock             Clock
	stats             StatsRegistry
	log               *slog.Logger
}

// NewBuilder returns a Builder over repo with every other option at
// its documented default (see the Configuration surface table).
func NewBuilder(repo Repository, tasks ...Task) *Builder {
	return &Builder{
		repo:              repo,
		tasks:             tasks,
		startTaskSeen:     make(map[string]bool),
		unresolvedPolicy:  WarnAndSkip,
		executorThreads:   defaultExecutorThreads,
		pollingInterval:   defaultPollingInterval,
		heartbeatInterval: defaultHeartbeatInterval,
		clock:             SystemClock{},
		stats:             NoOpStatsRegistry{},
		log:               slog.Default(),
	}
}

func (b *Builder) SchedulerName(name string) *Builder       { b.schedulerName = name; return b }
func (b *Builder) ExecutorThreads(n int) *Builder           { b.executorThreads = n; return b }
func (b *Builder) PollingInterval(d time.Duration) *Builder { b.pollingInterval = d; return b }
func (b *Builder) HeartbeatInterval(d time.Duration) *Builder {
	b.heartbeatInterval = d
	return b
}
func (b *Builder) Clock(c Clock) *Builder               { b.clock = c; return b }
func (b *Builder) StatsRegistry(s StatsRegistry) *Builder { b.stats = s; return b }
func (b *Builder) Logger(l *slog.Logger) *Builder        { b.log = l; return b }
func (b *Builder) UnresolvedTaskPolicy(p UnresolvedPolicy) *Builder {
	b.unresolvedPolicy = p
	return b
}

// StartTasks marks the named tasks (which must also be in the task set
// passed to NewBuilder) to be run via OnStartup when the scheduler
// starts, in the order named here — §4.9 step 1 requires on-startup
// tasks to run "synchronously in registration order".
func (b *Builder) StartTasks(names ...string) *Builder {
	for _, n := range names {
		if b.startTaskSeen[n] {
			continue
		}
		b.startTaskSeen[n] = true
		b.startTaskNames = append(b.startTaskNames, n)
	}
	return b
}

// Build validates the configuration and constructs a Scheduler.
func (b *Builder) Build() (*Scheduler, error) {
	if b.repo == nil {
		return nil, errors.New("scheduler: repository is required")
	}
	if len(b.tasks) == 0 {
		return nil, errors.New("scheduler: at least one known task is required")
	}
	if b.executorThreads <= 0 {
		return nil, fmt.Errorf("scheduler: executor_threads must be positive, got %d", b.executorThreads)
	}
	seen := make(map[string]bool, len(b.tasks))
	for _, t := range b.tasks {
		if seen[t.Name()] {
			return nil, fmt.Errorf("scheduler: duplicate task name %q in known_tasks", t.Name())
		}
		seen[t.Name()] = true
	}

	name := b.schedulerName
	if name == "" {
		name = defaultSchedulerName()
	}

	registry := NewRegistry(b.unresolvedPolicy, b.log, b.tasks...)

	var startTasks []Task
	for _, n := range b.startTaskNames {
		t, err := registry.Resolve(n)
		if err != nil || t == nil {
			return nil, fmt.Errorf("scheduler: start task %q is not in the known task set", n)
		}
		if _, ok := t.(OnStartup); !ok {
			return nil, fmt.Errorf("scheduler: start task %q does not implement OnStartup", n)
		}
		startTasks = append(startTasks, t)
	}

	s := &Scheduler{
		repo:              b.repo,
		registry:          registry,
		clock:             b.clock,
		pool:              workerpool.New(b.executorThreads, b.log),
		stats:             b.stats,
		log:               b.log,
		schedulerName:     name,
		pollingInterval:   b.pollingInterval,
		heartbeatInterval: b.heartbeatInterval,
		startTasks:        startTasks,
		pollWaiter:        NewWaiter(b.pollingInterval),
		deadWaiter:        NewWaiter(deadDetectionMultiplier * b.heartbeatInterval),
		heartbeatWaiter:   NewWaiter(b.heartbeatInterval),
		state:             &SchedulerState{},
		executing:         make(map[string]CurrentlyExecuting),
	}
	return s, nil
}

func defaultSchedulerName() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "scheduler-" + uuid.NewString()
}

// Start invokes all OnStartup tasks synchronously in registration
// order, then launches the three background loops. Start does not
// block; call Stop to shut down.
func (s *Scheduler) Start(ctx context.Context) {
	for _, t := range s.startTasks {
		onStartup := t.(OnStartup)
		if err := onStartup.Startup(ctx, s); err != nil {
			s.log.Error("on-startup task failed", slog.String("task", t.Name()), slog.Any("error", err))
			s.stats.RegisterUnexpectedError()
		}
	}

	s.state.setRunning(true)
	s.state.setShuttingDown(false)

	s.loopsWG.Add(3)
	go s.runLoop("due-polling", s.pollWaiter, func() { s.dueTick(ctx) })
	go s.runLoop("dead-detection", s.deadWaiter, func() { s.deadTick(ctx) })
	go s.runLoop("heartbeat", s.heartbeatWaiter, func() { s.heartbeatTick(ctx) })
}

// Running reports whether Start has run and Stop has not yet completed.
func (s *Scheduler) Running() bool { return s.state.Running() }

// runLoop is the RunUntilShutdown shape shared by all three loops:
// run one tick, then sleep on waiter unless shutting down.
func (s *Scheduler) runLoop(name string, waiter *Waiter, tick func()) {
	defer s.loopsWG.Done()
	for !s.state.ShuttingDown() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("loop tick panicked", slog.String("loop", name), slog.Any("panic", r))
					s.stats.RegisterUnexpectedError()
				}
			}()
			tick()
		}()
		if s.state.ShuttingDown() {
			return
		}
		waiter.Wait()
	}
}

// Stop sets shutting_down, wakes and waits for the three loops (bounded
// by a short grace period), then waits for the worker pool to drain
// in-flight executions (bounded by a long grace period). Any
// executions still running at the long timeout are logged by identity.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.state.setShuttingDown(true)
	s.pollWaiter.Wake()
	s.deadWaiter.Wake()
	s.heartbeatWaiter.Wake()

	loopsDone := make(chan struct{})
	go func() {
		s.loopsWG.Wait()
		close(loopsDone)
	}()
	select {
	case <-loopsDone:
	case <-time.After(loopShutdownGrace):
		s.log.Warn("background loops did not exit within grace period")
	}

	poolCtx, cancel := context.WithTimeout(ctx, poolShutdownGrace)
	defer cancel()
	err := s.pool.Shutdown(poolCtx)

	s.state.setRunning(false)
	return err
}

// Schedule implements SchedulerClient: it's CreateIfNotExists, exposed
// narrowly so OnStartup hooks and task bodies don't need the full
// Scheduler surface to enqueue follow-up work.
func (s *Scheduler) Schedule(ctx context.Context, instance TaskInstance, executionTime time.Time) (bool, error) {
	return s.repo.CreateIfNotExists(ctx, Execution{
		TaskInstance:  instance,
		ExecutionTime: executionTime,
	})
}

// CurrentlyExecuting returns a snapshot of executions this scheduler is
// presently running. Supplements the original library's getCurrentlyExecuting.
func (s *Scheduler) CurrentlyExecuting() []CurrentlyExecuting {
	s.executingMu.Lock()
	defer s.executingMu.Unlock()
	out := make([]CurrentlyExecuting, 0, len(s.executing))
	for _, ce := range s.executing {
		out = append(out, ce)
	}
	return out
}

// FailingExecutions supplements the original library's getFailingExecutions.
func (s *Scheduler) FailingExecutions(ctx context.Context, longerThan time.Duration) ([]Execution, error) {
	return s.repo.GetExecutionsFailingLongerThan(ctx, longerThan)
}

// dueTick is one iteration of the Due-Polling Loop (C6, §4.5).
func (s *Scheduler) dueTick(ctx context.Context) {
	if s.pool.AvailableSlots() <= 0 {
		return
	}

	due, err := s.repo.GetDue(ctx, s.clock.Now())
	if err != nil {
		s.log.Error("get_due failed", slog.Any("error", err))
		s.stats.RegisterUnexpectedError()
		return
	}

	for _, exec := range due {
		if s.state.ShuttingDown() {
			return
		}
		if err := s.acquireAndRun(ctx, exec); err != nil {
			// Both "no slot available" and a genuine store error abort
			// the rest of this tick's scan (§7: a transient store error
			// "propagated out of the loop iteration ... loop continues
			// on next tick", matching the Java original's
			// aquireExecutorAndPickExecution rethrowing out of
			// executeDue with no catch).
			if !errors.Is(err, errNoAvailableExecutors) {
				s.log.Error("due-scan aborted by store error", slog.Any("error", err))
				s.stats.RegisterUnexpectedError()
			}
			return
		}
	}
}

// acquireAndRun is aquireExecutorAndPickExecution: the slot is taken
// before pick is attempted, and released on every path that doesn't
// end in a running worker. A non-nil return (other than
// errNoAvailableExecutors) is a transient store error that must abort
// the rest of the current tick's scan.
func (s *Scheduler) acquireAndRun(ctx context.Context, exec Execution) error {
	task, err := s.registry.Resolve(exec.TaskInstance.TaskName)
	if err != nil {
		s.log.Error("unresolved task name", slog.String("execution", exec.TaskInstance.String()), slog.Any("error", err))
		s.stats.RegisterUnexpectedError()
		return nil
	}
	if task == nil {
		return nil // warn_and_skip: already logged by Resolve
	}

	if !s.pool.TryAcquire() {
		return errNoAvailableExecutors
	}

	picked, ok, err := s.repo.Pick(ctx, exec, s.schedulerName, s.clock.Now())
	if err != nil {
		s.pool.Release()
		return fmt.Errorf("pick %s: %w", exec.TaskInstance.String(), err)
	}
	if !ok {
		s.pool.Release() // contended claim, not an error
		return nil
	}

	s.stats.RecordPicked()
	s.trackExecuting(picked)
	s.pool.Go(picked.TaskInstance.String(), func() {
		defer s.untrackExecuting(picked.TaskInstance)
		s.runExecution(ctx, task, picked)
	})
	return nil
}

func (s *Scheduler) trackExecuting(exec Execution) {
	s.executingMu.Lock()
	s.executing[exec.TaskInstance.String()] = CurrentlyExecuting{Execution: exec, StartedAt: s.clock.Now()}
	n := len(s.executing)
	s.executingMu.Unlock()
	s.stats.SetCurrentlyExecuting(n)
}

func (s *Scheduler) untrackExecuting(instance TaskInstance) {
	s.executingMu.Lock()
	delete(s.executing, instance.String())
	n := len(s.executing)
	s.executingMu.Unlock()
	s.stats.SetCurrentlyExecuting(n)
}

// runExecution executes the task body and dispatches to the completion
// handler, matching Scheduler.java's ExecuteTask.run/complete (§4.6).
func (s *Scheduler) runExecution(ctx context.Context, task Task, exec Execution) {
	execCtx := ExecutionContext{SchedulerName: s.schedulerName, state: s.state}

	startedAt := s.clock.Now()
	result := func() (res ExecutionResult) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("task body panicked", slog.String("execution", exec.TaskInstance.String()), slog.Any("panic", r))
				res = ExecutionResultFailed
			}
		}()
		if err := task.Execute(ctx, exec.TaskInstance, execCtx); err != nil {
			s.log.Error("task execution failed", slog.String("execution", exec.TaskInstance.String()), slog.Any("error", err))
			return ExecutionResultFailed
		}
		return ExecutionResultOK
	}()
	s.stats.RecordCompleted(result == ExecutionResultOK, s.clock.Now().Sub(startedAt).Seconds())

	complete := ExecutionComplete{Execution: exec, Result: result, Time: s.clock.Now()}
	lastSuccess, lastFailure := exec.LastSuccess, exec.LastFailure
	if result == ExecutionResultOK {
		lastSuccess = complete.Time
	} else {
		lastFailure = complete.Time
	}
	ops := &executionOps{repo: s.repo, exec: exec, lastSuccess: lastSuccess, lastFailure: lastFailure}

	if err := task.CompletionHandler()(ctx, complete, ops); err != nil {
		// Row stays claimed. Dead detection will reclaim it — this is
		// the intentional recovery path, not a bug to route around.
		s.log.Error("completion handler failed, row remains claimed",
			slog.String("execution", exec.TaskInstance.String()), slog.Any("error", err))
		s.stats.RegisterUnexpectedError()
	}
}

// deadTick is one iteration of the Dead-Detection Loop (C7, §4.7).
func (s *Scheduler) deadTick(ctx context.Context) {
	threshold := s.clock.Now().Add(-deadThresholdMultiplier * s.heartbeatInterval)
	old, err := s.repo.GetOldExecutions(ctx, threshold)
	if err != nil {
		s.log.Error("get_old_executions failed", slog.Any("error", err))
		s.stats.RegisterUnexpectedError()
		return
	}

	for _, exec := range old {
		task, err := s.registry.Resolve(exec.TaskInstance.TaskName)
		if err != nil {
			s.log.Error("unresolved task name", slog.String("execution", exec.TaskInstance.String()), slog.Any("error", err))
			s.stats.RegisterUnexpectedError()
			continue
		}
		if task == nil {
			continue
		}
		s.stats.RecordDead()
		ops := &executionOps{repo: s.repo, exec: exec, lastSuccess: exec.LastSuccess, lastFailure: exec.LastFailure}
		if err := task.DeadExecutionHandler()(ctx, exec, ops); err != nil {
			s.log.Error("dead execution handler failed",
				slog.String("execution", exec.TaskInstance.String()), slog.Any("error", err))
			s.stats.RegisterUnexpectedError()
		}
	}
}

// heartbeatTick is one iteration of the Heartbeat Loop (C8, §4.8).
func (s *Scheduler) heartbeatTick(ctx context.Context) {
	now := s.clock.Now()
	for _, ce := range s.CurrentlyExecuting() {
		if err := s.repo.UpdateHeartbeat(ctx, ce.Execution, now); err != nil && !errors.Is(err, ErrNotImplemented) {
			s.log.Error("update_heartbeat failed",
				slog.String("execution", ce.Execution.TaskInstance.String()), slog.Any("error", err))
			s.stats.RegisterUnexpectedError()
		}
	}
}

// executionOps is the ExecutionOperations handle scoped to one
// execution, handed to completion and dead-execution handlers. It
// carries the outcome timestamps to write alongside a Reschedule:
// runExecution sets whichever of lastSuccess/lastFailure changed,
// dead-execution handling leaves both at the row's existing values.
type executionOps struct {
	repo        Repository
	exec        Execution
	lastSuccess time.Time
	lastFailure time.Time
}

func (o *executionOps) Reschedule(ctx context.Context, nextExecutionTime time.Time) error {
	return o.repo.Reschedule(ctx, o.exec, nextExecutionTime, o.lastSuccess, o.lastFailure)
}

func (o *executionOps) Remove(ctx context.Context) error {
	return o.repo.Remove(ctx, o.exec)
}
