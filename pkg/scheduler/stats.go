package scheduler

// StatsRegistry is the sink for the scheduler's operational counters
// (§6): the unexpected-error count the spec requires at minimum, plus
// the claim/completion/recovery/in-flight counters every loop already
// has the data for. The default is a no-op; internal/metrics.Collector
// provides the Prometheus-backed implementation used by cmd/schedulerd.
type StatsRegistry interface {
	// RegisterUnexpectedError is incremented on every caught-and-logged
	// error in any loop or callback (§6's required minimum metric).
	RegisterUnexpectedError()

	// RecordPicked is incremented once per successful claim.
	RecordPicked()

	// RecordCompleted is called once per terminal task-body outcome,
	// with the wall-clock seconds the body took to run.
	RecordCompleted(ok bool, latencySeconds float64)

	// RecordDead is incremented once per row handed to a
	// dead-execution handler.
	RecordDead()

	// SetCurrentlyExecuting reports the instantaneous size of this
	// scheduler's in-flight execution set.
	SetCurrentlyExecuting(n int)
}

// NoOpStatsRegistry discards everything. It is the Builder default,
// matching the original library's StatsRegistry.NOOP.
type NoOpStatsRegistry struct{}

func (NoOpStatsRegistry) RegisterUnexpectedError()                    {}
func (NoOpStatsRegistry) RecordPicked()                               {}
func (NoOpStatsRegistry) RecordCompleted(ok bool, latencySeconds float64) {}
func (NoOpStatsRegistry) RecordDead()                                 {}
func (NoOpStatsRegistry) SetCurrentlyExecuting(n int)                  {}
