// Package metrics exposes the scheduler's Prometheus metrics and
// implements the scheduler.StatsRegistry sink.
//
// Adapted from the teacher's job-queue Collector: same Counter/
// Histogram/Gauge shape and the same RED/USE framing, renamed from
// job-lifecycle metric names to execution-lifecycle ones.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes Prometheus metrics for a running
// Scheduler, and implements scheduler.StatsRegistry so unexpected
// errors caught by any loop or callback are counted.
type Collector struct {
	executionsPicked    prometheus.Counter
	executionsCompleted *prometheus.CounterVec // labeled by result: ok|failed
	executionsDead       prometheus.Counter
	unexpectedErrors     prometheus.Counter

	executionLatency prometheus.Histogram

	currentlyExecuting prometheus.Gauge
}

// NewCollector builds and registers a Collector against reg. Pass
// prometheus.DefaultRegisterer for the global registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		executionsPicked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_executions_picked_total",
			Help: "Total number of executions successfully claimed by this scheduler",
		}),
		executionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_executions_completed_total",
			Help: "Total number of executions whose task body returned, by result",
		}, []string{"result"}),
		executionsDead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_executions_dead_total",
			Help: "Total number of executions reclaimed by dead detection",
		}),
		unexpectedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_unexpected_errors_total",
			Help: "Total number of caught-and-logged errors across all loops and callbacks",
		}),
		executionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scheduler_execution_latency_seconds",
			Help:    "Task body execution latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		currentlyExecuting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_currently_executing",
			Help: "Current number of executions running in this scheduler's worker pool",
		}),
	}

	reg.MustRegister(
		c.executionsPicked,
		c.executionsCompleted,
		c.executionsDead,
		c.unexpectedErrors,
		c.executionLatency,
		c.currentlyExecuting,
	)
	return c
}

// RecordPicked records a successful claim.
func (c *Collector) RecordPicked() {
	c.executionsPicked.Inc()
}

// RecordCompleted records a terminal task-body outcome and its latency.
func (c *Collector) RecordCompleted(ok bool, latencySeconds float64) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.executionsCompleted.WithLabelValues(result).Inc()
	c.executionLatency.Observe(latencySeconds)
}

// RecordDead records a row reclaimed by dead detection.
func (c *Collector) RecordDead() {
	c.executionsDead.Inc()
}

// SetCurrentlyExecuting sets the instantaneous in-flight execution count.
func (c *Collector) SetCurrentlyExecuting(n int) {
	c.currentlyExecuting.Set(float64(n))
}

// RegisterUnexpectedError implements scheduler.StatsRegistry.
func (c *Collector) RegisterUnexpectedError() {
	c.unexpectedErrors.Inc()
}

// StartServer starts an HTTP server exposing /metrics on port, blocking
// until it errors or the process exits. Mirrors the teacher's own
// metrics.StartServer.
func StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
