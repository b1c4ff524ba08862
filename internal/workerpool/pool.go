// Package workerpool provides the bounded, non-queuing worker pool the
// scheduler's due-polling loop claims slots from before it ever calls
// Pick on the repository.
//
// Unlike a typical fixed-size worker pool that dispatches work over a
// buffered channel (queuing submissions when all workers are busy), this
// pool never queues: TryAcquire either returns a slot immediately or
// reports false. Queuing here would let one scheduler claim rows it has
// no capacity to run yet, starving peer schedulers that could run them
// now. The slot must be held before the claim is attempted, and released
// on every exit path.
package workerpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent execution to N slots.
type Pool struct {
	sem       *semaphore.Weighted
	n         int64
	available atomic.Int64 // mirrors sem's free permits, for AvailableSlots

	mu      sync.Mutex
	running map[string]time.Time // label -> started_at, for shutdown diagnostics
	wg      sync.WaitGroup

	log *slog.Logger
}

// New returns a Pool with n concurrent slots.
func New(n int, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	p := &Pool{
		sem:     semaphore.NewWeighted(int64(n)),
		n:       int64(n),
		running: make(map[string]time.Time),
		log:     log,
	}
	p.available.Store(int64(n))
	return p
}

// TryAcquire attempts to reserve one slot without blocking. Callers
// that get true must eventually call Release exactly once, whether or
// not they go on to run anything in the slot.
func (p *Pool) TryAcquire() bool {
	if p.sem.TryAcquire(1) {
		p.available.Add(-1)
		return true
	}
	return false
}

// Release returns a slot acquired by TryAcquire.
func (p *Pool) Release() {
	p.sem.Release(1)
	p.available.Add(1)
}

// Go runs fn in a new goroutine inside a slot already held by the
// caller's prior successful TryAcquire. It releases the slot and
// removes the running-diagnostics entry for label when fn returns.
func (p *Pool) Go(label string, fn func()) {
	p.mu.Lock()
	p.running[label] = time.Now()
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.running, label)
			p.mu.Unlock()
			p.Release()
		}()
		fn()
	}()
}

// Shutdown waits for all in-flight Go calls to finish, bounded by
// ctx's deadline. Any goroutines still running at the deadline are
// logged by the label passed to Go (§4.9 step 3 — "still-running
// executions at timeout are logged by identity").
func (p *Pool) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.mu.Lock()
		still := make([]string, 0, len(p.running))
		for label, startedAt := range p.running {
			still = append(still, fmt.Sprintf("%s (running %s)", label, time.Since(startedAt)))
		}
		p.mu.Unlock()
		p.log.Warn("worker pool shutdown grace period expired with executions still running",
			slog.Int("count", len(still)), slog.Any("executions", still))
		return ctx.Err()
	}
}

// AvailableSlots reports the number of currently unclaimed slots. Used
// by the due-polling loop's fast-path check (§4.5 step 1): if there are
// none, the scan is skipped entirely this tick.
func (p *Pool) AvailableSlots() int64 {
	return p.available.Load()
}
