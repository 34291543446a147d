package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"cryptothreads/internal/service"

	"go.opentelemetry.io/otel/trace"
)

// DefaultThreadInterval is the pause between the end of one cycle and the
// start of the next.
const DefaultThreadInterval = 4 * time.Hour

// ErrCycleInFlight is returned by manual triggers while a cycle runs.
var ErrCycleInFlight = errors.New("job: a thread cycle is already running")

type CycleRunner interface {
	RunCycle(ctx context.Context) (service.CycleResult, error)
}

// LastRun is the outcome of the most recent cycle.
type LastRun struct {
	Result   service.CycleResult `json:"result"`
	Error    string              `json:"error,omitempty"`
	Finished time.Time           `json:"finished"`
}

// ThreadJob is the scheduler loop. Scheduled and manual cycles share one
// in-flight guard, so two cycles never overlap.
type ThreadJob struct {
	tracer   trace.Tracer
	runner   CycleRunner
	interval time.Duration
	// base bounds manual cycles; cancelling it interrupts them.
	base context.Context

	running atomic.Bool
	cycles  sync.WaitGroup
	mu      sync.Mutex
	last    *LastRun
}

func NewThreadJob(ctx context.Context, tracer trace.Tracer, runner CycleRunner, interval time.Duration) *ThreadJob {
	if interval <= 0 {
		interval = DefaultThreadInterval
	}
	return &ThreadJob{tracer: tracer, runner: runner, interval: interval, base: ctx}
}

// Start runs a cycle immediately, then again interval after each cycle
// ends. It blocks until ctx is cancelled and every cycle it or Trigger
// started has returned.
func (j *ThreadJob) Start(ctx context.Context) {
	if j.runner == nil {
		slog.Info("thread job disabled: no runner")
		<-ctx.Done()
		return
	}

	slog.Info("thread job starting", "interval", j.interval)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			j.Wait()
			slog.Info("thread job stopped")
			return
		case <-timer.C:
			if _, err := j.TryRun(ctx); errors.Is(err, ErrCycleInFlight) {
				slog.Info("scheduled cycle skipped: manual cycle in flight")
			}
			timer.Reset(j.interval)
		}
	}
}

// TryRun runs one cycle and waits for it, unless another is in flight.
func (j *ThreadJob) TryRun(ctx context.Context) (service.CycleResult, error) {
	if !j.running.CompareAndSwap(false, true) {
		return service.CycleResult{}, ErrCycleInFlight
	}
	j.cycles.Add(1)
	defer j.cycles.Done()
	defer j.running.Store(false)
	return j.runOnce(ctx)
}

// Trigger starts a cycle in the background on the context the job was
// built with and returns at once.
func (j *ThreadJob) Trigger() error {
	if j.runner == nil {
		return errors.New("job: thread job disabled")
	}
	if err := j.base.Err(); err != nil {
		return fmt.Errorf("job: shutting down: %w", err)
	}
	if !j.running.CompareAndSwap(false, true) {
		return ErrCycleInFlight
	}
	j.cycles.Go(func() {
		defer j.running.Store(false)
		_, _ = j.runOnce(j.base)
	})
	return nil
}

func (j *ThreadJob) Running() bool { return j.running.Load() }

// Wait blocks until no cycle is in flight.
func (j *ThreadJob) Wait() { j.cycles.Wait() }

// Last returns the most recent cycle outcome, if any cycle has finished.
func (j *ThreadJob) Last() (LastRun, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.last == nil {
		return LastRun{}, false
	}
	return *j.last, true
}

func (j *ThreadJob) runOnce(ctx context.Context) (service.CycleResult, error) {
	ctx, span := j.tracer.Start(ctx, "thread-job.run-once")
	defer span.End()

	start := time.Now()
	result, err := j.runner.RunCycle(ctx)

	run := LastRun{Result: result, Finished: time.Now().UTC()}
	if err != nil {
		run.Error = err.Error()
	}
	j.mu.Lock()
	j.last = &run
	j.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		slog.Error("thread cycle failed", "cycle", result.ID, "error", err, "elapsed", time.Since(start))
		return result, err
	}
	slog.Info("thread cycle complete",
		"cycle", result.ID,
		"posts", result.Posts,
		"published", result.Published,
		"skipped", result.Skipped,
		"duplicates", result.Duplicates,
		"warnings", len(result.Errors),
		"elapsed", time.Since(start),
	)
	return result, nil
}
