package job

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const DefaultSweepInterval = time.Hour

// SweepTask removes expired records from one store and reports how many.
type SweepTask struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// SweepObserver is implemented by metrics.Metrics.
type SweepObserver interface {
	Swept(target string, n int)
}

// SweepJob runs maintenance tasks (cache sweep, sent index expiry, ledger
// prune) on their own interval, outside the thread cycle.
type SweepJob struct {
	tracer   trace.Tracer
	tasks    []SweepTask
	interval time.Duration
	observer SweepObserver
}

func NewSweepJob(tracer trace.Tracer, interval time.Duration, observer SweepObserver, tasks ...SweepTask) *SweepJob {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &SweepJob{tracer: tracer, tasks: tasks, interval: interval, observer: observer}
}

func (j *SweepJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce runs every task and returns the per-task deletion counts. A
// failing task is logged and does not stop the others.
func (j *SweepJob) RunOnce(ctx context.Context) map[string]int {
	ctx, span := j.tracer.Start(ctx, "sweep-job.run-once")
	defer span.End()

	counts := make(map[string]int, len(j.tasks))
	for _, task := range j.tasks {
		if ctx.Err() != nil {
			break
		}
		n, err := task.Run(ctx)
		if err != nil {
			slog.Warn("sweep task failed", "task", task.Name, "error", err)
			continue
		}
		counts[task.Name] = n
		if j.observer != nil {
			j.observer.Swept(task.Name, n)
		}
		if n > 0 {
			slog.Info("sweep removed records", "task", task.Name, "removed", n)
		}
	}
	return counts
}
