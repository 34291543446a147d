package ledger

import (
	"context"
	"log/slog"
	"time"
)

// Recorder appends a published thread and immediately prunes the ledger to
// its retention bound, so history never outgrows one cycle's worth of
// expired entries.
type Recorder struct {
	ledger    Ledger
	retention time.Duration
}

func NewRecorder(l Ledger, retention time.Duration) *Recorder {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Recorder{ledger: l, retention: retention}
}

// Record must only be called once the thread has been published in full.
// A failed prune is logged; the append already succeeded.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if err := r.ledger.Append(ctx, e); err != nil {
		return err
	}
	n, err := r.ledger.Prune(ctx, r.retention)
	if err != nil {
		slog.Warn("thread history prune failed", "error", err)
		return nil
	}
	if n > 0 {
		slog.Info("pruned thread history", "removed", n, "retention", r.retention)
	}
	return nil
}

func (r *Recorder) Retention() time.Duration { return r.retention }

func (r *Recorder) Ledger() Ledger { return r.ledger }
