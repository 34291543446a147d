package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cryptothreads/internal/store"
)

// DefaultPendingMaxAge matches the sent index retention; an older pending
// thread could no longer find its posts and would start a new chain.
const DefaultPendingMaxAge = 48 * time.Hour

// bookkeepingTimeout bounds the writes that follow a publish attempt. They
// run detached from cycle cancellation so a shutdown does not lose track of
// posts that are already live.
const bookkeepingTimeout = 10 * time.Second

// pendingThread is a thread whose publication stopped part way. The next
// cycle offers the same text again so the sent index continues the chain.
type pendingThread struct {
	CycleID     string    `json:"cycle_id"`
	ComposedAt  time.Time `json:"composed_at"`
	Thread      []string  `json:"thread"`
	Message     string    `json:"message,omitempty"`
	Influencers []string  `json:"influencers,omitempty"`

	// Live counts posts known to be on the platform.
	Live int `json:"live"`
}

func (s *ThreadService) pendingKey() string {
	return "pending:" + s.deps.Thread.Platform()
}

// loadPending returns the interrupted thread to resume, or nil. Unreadable
// and expired records are dropped.
func (s *ThreadService) loadPending(ctx context.Context, now time.Time) (*pendingThread, error) {
	if s.deps.Pending == nil {
		return nil, nil
	}
	key := s.pendingKey()
	raw, err := s.deps.Pending.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load pending thread: %w", err)
	}

	var p pendingThread
	if err := json.Unmarshal(raw, &p); err != nil || len(p.Thread) == 0 {
		slog.Warn("dropping unreadable pending thread", "key", key)
		s.clearPending(ctx)
		return nil, nil
	}
	if age := now.Sub(p.ComposedAt); age > s.pendingMaxAge {
		slog.Info("pending thread too old to resume", "cycle", p.CycleID, "age", age, "live", p.Live)
		s.clearPending(ctx)
		return nil, nil
	}
	return &p, nil
}

func (s *ThreadService) savePending(ctx context.Context, p pendingThread) error {
	if s.deps.Pending == nil {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.deps.Pending.Put(ctx, s.pendingKey(), raw)
}

func (s *ThreadService) clearPending(ctx context.Context) {
	if s.deps.Pending == nil {
		return
	}
	if err := s.deps.Pending.Delete(ctx, s.pendingKey()); err != nil {
		slog.Warn("pending thread cleanup failed", "error", err)
	}
}

// detached returns a context that survives cancellation of ctx for the
// bookkeeping after a publish attempt.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}
