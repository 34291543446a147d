package ratebudget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cryptothreads/internal/store"
)

// ErrQuotaExhausted is returned by Allow when the request would exceed the
// period's quota.
var ErrQuotaExhausted = errors.New("ratebudget: monthly quota exhausted")

// QuotaState is the persisted monthly counter.
type QuotaState struct {
	Count       int       `json:"count"`
	PeriodStart time.Time `json:"period_start"`
}

// Quota is a calendar-month post budget persisted in a KV store so a
// restart does not hand out a fresh allowance.
type Quota struct {
	mu    sync.Mutex
	kv    store.KV
	key   string
	limit int
	now   func() time.Time
}

func NewQuota(kv store.KV, name string, limit int, now func() time.Time) *Quota {
	if now == nil {
		now = time.Now
	}
	return &Quota{kv: kv, key: "quota:" + name, limit: limit, now: now}
}

// MonthStart returns the first instant of t's UTC month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (q *Quota) load(ctx context.Context) (QuotaState, error) {
	period := MonthStart(q.now())
	raw, err := q.kv.Get(ctx, q.key)
	if errors.Is(err, store.ErrNotFound) {
		return QuotaState{PeriodStart: period}, nil
	}
	if err != nil {
		return QuotaState{}, fmt.Errorf("load quota: %w", err)
	}
	var st QuotaState
	if err := json.Unmarshal(raw, &st); err != nil {
		// unreadable counter starts the period over
		return QuotaState{PeriodStart: period}, nil
	}
	if !st.PeriodStart.Equal(period) {
		return QuotaState{PeriodStart: period}, nil
	}
	return st, nil
}

func (q *Quota) save(ctx context.Context, st QuotaState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := q.kv.Put(ctx, q.key, raw); err != nil {
		return fmt.Errorf("save quota: %w", err)
	}
	return nil
}

// Allow reports ErrQuotaExhausted if n more units would exceed the limit.
// It does not consume anything; callers commit what they used with Add.
// A limit of zero or less disables the quota.
func (q *Quota) Allow(ctx context.Context, n int) error {
	if q.limit <= 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	st, err := q.load(ctx)
	if err != nil {
		return err
	}
	if st.Count+n > q.limit {
		return fmt.Errorf("%w: used %d of %d, need %d", ErrQuotaExhausted, st.Count, q.limit, n)
	}
	return nil
}

// Add records n consumed units.
func (q *Quota) Add(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	st, err := q.load(ctx)
	if err != nil {
		return err
	}
	st.Count += n
	return q.save(ctx, st)
}

// Remaining returns the units left in the current period.
func (q *Quota) Remaining(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, err := q.load(ctx)
	if err != nil {
		return 0, err
	}
	if q.limit <= 0 {
		return -1, nil
	}
	left := q.limit - st.Count
	if left < 0 {
		left = 0
	}
	return left, nil
}

// State returns the current period's counter.
func (q *Quota) State(ctx context.Context) (QuotaState, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

func (q *Quota) Limit() int { return q.limit }
