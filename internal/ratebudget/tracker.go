// Package ratebudget keeps outbound calls to rate-limited services within
// their per-window budgets and tracks the monthly publishing quota.
package ratebudget

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultWindow is the counting window used when Register is given zero.
const DefaultWindow = 60 * time.Second

// State is the per-service counter. WindowStart is the time of the oldest
// call still inside the window; Count is the number of such calls.
type State struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// Status is a read-only view of one service's budget.
type Status struct {
	Service   string        `json:"service"`
	Limit     int           `json:"limit"`
	Window    time.Duration `json:"window"`
	State     State         `json:"state"`
	Waits     int64         `json:"waits"`
	WaitTotal time.Duration `json:"wait_total"`
	// Waiting is set when a caller is currently blocked on this budget.
	Waiting bool `json:"waiting"`
}

type budget struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	calls     []time.Time
	waits     int64
	waitTotal time.Duration
}

// Tracker gates calls per service. Services that were never registered are
// not limited.
type Tracker struct {
	mu       sync.RWMutex
	services map[string]*budget

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	onWait func(service string, d time.Duration)
}

type Option func(*Tracker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithSleeper overrides the context-aware sleep used while waiting.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(t *Tracker) { t.sleep = sleep }
}

// WithWaitHook is called every time a caller has to wait for its budget.
func WithWaitHook(fn func(service string, d time.Duration)) Option {
	return func(t *Tracker) { t.onWait = fn }
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		services: make(map[string]*budget),
		now:      time.Now,
		sleep:    Sleep,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register sets the budget for service. Re-registering replaces the limit
// and window but keeps calls already counted.
func (t *Tracker) Register(service string, limit int, window time.Duration) {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = DefaultWindow
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.services[service]; ok {
		b.mu.Lock()
		b.limit, b.window = limit, window
		b.mu.Unlock()
		return
	}
	t.services[service] = &budget{limit: limit, window: window}
}

// Acquire blocks until one more call to service fits in its budget, then
// counts that call. It only returns an error if ctx ends while waiting.
//
// The per-service lock is held across the wait so check-then-increment is
// atomic and waiters are served in lock order.
func (t *Tracker) Acquire(ctx context.Context, service string) error {
	t.mu.RLock()
	b := t.services[service]
	t.mu.RUnlock()
	if b == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		now := t.now()
		b.expire(now)
		if len(b.calls) < b.limit {
			b.calls = append(b.calls, now)
			return nil
		}

		wait := b.window - now.Sub(b.calls[0])
		if wait <= 0 {
			// clock moved between expire and here; drop and retry
			b.calls = b.calls[1:]
			continue
		}
		b.waits++
		b.waitTotal += wait
		if t.onWait != nil {
			t.onWait(service, wait)
		}
		if err := t.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// expire drops calls whose age reached the window.
func (b *budget) expire(now time.Time) {
	i := 0
	for i < len(b.calls) && now.Sub(b.calls[i]) >= b.window {
		i++
	}
	if i > 0 {
		b.calls = append(b.calls[:0], b.calls[i:]...)
	}
}

// State returns the current counter for service.
func (t *Tracker) State(service string) (State, bool) {
	t.mu.RLock()
	b := t.services[service]
	t.mu.RUnlock()
	if b == nil {
		return State{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire(t.now())
	return b.state(), true
}

func (b *budget) state() State {
	if len(b.calls) == 0 {
		return State{}
	}
	return State{Count: len(b.calls), WindowStart: b.calls[0]}
}

// Snapshot lists every registered service sorted by name. It does not wait
// on services whose lock is held by a sleeping Acquire.
func (t *Tracker) Snapshot() []Status {
	t.mu.RLock()
	names := make([]string, 0, len(t.services))
	for name := range t.services {
		names = append(names, name)
	}
	t.mu.RUnlock()
	sort.Strings(names)

	out := make([]Status, 0, len(names))
	now := t.now()
	for _, name := range names {
		t.mu.RLock()
		b := t.services[name]
		t.mu.RUnlock()

		st := Status{Service: name}
		if b.mu.TryLock() {
			b.expire(now)
			st.Limit, st.Window = b.limit, b.window
			st.State = b.state()
			st.Waits, st.WaitTotal = b.waits, b.waitTotal
			b.mu.Unlock()
		} else {
			st.Waiting = true
		}
		out = append(out, st)
	}
	return out
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
