// Package cache holds the Redis bootstrap and the response cache that sits
// in front of every external fetch.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cryptothreads/internal/store"
)

const keyPrefix = "cache:"

// Entry is the stored envelope around a fetched payload.
type Entry struct {
	Key       string    `json:"key"`
	Payload   []byte    `json:"payload"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Fresh reports whether the entry is younger than ttl at now.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt) < ttl
}

// FetchFunc performs the external call on a miss.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Observer receives hit/miss/eviction events, keyed by service name.
type Observer interface {
	CacheHit(service string)
	CacheMiss(service string)
	CacheEvicted(service string, n int)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string)          {}
func (nopObserver) CacheMiss(string)         {}
func (nopObserver) CacheEvicted(string, int) {}

// ResponseCache maps service+query keys to payloads with a fetch time.
type ResponseCache struct {
	kv       store.KV
	now      func() time.Time
	observer Observer
}

type Option func(*ResponseCache)

func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) { c.now = now }
}

func WithObserver(o Observer) Option {
	return func(c *ResponseCache) {
		if o != nil {
			c.observer = o
		}
	}
}

func New(kv store.KV, opts ...Option) *ResponseCache {
	c := &ResponseCache{kv: kv, now: time.Now, observer: nopObserver{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key joins a service name and query parts into a cache key.
func Key(service string, parts ...string) string {
	all := make([]string, 0, len(parts)+1)
	all = append(all, service)
	for _, p := range parts {
		all = append(all, strings.ToLower(strings.TrimSpace(p)))
	}
	return strings.Join(all, ":")
}

// DayKey scopes a key to now's UTC calendar day, for feeds that refresh on
// the day boundary rather than after a fixed age.
func DayKey(service, query string, now time.Time) string {
	return Key(service, query, now.UTC().Format("2006-01-02"))
}

func serviceOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}

// GetOrFetch returns the payload cached under key if it is younger than
// ttl. Otherwise it calls fetch, stores the result and returns it. A failed
// fetch leaves the cache untouched and returns the error.
func (c *ResponseCache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) ([]byte, error) {
	if entry, ok := c.lookup(ctx, key); ok && entry.Fresh(c.now(), ttl) {
		c.observer.CacheHit(serviceOf(key))
		return entry.Payload, nil
	}
	c.observer.CacheMiss(serviceOf(key))

	payload, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, payload)
	return payload, nil
}

// lookup reads and decodes the envelope. Read failures count as misses; an
// undecodable envelope is deleted.
func (c *ResponseCache) lookup(ctx context.Context, key string) (Entry, bool) {
	raw, err := c.kv.Get(ctx, keyPrefix+key)
	if errors.Is(err, store.ErrNotFound) {
		return Entry{}, false
	}
	if err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
		return Entry{}, false
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		slog.Warn("removing corrupt cache entry", "key", key, "error", err)
		c.Invalidate(ctx, key)
		return Entry{}, false
	}
	return entry, true
}

func (c *ResponseCache) store(ctx context.Context, key string, payload []byte) {
	raw, err := json.Marshal(Entry{Key: key, Payload: payload, FetchedAt: c.now().UTC()})
	if err != nil {
		slog.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.kv.Put(ctx, keyPrefix+key, raw); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
}

// Invalidate deletes the entry for key.
func (c *ResponseCache) Invalidate(ctx context.Context, key string) {
	if err := c.kv.Delete(ctx, keyPrefix+key); err != nil {
		slog.Warn("cache delete failed", "key", key, "error", err)
	}
}

// Peek returns the stored entry without fetching, fresh or not.
func (c *ResponseCache) Peek(ctx context.Context, key string) (Entry, bool) {
	return c.lookup(ctx, key)
}

// Sweep deletes every entry fetched more than retention ago, plus any
// envelope that no longer decodes. It returns the number deleted.
func (c *ResponseCache) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := c.now().Add(-retention)

	var stale []string
	err := c.kv.Scan(ctx, keyPrefix, func(key string, value []byte) error {
		var entry Entry
		if err := json.Unmarshal(value, &entry); err != nil || entry.FetchedAt.Before(cutoff) {
			stale = append(stale, key)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweep scan: %w", err)
	}

	perService := make(map[string]int)
	deleted := 0
	for _, key := range stale {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if err := c.kv.Delete(ctx, key); err != nil {
			return deleted, fmt.Errorf("sweep delete %s: %w", key, err)
		}
		deleted++
		perService[serviceOf(strings.TrimPrefix(key, keyPrefix))]++
	}
	for svc, n := range perService {
		c.observer.CacheEvicted(svc, n)
	}
	return deleted, nil
}

// FetchJSON is GetOrFetch for JSON-encoded values. A cached payload that no
// longer decodes into T is deleted and refetched.
func FetchJSON[T any](ctx context.Context, c *ResponseCache, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if entry, ok := c.lookup(ctx, key); ok && entry.Fresh(c.now(), ttl) {
		var v T
		err := json.Unmarshal(entry.Payload, &v)
		if err == nil {
			c.observer.CacheHit(serviceOf(key))
			return v, nil
		}
		slog.Warn("removing undecodable cache payload", "key", key, "error", err)
		c.Invalidate(ctx, key)
	}
	c.observer.CacheMiss(serviceOf(key))

	v, err := fetch(ctx)
	if err != nil {
		return zero, err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}
	c.store(ctx, key, payload)
	return v, nil
}
