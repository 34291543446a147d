package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cryptothreads/internal/store"
)

const kvPrefix = "thread:"

// record is the persisted shape; timestamps are unix seconds.
type record struct {
	Timestamp    int64    `json:"timestamp"`
	Fingerprints []string `json:"post_fingerprints"`
	Influencers  []string `json:"influencers,omitempty"`
}

// KVLedger keeps entries in a store.KV under zero-padded timestamp keys so
// prefix scans return them in publish order.
type KVLedger struct {
	kv  store.KV
	now func() time.Time
}

func NewKVLedger(kv store.KV, now func() time.Time) *KVLedger {
	if now == nil {
		now = time.Now
	}
	return &KVLedger{kv: kv, now: now}
}

func entryKey(ts time.Time) string {
	return fmt.Sprintf("%s%020d", kvPrefix, ts.Unix())
}

func (l *KVLedger) Append(ctx context.Context, e Entry) error {
	ts := e.Timestamp.UTC().Truncate(time.Second)
	raw, err := json.Marshal(record{
		Timestamp:    ts.Unix(),
		Fingerprints: e.Fingerprints,
		Influencers:  e.Influencers,
	})
	if err != nil {
		return fmt.Errorf("encode thread entry: %w", err)
	}
	if err := l.kv.Put(ctx, entryKey(ts), raw); err != nil {
		return fmt.Errorf("append thread entry: %w", err)
	}
	return nil
}

func (l *KVLedger) Load(ctx context.Context, maxAge time.Duration) ([]Entry, error) {
	cutoff := l.now().Add(-maxAge)
	var out []Entry
	err := l.kv.Scan(ctx, kvPrefix, func(key string, value []byte) error {
		var r record
		if err := json.Unmarshal(value, &r); err != nil {
			slog.Warn("skipping unreadable thread entry", "key", key, "error", err)
			return nil
		}
		ts := time.Unix(r.Timestamp, 0).UTC()
		if ts.Before(cutoff) {
			return nil
		}
		out = append(out, Entry{Timestamp: ts, Fingerprints: r.Fingerprints, Influencers: r.Influencers})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load thread history: %w", err)
	}
	return out, nil
}

func (l *KVLedger) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := l.now().Add(-maxAge)
	var doomed []string
	err := l.kv.Scan(ctx, kvPrefix, func(key string, value []byte) error {
		var r record
		if err := json.Unmarshal(value, &r); err != nil {
			doomed = append(doomed, key)
			return nil
		}
		if time.Unix(r.Timestamp, 0).Before(cutoff) {
			doomed = append(doomed, key)
			return nil
		}
		// keys are time ordered, nothing newer can be expired
		return store.ErrStopScan
	})
	if err != nil {
		return 0, fmt.Errorf("scan thread history: %w", err)
	}
	for i, key := range doomed {
		if err := l.kv.Delete(ctx, key); err != nil {
			return i, fmt.Errorf("prune thread entry %s: %w", key, err)
		}
	}
	return len(doomed), nil
}
