package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cryptothreads/internal/store"
)

// SentKey identifies one link of a reply chain: the post it replied to
// (empty for the first post) and its own fingerprint.
type SentKey struct {
	ParentID    string
	Fingerprint string
}

// SentIndex remembers posts of a thread that is still being published, so a
// retry continues the same chain instead of reposting.
type SentIndex interface {
	Lookup(ctx context.Context, parentID, fingerprint string) (string, bool, error)
	Remember(ctx context.Context, parentID, fingerprint, postID string) error
	Forget(ctx context.Context, keys []SentKey) error
}

type sentRecord struct {
	PostID string    `json:"post_id"`
	SentAt time.Time `json:"sent_at"`
}

// KVSentIndex is a SentIndex over store.KV. Records older than ttl are
// ignored and removed on lookup.
type KVSentIndex struct {
	kv       store.KV
	platform string
	ttl      time.Duration
	now      func() time.Time
}

func NewKVSentIndex(kv store.KV, platform string, ttl time.Duration) *KVSentIndex {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &KVSentIndex{kv: kv, platform: platform, ttl: ttl, now: time.Now}
}

func (x *KVSentIndex) key(parentID, fingerprint string) string {
	if parentID == "" {
		parentID = "root"
	}
	return fmt.Sprintf("sent:%s:%s:%s", x.platform, parentID, fingerprint)
}

func (x *KVSentIndex) Lookup(ctx context.Context, parentID, fingerprint string) (string, bool, error) {
	key := x.key(parentID, fingerprint)
	raw, err := x.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	var rec sentRecord
	if err := json.Unmarshal(raw, &rec); err != nil || x.now().Sub(rec.SentAt) > x.ttl {
		if err := x.kv.Delete(ctx, key); err != nil {
			slog.Warn("sent index: dropping stale record failed", "key", key, "error", err)
		}
		return "", false, nil
	}
	return rec.PostID, true, nil
}

func (x *KVSentIndex) Remember(ctx context.Context, parentID, fingerprint, postID string) error {
	raw, err := json.Marshal(sentRecord{PostID: postID, SentAt: x.now().UTC()})
	if err != nil {
		return err
	}
	return x.kv.Put(ctx, x.key(parentID, fingerprint), raw)
}

func (x *KVSentIndex) Forget(ctx context.Context, keys []SentKey) error {
	var errs []error
	for _, k := range keys {
		if err := x.kv.Delete(ctx, x.key(k.ParentID, k.Fingerprint)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sweep removes records older than ttl for every platform.
func (x *KVSentIndex) Sweep(ctx context.Context) (int, error) {
	var stale []string
	err := x.kv.Scan(ctx, "sent:", func(key string, value []byte) error {
		var rec sentRecord
		if err := json.Unmarshal(value, &rec); err != nil || x.now().Sub(rec.SentAt) > x.ttl {
			stale = append(stale, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for i, key := range stale {
		if err := x.kv.Delete(ctx, key); err != nil {
			return i, err
		}
	}
	return len(stale), nil
}
