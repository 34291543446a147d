// Package ledger records threads that were published so later cycles can
// check new content against them.
package ledger

import (
	"context"
	"time"
)

// DefaultRetention is how long published threads are kept.
const DefaultRetention = 30 * 24 * time.Hour

// Entry is one published thread. Fingerprints are in post order.
type Entry struct {
	Timestamp    time.Time `json:"timestamp"`
	Fingerprints []string  `json:"post_fingerprints"`
	Influencers  []string  `json:"influencer_handles,omitempty"`
}

// Ledger is the append-only, age-pruned history of published threads.
type Ledger interface {
	Append(ctx context.Context, e Entry) error
	// Load returns entries no older than maxAge, oldest first.
	Load(ctx context.Context, maxAge time.Duration) ([]Entry, error)
	// Prune removes entries older than maxAge and reports how many.
	Prune(ctx context.Context, maxAge time.Duration) (int, error)
}
