// Package uniqueness decides whether a freshly composed thread repeats
// content that was published recently.
package uniqueness

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"cryptothreads/internal/ledger"
)

// DefaultWindow is how far back published threads block new content.
const DefaultWindow = 48 * time.Hour

// Policy selects how many duplicate posts reject a thread.
type Policy int

const (
	// Majority rejects a thread only when more than half of its posts were
	// already published. Lead and footer posts repeat every cycle, so this
	// is the default.
	Majority Policy = iota
	// Strict rejects a thread if any post was already published.
	Strict
)

func (p Policy) String() string {
	switch p {
	case Strict:
		return "strict"
	default:
		return "majority"
	}
}

// ParsePolicy accepts "majority" or "strict" (case-insensitive).
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "majority":
		return Majority, nil
	case "strict", "any":
		return Strict, nil
	default:
		return Majority, fmt.Errorf("unknown uniqueness policy %q", s)
	}
}

// Fingerprint is the hex SHA-256 of a post's text.
func Fingerprint(post string) string {
	sum := sha256.Sum256([]byte(post))
	return hex.EncodeToString(sum[:])
}

// Fingerprints hashes every post in order.
func Fingerprints(thread []string) []string {
	out := make([]string, len(thread))
	for i, p := range thread {
		out[i] = Fingerprint(p)
	}
	return out
}

// Verdict explains a gate decision.
type Verdict struct {
	Total      int
	Duplicates int
	// DuplicateIndexes are positions in the thread whose fingerprint was
	// seen in the window.
	DuplicateIndexes []int
	Unique           bool
}

// Gate compares candidate threads with recent history.
type Gate struct {
	Window time.Duration
	Policy Policy
}

func NewGate(window time.Duration, policy Policy) Gate {
	if window <= 0 {
		window = DefaultWindow
	}
	return Gate{Window: window, Policy: policy}
}

// recent collects fingerprints of entries no older than the window at now.
func (g Gate) recent(history []ledger.Entry, now time.Time) map[string]struct{} {
	seen := make(map[string]struct{})
	for _, e := range history {
		if now.Sub(e.Timestamp) > g.Window {
			continue
		}
		for _, fp := range e.Fingerprints {
			seen[fp] = struct{}{}
		}
	}
	return seen
}

// Evaluate is pure: the same thread, history and now always give the same
// verdict. An empty thread is never unique.
func (g Gate) Evaluate(thread []string, history []ledger.Entry, now time.Time) Verdict {
	v := Verdict{Total: len(thread)}
	if len(thread) == 0 {
		return v
	}
	seen := g.recent(history, now)
	for i, post := range thread {
		if _, dup := seen[Fingerprint(post)]; dup {
			v.Duplicates++
			v.DuplicateIndexes = append(v.DuplicateIndexes, i)
		}
	}
	switch g.Policy {
	case Strict:
		v.Unique = v.Duplicates == 0
	default:
		v.Unique = 2*v.Duplicates <= v.Total
	}
	return v
}

// IsUnique reports whether thread may be published.
func (g Gate) IsUnique(thread []string, history []ledger.Entry, now time.Time) bool {
	return g.Evaluate(thread, history, now).Unique
}

// RecentInfluencers returns handles referenced by entries inside window.
func RecentInfluencers(history []ledger.Entry, now time.Time, window time.Duration) map[string]bool {
	used := make(map[string]bool)
	for _, e := range history {
		if now.Sub(e.Timestamp) > window {
			continue
		}
		for _, h := range e.Influencers {
			used[strings.ToLower(h)] = true
		}
	}
	return used
}
