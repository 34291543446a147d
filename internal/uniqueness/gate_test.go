package uniqueness

import (
	"testing"
	"time"

	"cryptothreads/internal/ledger"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var gateNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func thread(posts ...string) []string { return posts }

func entryFor(ts time.Time, posts ...string) ledger.Entry {
	return ledger.Entry{Timestamp: ts, Fingerprints: Fingerprints(posts)}
}

func TestFingerprintIsFixedLengthHex(t *testing.T) {
	fp := Fingerprint("XRP: $0.52 (+3.10% 24h)")
	if len(fp) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(fp))
	}
	if fp != Fingerprint("XRP: $0.52 (+3.10% 24h)") {
		t.Fatal("fingerprint must be stable")
	}
	if fp == Fingerprint("XRP: $0.53 (+3.10% 24h)") {
		t.Fatal("different posts must not collide")
	}
}

func TestFullOverlapInsideWindowIsRejected(t *testing.T) {
	th := thread("lead", "xrp", "hbar", "footer")
	history := []ledger.Entry{entryFor(gateNow.Add(-6*time.Hour), th...)}

	g := NewGate(48*time.Hour, Majority)
	if g.IsUnique(th, history, gateNow) {
		t.Fatal("identical thread within window must be rejected")
	}
}

func TestStaleOverlapIsAccepted(t *testing.T) {
	th := thread("lead", "xrp", "hbar", "footer")
	history := []ledger.Entry{entryFor(gateNow.Add(-49*time.Hour), th...)}

	g := NewGate(48*time.Hour, Majority)
	if !g.IsUnique(th, history, gateNow) {
		t.Fatal("duplicates older than the window must not block")
	}
}

func TestMajorityVersusStrict(t *testing.T) {
	history := []ledger.Entry{entryFor(gateNow.Add(-time.Hour), "lead", "footer")}

	cases := []struct {
		name       string
		thread     []string
		policy     Policy
		wantUnique bool
		wantDups   int
	}{
		{"majority tolerates recurring header and footer", thread("lead", "a", "b", "footer", "c"), Majority, true, 2},
		{"majority tolerates exactly half", thread("lead", "a", "b", "footer"), Majority, true, 2},
		{"majority rejects more than half", thread("lead", "footer", "a"), Majority, false, 2},
		{"strict rejects any duplicate", thread("lead", "a", "b", "c"), Strict, false, 1},
		{"strict accepts fresh thread", thread("a", "b"), Strict, true, 0},
		{"empty thread is never unique", thread(), Majority, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := NewGate(24*time.Hour, tc.policy).Evaluate(tc.thread, history, gateNow)
			if v.Unique != tc.wantUnique || v.Duplicates != tc.wantDups {
				t.Fatalf("got unique=%v dups=%d, want unique=%v dups=%d", v.Unique, v.Duplicates, tc.wantUnique, tc.wantDups)
			}
		})
	}
}

func TestEvaluateReportsDuplicatePositions(t *testing.T) {
	history := []ledger.Entry{entryFor(gateNow, "b", "d")}
	v := NewGate(0, Majority).Evaluate(thread("a", "b", "c", "d"), history, gateNow)
	require.Equal(t, []int{1, 3}, v.DuplicateIndexes)
	require.Equal(t, DefaultWindow, NewGate(0, Majority).Window)
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": Majority, "MAJORITY": Majority, "strict": Strict, "any": Strict} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParsePolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("sometimes"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestRecentInfluencers(t *testing.T) {
	history := []ledger.Entry{
		{Timestamp: gateNow.Add(-72 * time.Hour), Influencers: []string{"@Old"}},
		{Timestamp: gateNow.Add(-12 * time.Hour), Influencers: []string{"@CoinBureau"}},
	}
	used := RecentInfluencers(history, gateNow, 48*time.Hour)
	if !used["@coinbureau"] || used["@old"] {
		t.Fatalf("unexpected used set %v", used)
	}
}

// Evaluate never depends on anything but its inputs.
func TestEvaluateDeterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		vocab := []string{"lead", "xrp", "hbar", "xlm", "sui", "ondo", "video", "cta"}
		post := rapid.SampledFrom(vocab)

		th := rapid.SliceOfN(post, 0, 8).Draw(rt, "thread")
		var history []ledger.Entry
		for i := rapid.IntRange(0, 5).Draw(rt, "entries"); i > 0; i-- {
			age := time.Duration(rapid.IntRange(0, 96).Draw(rt, "ageHours")) * time.Hour
			history = append(history, entryFor(gateNow.Add(-age), rapid.SliceOfN(post, 1, 6).Draw(rt, "posts")...))
		}
		policy := Policy(rapid.IntRange(0, 1).Draw(rt, "policy"))
		g := NewGate(48*time.Hour, policy)

		first := g.Evaluate(th, history, gateNow)
		second := g.Evaluate(th, history, gateNow)
		require.Equal(rt, first, second)
		require.Equal(rt, first.Unique, g.IsUnique(th, history, gateNow))
	})
}
