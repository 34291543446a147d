package influencer

import (
	"testing"
	"time"

	"cryptothreads/internal/ledger"

	"github.com/stretchr/testify/require"
)

func TestScoreOrdersByReach(t *testing.T) {
	ripple := Influencer{"@Ripple", 2_000_000, 5, 5, 4}
	joel := Influencer{"@JoelKatz", 300_000, 3, 4, 2}
	require.InDelta(t, 2.5+1.5+0.5+0.4, ripple.Score(), 1e-9)
	require.Greater(t, ripple.Score(), joel.Score())

	capped := Influencer{"@big", 50_000_000, 0, 0, 0}
	require.InDelta(t, 2.5, capped.Score(), 1e-9)
}

func TestCandidatesDedup(t *testing.T) {
	p := NewPicker(map[string][]Influencer{
		"AAA": {{"@shared", 100, 1, 1, 1}, {"@a", 100, 5, 1, 1}},
		"BBB": {{"@Shared", 100, 1, 1, 1}},
	}, 0)
	got := p.Candidates([]string{"aaa", "bbb"})
	require.Len(t, got, 2)
	require.Equal(t, "@a", got[0].Handle)
}

func TestPickRotatesRecentHandles(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	p := NewPicker(nil, 0)
	history := []ledger.Entry{
		{Timestamp: now.Add(-time.Hour), Influencers: []string{"@ripple"}},
		{Timestamp: now.Add(-72 * time.Hour), Influencers: []string{"@XRPcryptowolf"}},
	}

	got := p.Pick([]string{"XRP"}, history, now, 3)
	require.Equal(t, []string{"@XRPcryptowolf", "@JoelKatz", "@Ripple"}, got)

	require.Len(t, p.Pick([]string{"XRP", "HBAR", "XLM"}, nil, now, 3), 3)
	require.Nil(t, p.Pick([]string{"XRP"}, nil, now, 0))
	require.Empty(t, p.Pick([]string{"NOPE"}, nil, now, 3))
}
