package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Limiter is satisfied by ratebudget.Tracker.
type Limiter interface {
	Acquire(ctx context.Context, service string) error
}

// ErrNoContent is returned by sources that answered but had nothing
// relevant to offer.
var ErrNoContent = errors.New("provider: no content")

// Quote is one coin's market snapshot.
type Quote struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name"`
	PriceUSD     float64   `json:"price_usd"`
	Change24hPct float64   `json:"change_24h_pct"`
	Volume24h    float64   `json:"volume_24h"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type FearGreedPoint struct {
	Value          int           `json:"value"`
	Classification string        `json:"classification"`
	Timestamp      time.Time     `json:"timestamp"`
	UpdatesIn      time.Duration `json:"updates_in"`
}

// ContentItem is a headline or post from a news, RSS or Reddit source.
type ContentItem struct {
	Source       string         `json:"source"`
	SourceItemID string         `json:"source_item_id"`
	Title        string         `json:"title"`
	URL          string         `json:"url"`
	Excerpt      string         `json:"excerpt,omitempty"`
	Author       string         `json:"author,omitempty"`
	PublishedAt  time.Time      `json:"published_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Video is the latest upload of a channel.
type Video struct {
	ChannelID   string    `json:"channel_id"`
	Channel     string    `json:"channel"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// OnChainSnapshot is a network activity reading. Score is in [-1, 1],
// positive meaning busier than usual.
type OnChainSnapshot struct {
	ProviderKey string    `json:"provider_key"`
	Symbol      string    `json:"symbol"`
	FetchedAt   time.Time `json:"fetched_at"`
	Score       float64   `json:"score"`
	Summary     string    `json:"summary"`
}

// Activity buckets the score into a word.
func (s OnChainSnapshot) Activity() string {
	switch {
	case s.Score >= 0.25:
		return "high"
	case s.Score <= -0.25:
		return "low"
	default:
		return "normal"
	}
}

// Line is the summary shown in a post, flagging unusual activity.
func (s OnChainSnapshot) Line() string {
	if a := s.Activity(); a != "normal" {
		return s.Summary + " (" + a + " activity)"
	}
	return s.Summary
}

// RateLimitError is returned when an upstream API refused the call for
// exceeding its rate limit.
type RateLimitError struct {
	Service    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited, retry after %s", e.Service, e.RetryAfter)
}

// StatusError is a non-2xx answer other than a rate limit.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Service, e.Code, e.Body)
}

// sanitizeText collapses whitespace and truncates to maxLen bytes without
// splitting a rune.
func sanitizeText(in string, maxLen int) string {
	in = strings.Join(strings.Fields(in), " ")
	if maxLen <= 0 || len(in) <= maxLen {
		return in
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(in[cut]) {
		cut--
	}
	return in[:cut]
}
