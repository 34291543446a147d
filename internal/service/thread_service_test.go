package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"cryptothreads/internal/ledger"
	"cryptothreads/internal/provider"
	"cryptothreads/internal/publisher"
	"cryptothreads/internal/ratebudget"
	"cryptothreads/internal/sentiment"
	"cryptothreads/internal/store"
	"cryptothreads/internal/uniqueness"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

type fakeMarket struct {
	mu     sync.Mutex
	calls  int
	quotes map[string]provider.Quote
	err    error
}

func (f *fakeMarket) Quotes(_ context.Context, ids []string) (map[string]provider.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]provider.Quote)
	for _, id := range ids {
		if q, ok := f.quotes[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

type fakeFinder struct {
	items map[string]provider.ContentItem
}

func (f fakeFinder) Find(_ context.Context, coin provider.Coin) (provider.ContentItem, error) {
	item, ok := f.items[coin.ID]
	if !ok {
		return provider.ContentItem{}, provider.ErrNoContent
	}
	return item, nil
}

type fakeThread struct {
	threads [][]string
	err     error
	sent    int
}

func (f *fakeThread) Platform() string { return "x" }

func (f *fakeThread) Publish(_ context.Context, thread []string) (publisher.PublishResult, error) {
	f.threads = append(f.threads, thread)
	if f.err != nil {
		ids := make([]string, f.sent)
		for i := range ids {
			ids[i] = "p"
		}
		return publisher.PublishResult{PostIDs: ids, Sent: f.sent}, f.err
	}
	ids := make([]string, len(thread))
	for i := range thread {
		ids[i] = "p"
	}
	return publisher.PublishResult{PostIDs: ids, Sent: len(thread)}, nil
}

type fakeChat struct {
	messages []string
}

func (f *fakeChat) Platform() string { return "telegram" }

func (f *fakeChat) Publish(_ context.Context, message string) error {
	f.messages = append(f.messages, message)
	return nil
}

type labelScorer struct {
	calls int
}

func (s *labelScorer) Score(_ context.Context, items []sentiment.Item) ([]sentiment.Score, error) {
	s.calls++
	out := make([]sentiment.Score, len(items))
	for i, it := range items {
		out[i] = sentiment.Score{ID: it.ID, Label: sentiment.Bullish}
	}
	return out, nil
}

type fixture struct {
	svc    *ThreadService
	market *fakeMarket
	thread *fakeThread
	chat   *fakeChat
	ledger *ledger.KVLedger
	quota  *ratebudget.Quota
	kv     *store.Memory
	now    *time.Time
}

func newFixture(t *testing.T, quotaLimit int) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	kv := store.NewMemory()

	f := &fixture{
		market: &fakeMarket{quotes: map[string]provider.Quote{
			"bitcoin":  {ID: "bitcoin", PriceUSD: 64000, Change24hPct: 1.5, Volume24h: 2.1e10},
			"ethereum": {ID: "ethereum", PriceUSD: 3100, Change24hPct: -0.8, Volume24h: 9e9},
		}},
		thread: &fakeThread{},
		chat:   &fakeChat{},
		ledger: ledger.NewKVLedger(kv, clock),
		quota:  ratebudget.NewQuota(kv, "microblog", quotaLimit, clock),
		kv:     kv,
		now:    &now,
	}
	f.svc = NewThreadService(trace.NewNoopTracerProvider().Tracer("test"), Deps{
		Market: f.market,
		Headlines: fakeFinder{items: map[string]provider.ContentItem{
			"bitcoin": {Source: "newsapi", Title: "Bitcoin ETF inflows hit record", URL: "https://example.com/btc"},
		}},
		Ledger: f.ledger,
		Gate:   uniqueness.NewGate(48*time.Hour, uniqueness.Majority),
		Quota:  f.quota,
		Thread: f.thread,
		Chat:   f.chat,
	}, Options{Coins: []string{"bitcoin", "ethereum"}, Now: clock})
	return f
}

func TestRunCyclePublishesRecordsAndSendsDigest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 500)

	res, err := f.svc.RunCycle(ctx)
	require.NoError(t, err)
	require.True(t, res.Published)
	require.True(t, res.ChatSent)
	require.Empty(t, res.Skipped)
	require.NotEmpty(t, res.ID)
	require.Equal(t, 3, res.Posts)

	require.Len(t, f.thread.threads, 1)
	thread := f.thread.threads[0]
	require.Contains(t, thread[1], "Bitcoin (BTC)")
	require.Contains(t, thread[1], "Bitcoin ETF inflows hit record")
	require.Contains(t, thread[2], "No new updates for Ethereum today")

	entries, err := f.ledger.Load(ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, uniqueness.Fingerprints(thread), entries[0].Fingerprints)

	left, err := f.quota.Remaining(ctx)
	require.NoError(t, err)
	require.Equal(t, 497, left)

	require.Len(t, f.chat.messages, 1)
	require.Contains(t, f.chat.messages[0], "**Crypto Market Update")
}

func TestRunCycleSkipsDuplicateAndServesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 500)

	_, err := f.svc.RunCycle(ctx)
	require.NoError(t, err)

	*f.now = f.now.Add(30 * time.Minute)
	res, err := f.svc.RunCycle(ctx)
	require.NoError(t, err)
	require.False(t, res.Published)
	require.Equal(t, SkipDuplicate, res.Skipped)
	require.Equal(t, 2, res.Duplicates)

	require.Len(t, f.thread.threads, 1)
	require.Equal(t, 1, f.market.calls)
}

func TestRunCyclePublishFailureIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 500)
	f.thread.err = errors.New("post 2/3 failed after 3 attempts")
	f.thread.sent = 1

	res, err := f.svc.RunCycle(ctx)
	require.Error(t, err)
	require.False(t, res.Published)
	require.Len(t, res.PostIDs, 1)
	require.Empty(t, f.chat.messages)

	entries, err := f.ledger.Load(ctx, time.Hour)
	require.NoError(t, err)
	require.Empty(t, entries)

	left, err := f.quota.Remaining(ctx)
	require.NoError(t, err)
	require.Equal(t, 499, left)
}

func TestRunCycleQuotaExhausted(t *testing.T) {
	f := newFixture(t, 2)

	res, err := f.svc.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, SkipQuota, res.Skipped)
	require.Empty(t, f.thread.threads)
}

func TestRunCycleMarketFailureStillPublishes(t *testing.T) {
	f := newFixture(t, 500)
	f.market.err = &provider.RateLimitError{Service: provider.CoinGeckoService, RetryAfter: time.Minute}

	res, err := f.svc.RunCycle(context.Background())
	require.NoError(t, err)
	require.True(t, res.Published)
	require.NotEmpty(t, res.Errors)
	require.Contains(t, f.thread.threads[0][1], "Price unavailable")
	require.Contains(t, f.thread.threads[0][2], "Price unavailable")
}

func TestRunCycleLabelsOnlyRealHeadlines(t *testing.T) {
	f := newFixture(t, 500)
	scorer := &labelScorer{}
	f.svc.deps.Sentiment = scorer

	_, err := f.svc.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, scorer.calls)
	thread := f.thread.threads[0]
	require.Contains(t, thread[1], "News (bullish)")
	require.False(t, strings.Contains(thread[2], "bullish"))
}

func TestPreviewDoesNotPublish(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 500)

	p, err := f.svc.Preview(ctx)
	require.NoError(t, err)
	require.Len(t, p.Thread, 3)
	require.NotEmpty(t, p.Message)
	require.Empty(t, f.thread.threads)
	require.Empty(t, f.chat.messages)

	left, err := f.quota.Remaining(ctx)
	require.NoError(t, err)
	require.Equal(t, 500, left)
}

func TestHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 500)
	base := *f.now
	require.NoError(t, f.ledger.Append(ctx, ledger.Entry{Timestamp: base.Add(-2 * time.Hour), Fingerprints: []string{"a"}}))
	require.NoError(t, f.ledger.Append(ctx, ledger.Entry{Timestamp: base.Add(-time.Hour), Fingerprints: []string{"b"}}))

	got, err := f.svc.History(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, []string{"b"}, got[0].Fingerprints)
}

// chainClient numbers successful posts p1, p2, ... and fails the calls
// whose 1-based position is in fail.
type chainClient struct {
	fail  map[int]bool
	calls int
	ids   int
	roots int
	posts []string
}

func (c *chainClient) CreatePost(_ context.Context, text, replyTo string) (string, error) {
	c.calls++
	if c.fail[c.calls] {
		return "", errors.New("upstream 503")
	}
	c.ids++
	if replyTo == "" {
		c.roots++
	}
	c.posts = append(c.posts, text)
	return fmt.Sprintf("p%d", c.ids), nil
}

// useChainPublisher swaps the fake thread poster for a real reply-chain
// publisher backed by the fixture's store.
func (f *fixture) useChainPublisher(client *chainClient) {
	idx := publisher.NewKVSentIndex(f.kv, "x", 48*time.Hour)
	f.svc.deps.Thread = publisher.NewThreadPublisher(client, "x", publisher.Config{MaxAttempts: 3},
		trace.NewNoopTracerProvider().Tracer("test"),
		publisher.WithSentIndex(idx),
		publisher.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	f.svc.deps.Pending = f.kv
}

func TestRunCycleResumesInterruptedThread(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 500)
	client := &chainClient{fail: map[int]bool{2: true, 3: true, 4: true}}
	f.useChainPublisher(client)

	first, err := f.svc.RunCycle(ctx)
	require.Error(t, err)
	require.Equal(t, []string{"p1"}, first.PostIDs)
	require.Empty(t, f.chat.messages)

	*f.now = f.now.Add(4 * time.Hour)
	second, err := f.svc.RunCycle(ctx)
	require.NoError(t, err)
	require.True(t, second.Published)
	require.Equal(t, first.ID, second.ResumedFrom)
	require.Equal(t, 1, second.Resumed)
	require.Equal(t, []string{"p1", "p2", "p3"}, second.PostIDs)
	require.Equal(t, 1, client.roots, "resumed thread must not start a second chain")

	entries, err := f.ledger.Load(ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, uniqueness.Fingerprints(client.posts), entries[0].Fingerprints)

	left, err := f.quota.Remaining(ctx)
	require.NoError(t, err)
	require.Equal(t, 497, left)
	require.Len(t, f.chat.messages, 1)

	_, err = f.kv.Get(ctx, "pending:x")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunCycleComposesFreshWhenPendingExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 500)
	client := &chainClient{fail: map[int]bool{2: true, 3: true, 4: true}}
	f.useChainPublisher(client)

	_, err := f.svc.RunCycle(ctx)
	require.Error(t, err)

	*f.now = f.now.Add(DefaultPendingMaxAge + time.Hour)
	res, err := f.svc.RunCycle(ctx)
	require.NoError(t, err)
	require.True(t, res.Published)
	require.Empty(t, res.ResumedFrom)
	require.Zero(t, res.Resumed)
	require.Equal(t, 2, client.roots)
	require.NotEqual(t, client.posts[0], client.posts[1], "expected a newly composed lead post")
}

func TestRunCycleNothingSentLeavesNoPendingThread(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 500)
	client := &chainClient{fail: map[int]bool{1: true, 2: true, 3: true}}
	f.useChainPublisher(client)

	res, err := f.svc.RunCycle(ctx)
	require.Error(t, err)
	require.Empty(t, res.PostIDs)

	_, err = f.kv.Get(ctx, "pending:x")
	require.ErrorIs(t, err, store.ErrNotFound)
}
