package publisher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"cryptothreads/internal/store"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

var tracer = trace.NewNoopTracerProvider().Tracer("test")

type call struct {
	text    string
	replyTo string
}

// scriptedClient returns errs in order for successive CreatePost calls, then
// succeeds. Ids are "p1", "p2", ... in order of success.
type scriptedClient struct {
	mu    sync.Mutex
	errs  []error
	calls []call
	ids   int
}

func (c *scriptedClient) CreatePost(_ context.Context, text, replyTo string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call{text: text, replyTo: replyTo})
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return "", err
		}
	}
	c.ids++
	return fmt.Sprintf("p%d", c.ids), nil
}

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

type countingObserver struct {
	published, failed, limited int
}

func (o *countingObserver) PostPublished(string) { o.published++ }
func (o *countingObserver) PostFailed(_ string, rl bool) {
	o.failed++
	if rl {
		o.limited++
	}
}

func TestPublishChainsReplies(t *testing.T) {
	client := &scriptedClient{}
	p := NewThreadPublisher(client, "x", Config{}, tracer)

	res, err := p.Publish(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2", "p3"}, res.PostIDs)
	require.Equal(t, 3, res.Sent)
	require.Equal(t, []call{{"a", ""}, {"b", "p1"}, {"c", "p2"}}, client.calls)
}

func TestPublishCoolsDownOnRateLimit(t *testing.T) {
	// First post ok, second refused once for rate limit, then everything ok.
	client := &scriptedClient{errs: []error{nil, &RateLimitError{Platform: "x"}}}
	sleeper := &sleepRecorder{}
	obs := &countingObserver{}
	p := NewThreadPublisher(client, "x", Config{}, tracer, WithSleeper(sleeper.sleep), WithObserver(obs))

	res, err := p.Publish(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Equal(t, []time.Duration{DefaultCooldown}, sleeper.waits)
	require.Equal(t, []string{"p1", "p2", "p3"}, res.PostIDs)
	// the third post replies to the retried second post
	require.Equal(t, call{"c", "p2"}, client.calls[len(client.calls)-1])
	require.Equal(t, 3, obs.published)
	require.Equal(t, 1, obs.limited)
}

func TestPublishBacksOffExponentially(t *testing.T) {
	boom := errors.New("503")
	client := &scriptedClient{errs: []error{boom, boom}}
	sleeper := &sleepRecorder{}
	p := NewThreadPublisher(client, "x", Config{Backoff: time.Second}, tracer, WithSleeper(sleeper.sleep))

	res, err := p.Publish(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Sent)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.waits)
}

func TestPublishAbortsAfterMaxAttempts(t *testing.T) {
	boom := errors.New("down")
	client := &scriptedClient{errs: []error{nil, boom, boom, boom}}
	sleeper := &sleepRecorder{}
	p := NewThreadPublisher(client, "x", Config{}, tracer, WithSleeper(sleeper.sleep))

	res, err := p.Publish(context.Background(), []string{"a", "b", "c"})
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"p1"}, res.PostIDs)
	require.Len(t, client.calls, 4)
	require.Len(t, sleeper.waits, 2)
}

func TestPublishEmptyThread(t *testing.T) {
	p := NewThreadPublisher(&scriptedClient{}, "x", Config{}, tracer)
	_, err := p.Publish(context.Background(), nil)
	require.Error(t, err)
}

func TestPublishStopsOnCancel(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("down")}}
	ctx, cancel := context.WithCancel(context.Background())
	p := NewThreadPublisher(client, "x", Config{}, tracer, WithSleeper(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}))

	_, err := p.Publish(ctx, []string{"a"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestPublishResumesFromSentIndex(t *testing.T) {
	kv := store.NewMemory()
	idx := NewKVSentIndex(kv, "x", time.Hour)
	boom := errors.New("down")
	thread := []string{"a", "b", "c"}

	first := &scriptedClient{errs: []error{nil, boom, boom, boom}}
	p := NewThreadPublisher(first, "x", Config{}, tracer, WithSentIndex(idx), WithSleeper((&sleepRecorder{}).sleep))
	_, err := p.Publish(context.Background(), thread)
	require.Error(t, err)

	second := &scriptedClient{ids: 10}
	p = NewThreadPublisher(second, "x", Config{}, tracer, WithSentIndex(idx))
	res, err := p.Publish(context.Background(), thread)
	require.NoError(t, err)
	require.Equal(t, 1, res.Resumed)
	require.Equal(t, 2, res.Sent)
	require.Equal(t, []string{"p1", "p11", "p12"}, res.PostIDs)
	require.Equal(t, call{"b", "p1"}, second.calls[0])

	// a completed thread leaves nothing behind
	require.Equal(t, 0, kv.Len())
}

func TestSentIndexExpiry(t *testing.T) {
	kv := store.NewMemory()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	idx := NewKVSentIndex(kv, "x", time.Hour)
	idx.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, idx.Remember(ctx, "", "fp1", "id1"))
	require.NoError(t, idx.Remember(ctx, "id1", "fp2", "id2"))

	id, ok, err := idx.Lookup(ctx, "", "fp1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "id1", id)

	now = now.Add(2 * time.Hour)
	_, ok, err = idx.Lookup(ctx, "", "fp1")
	require.NoError(t, err)
	require.False(t, ok)

	n, err := idx.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 0, kv.Len())
}

type undeletableKV struct {
	store.KV
}

func (undeletableKV) Delete(context.Context, string) error {
	return errors.New("read-only replica")
}

func TestSentIndexLogsFailedStaleDelete(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	idx := NewKVSentIndex(undeletableKV{store.NewMemory()}, "x", time.Hour)
	idx.now = func() time.Time { return now }
	require.NoError(t, idx.Remember(ctx, "", "fp1", "id1"))

	now = now.Add(2 * time.Hour)
	_, ok, err := idx.Lookup(ctx, "", "fp1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Contains(t, logs.String(), "dropping stale record failed")
	require.Contains(t, logs.String(), "read-only replica")
}

type scriptedChat struct {
	errs  []error
	sends int
}

func (c *scriptedChat) Send(context.Context, string, string) error {
	c.sends++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return err
	}
	return nil
}

func TestChatPublisherHonoursRetryAfter(t *testing.T) {
	chat := &scriptedChat{errs: []error{
		&RateLimitError{Platform: "telegram", RetryAfter: 7 * time.Second},
		&RateLimitError{Platform: "telegram"},
	}}
	sleeper := &sleepRecorder{}
	p := NewChatPublisher(chat, "telegram", "@chan", Config{}, tracer, WithSleeper(sleeper.sleep))

	require.NoError(t, p.Publish(context.Background(), "digest"))
	require.Equal(t, 3, chat.sends)
	require.Equal(t, []time.Duration{7 * time.Second, DefaultChatRetryAfter}, sleeper.waits)
}

func TestChatPublisherGivesUp(t *testing.T) {
	boom := errors.New("bad gateway")
	chat := &scriptedChat{errs: []error{boom, boom, boom}}
	p := NewChatPublisher(chat, "telegram", "1", Config{}, tracer, WithSleeper((&sleepRecorder{}).sleep))
	require.ErrorIs(t, p.Publish(context.Background(), "digest"), boom)
	require.Equal(t, 3, chat.sends)
}

func TestLogClientSatisfiesBothInterfaces(t *testing.T) {
	c := NewLogClient()
	var _ MicroBlogClient = c
	var _ ChatClient = c

	p := NewThreadPublisher(c, "log", Config{}, tracer)
	res, err := p.Publish(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	posts := c.Posts()
	require.Len(t, posts, 2)
	require.Equal(t, res.PostIDs[0], posts[1].ReplyTo)
}
