package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cryptothreads/internal/uniqueness"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultCooldown    = 15 * time.Minute
	DefaultBackoff     = 2 * time.Second
	DefaultMaxAttempts = 3
)

// Config bounds the retry behaviour of a publisher.
type Config struct {
	// Cooldown is the wait after a rate-limit refusal.
	Cooldown time.Duration
	// Backoff is the first wait after a generic failure; it doubles on
	// each further attempt.
	Backoff     time.Duration
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// PublishResult describes what reached the platform.
type PublishResult struct {
	PostIDs []string
	// Sent counts posts created by this call; Resumed counts posts found in
	// the sent index from an earlier, interrupted attempt.
	Sent    int
	Resumed int
}

// Observer is told about every post attempt outcome.
type Observer interface {
	PostPublished(platform string)
	PostFailed(platform string, rateLimited bool)
}

type nopObserver struct{}

func (nopObserver) PostPublished(string)    {}
func (nopObserver) PostFailed(string, bool) {}

// ThreadPublisher sends a thread as a reply chain: the first post stands
// alone and each later post replies to the one before it.
type ThreadPublisher struct {
	client   MicroBlogClient
	platform string
	cfg      Config
	index    SentIndex
	tracer   trace.Tracer
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

type options struct {
	index    SentIndex
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

type Option func(*options)

// WithSentIndex makes retries of an interrupted thread skip posts that
// already went out. Chat publishers ignore it.
func WithSentIndex(idx SentIndex) Option {
	return func(o *options) { o.index = idx }
}

func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = sleep }
}

func buildOptions(opts []Option) options {
	o := options{observer: nopObserver{}, sleep: sleepCtx}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func NewThreadPublisher(client MicroBlogClient, platform string, cfg Config, tracer trace.Tracer, opts ...Option) *ThreadPublisher {
	o := buildOptions(opts)
	return &ThreadPublisher{
		client:   client,
		platform: platform,
		cfg:      cfg.withDefaults(),
		tracer:   tracer,
		index:    o.index,
		observer: o.observer,
		sleep:    o.sleep,
	}
}

func (p *ThreadPublisher) Platform() string { return p.platform }

// Publish sends every post in order. It returns an error if any post could
// not be sent within its attempts; posts already sent stay up, and the
// result lists them.
func (p *ThreadPublisher) Publish(ctx context.Context, thread []string) (PublishResult, error) {
	ctx, span := p.tracer.Start(ctx, "publisher.publish-thread")
	defer span.End()
	span.SetAttributes(attribute.String("platform", p.platform), attribute.Int("posts", len(thread)))

	var res PublishResult
	if len(thread) == 0 {
		return res, errors.New("empty thread")
	}

	chain := make([]SentKey, 0, len(thread))
	replyTo := ""
	for i, post := range thread {
		fp := uniqueness.Fingerprint(post)
		chain = append(chain, SentKey{ParentID: replyTo, Fingerprint: fp})

		if p.index != nil {
			if id, ok, err := p.index.Lookup(ctx, replyTo, fp); err != nil {
				slog.Warn("sent index lookup failed", "platform", p.platform, "post", i+1, "error", err)
			} else if ok {
				slog.Info("skipping post already sent", "platform", p.platform, "post", i+1, "id", id)
				res.PostIDs = append(res.PostIDs, id)
				res.Resumed++
				replyTo = id
				continue
			}
		}

		id, err := p.send(ctx, i, len(thread), post, replyTo)
		if err != nil {
			span.RecordError(err)
			return res, err
		}
		res.PostIDs = append(res.PostIDs, id)
		res.Sent++

		if p.index != nil {
			if err := p.index.Remember(ctx, replyTo, fp, id); err != nil {
				slog.Warn("sent index write failed", "platform", p.platform, "post", i+1, "error", err)
			}
		}
		replyTo = id
	}

	if p.index != nil {
		// A completed thread is in the ledger now; forget the chain so a
		// later thread that starts with the same lead post is sent fresh.
		if err := p.index.Forget(ctx, chain); err != nil {
			slog.Warn("sent index cleanup failed", "platform", p.platform, "error", err)
		}
	}
	return res, nil
}

func (p *ThreadPublisher) send(ctx context.Context, i, total int, post, replyTo string) (string, error) {
	for attempt := 1; ; attempt++ {
		id, err := p.client.CreatePost(ctx, post, replyTo)
		if err == nil {
			p.observer.PostPublished(p.platform)
			slog.Info("post published", "platform", p.platform, "post", i+1, "of", total, "id", id)
			return id, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		rl, limited := AsRateLimit(err)
		p.observer.PostFailed(p.platform, limited)
		if attempt >= p.cfg.MaxAttempts {
			return "", fmt.Errorf("post %d/%d failed after %d attempts: %w", i+1, total, attempt, err)
		}

		wait := p.cfg.Backoff << (attempt - 1)
		if limited {
			wait = p.cfg.Cooldown
			slog.Warn("rate limited, cooling down", "platform", p.platform, "post", i+1,
				"attempt", attempt, "cooldown", wait, "retry_after", rl.RetryAfter)
		} else {
			slog.Warn("post failed, backing off", "platform", p.platform, "post", i+1,
				"attempt", attempt, "backoff", wait, "error", err)
		}
		if err := p.sleep(ctx, wait); err != nil {
			return "", err
		}
	}
}
