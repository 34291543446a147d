package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// DefaultChatRetryAfter is used when the chat platform rate limits without
// saying for how long.
const DefaultChatRetryAfter = 60 * time.Second

// ChatPublisher posts the digest as a single message.
type ChatPublisher struct {
	client    ChatClient
	platform  string
	channelID string
	cfg       Config
	tracer    trace.Tracer
	observer  Observer
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewChatPublisher(client ChatClient, platform, channelID string, cfg Config, tracer trace.Tracer, opts ...Option) *ChatPublisher {
	o := buildOptions(opts)
	return &ChatPublisher{
		client:    client,
		platform:  platform,
		channelID: channelID,
		cfg:       cfg.withDefaults(),
		tracer:    tracer,
		observer:  o.observer,
		sleep:     o.sleep,
	}
}

func (p *ChatPublisher) Platform() string { return p.platform }

// Publish sends message, waiting the platform's retry hint on rate limits
// and backing off on other failures.
func (p *ChatPublisher) Publish(ctx context.Context, message string) error {
	ctx, span := p.tracer.Start(ctx, "publisher.publish-chat")
	defer span.End()

	for attempt := 1; ; attempt++ {
		err := p.client.Send(ctx, p.channelID, message)
		if err == nil {
			p.observer.PostPublished(p.platform)
			slog.Info("chat message sent", "platform", p.platform, "channel", p.channelID, "chars", len(message))
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rl, limited := AsRateLimit(err)
		p.observer.PostFailed(p.platform, limited)
		if attempt >= p.cfg.MaxAttempts {
			span.RecordError(err)
			return fmt.Errorf("chat send failed after %d attempts: %w", attempt, err)
		}

		wait := p.cfg.Backoff << (attempt - 1)
		if limited {
			wait = rl.RetryAfter
			if wait <= 0 {
				wait = DefaultChatRetryAfter
			}
		}
		slog.Warn("chat send failed, retrying", "platform", p.platform, "attempt", attempt,
			"rate_limited", limited, "wait", wait, "error", err)
		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
	}
}
