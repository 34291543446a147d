// Package publisher sends composed content to the micro-blog and chat
// platforms, retrying with backoff and cooling down on rate limits.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// MicroBlogClient creates one post, optionally as a reply, and returns the
// platform-assigned post identifier.
type MicroBlogClient interface {
	CreatePost(ctx context.Context, text, replyTo string) (string, error)
}

// ChatClient sends one message to a channel.
type ChatClient interface {
	Send(ctx context.Context, channelID, text string) error
}

// RateLimitError is returned by clients when the platform refused a call
// for exceeding its rate limit. RetryAfter is zero when the platform gave
// no hint.
type RateLimitError struct {
	Platform   string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	msg := e.Platform + " rate limited"
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// AsRateLimit unwraps a *RateLimitError from err.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP
// date.
func retryAfter(h http.Header, now time.Time) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// resetAfter reads an epoch-seconds reset header such as x-rate-limit-reset.
func resetAfter(h http.Header, name string, now time.Time) time.Duration {
	v := h.Get(name)
	if v == "" {
		return 0
	}
	epoch, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	if reset := time.Unix(epoch, 0); reset.After(now) {
		return reset.Sub(now)
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
