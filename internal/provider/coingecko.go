package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	coingeckoBaseURL = "https://api.coingecko.com/api/v3"

	// CoinGeckoService is the rate budget name for CoinGecko calls.
	CoinGeckoService = "coingecko"

	// DefaultCoinGeckoRetryAfter applies when a 429 carries no Retry-After.
	DefaultCoinGeckoRetryAfter = 180 * time.Second
	coingeckoBackoffUnit       = 15 * time.Second
	coingeckoMaxAttempts       = 3
)

// CoinGeckoProvider fetches market quotes from the CoinGecko free API.
type CoinGeckoProvider struct {
	client      *http.Client
	baseURL     string
	tracer      trace.Tracer
	limiter     Limiter
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
}

// NewCoinGeckoProvider creates a provider whose calls go through limiter
// under the CoinGeckoService budget. limiter may be nil.
func NewCoinGeckoProvider(tracer trace.Tracer, limiter Limiter) *CoinGeckoProvider {
	return &CoinGeckoProvider{
		client:      &http.Client{Timeout: 30 * time.Second},
		baseURL:     coingeckoBaseURL,
		tracer:      tracer,
		limiter:     limiter,
		maxAttempts: coingeckoMaxAttempts,
		sleep:       sleepCtx,
		now:         time.Now,
	}
}

// Quotes fetches price, 24h change and 24h volume for ids in a single call.
// Ids CoinGecko does not know are absent from the result.
func (p *CoinGeckoProvider) Quotes(ctx context.Context, ids []string) (map[string]Quote, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.quotes")
	defer span.End()
	span.SetAttributes(attribute.Int("coins", len(ids)))

	if len(ids) == 0 {
		return map[string]Quote{}, nil
	}
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("ids", strings.Join(ids, ","))
	q.Set("price_change_percentage", "24h")
	u := fmt.Sprintf("%s/coins/markets?%s", p.baseURL, q.Encode())

	body, err := p.doRequest(ctx, u)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetch quotes: %w", err)
	}

	var rows []struct {
		ID                string   `json:"id"`
		Symbol            string   `json:"symbol"`
		Name              string   `json:"name"`
		CurrentPrice      *float64 `json:"current_price"`
		PriceChangePct24h float64  `json:"price_change_percentage_24h"`
		TotalVolume       float64  `json:"total_volume"`
		LastUpdated       string   `json:"last_updated"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("parse quotes: %w", err)
	}

	out := make(map[string]Quote, len(rows))
	for _, r := range rows {
		if r.CurrentPrice == nil {
			continue
		}
		updated, err := time.Parse(time.RFC3339, r.LastUpdated)
		if err != nil {
			updated = p.now()
		}
		out[r.ID] = Quote{
			ID:           r.ID,
			Symbol:       strings.ToUpper(r.Symbol),
			Name:         r.Name,
			PriceUSD:     *r.CurrentPrice,
			Change24hPct: r.PriceChangePct24h,
			Volume24h:    r.TotalVolume,
			UpdatedAt:    updated.UTC(),
		}
	}
	return out, nil
}

// doRequest retries 429s after the server's Retry-After and other failures
// after 2^attempt * 15s, for at most maxAttempts calls.
func (p *CoinGeckoProvider) doRequest(ctx context.Context, u string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		body, err := p.once(ctx, u)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if attempt == p.maxAttempts {
			break
		}

		wait := coingeckoBackoffUnit << attempt
		var rl *RateLimitError
		if errors.As(err, &rl) {
			wait = rl.RetryAfter
		}
		slog.Warn("coingecko request failed, retrying", "attempt", attempt, "wait", wait, "error", err)
		if err := p.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (p *CoinGeckoProvider) once(ctx context.Context, u string) ([]byte, error) {
	if p.limiter != nil {
		if err := p.limiter.Acquire(ctx, CoinGeckoService); err != nil {
			return nil, fmt.Errorf("rate budget wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Service: CoinGeckoService, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), DefaultCoinGeckoRetryAfter)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{Service: CoinGeckoService, Code: resp.StatusCode, Body: string(body)}
	}

	return io.ReadAll(resp.Body)
}

func parseRetryAfter(v string, fallback time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return fallback
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
