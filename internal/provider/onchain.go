package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OnChainSource reads one network's activity.
type OnChainSource interface {
	Key() string
	FetchSnapshot(ctx context.Context) (*OnChainSnapshot, error)
}

// NewOnChainSources builds every on-chain source keyed by Coin.OnChain.
func NewOnChainSources(tracer trace.Tracer) map[string]OnChainSource {
	sources := []OnChainSource{
		NewBTCMempoolOnChainProvider(tracer, ""),
		NewETHBlockscoutOnChainProvider(tracer, ""),
		NewXRPScanOnChainProvider(tracer, ""),
		NewADAKoiosOnChainProvider(tracer, ""),
	}
	out := make(map[string]OnChainSource, len(sources))
	for _, s := range sources {
		out[s.Key()] = s
	}
	return out
}

// explorer is the JSON GET client shared by the block explorer sources.
type explorer struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	key     string
}

func newExplorer(tracer trace.Tracer, key, baseURL, fallback string) explorer {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = fallback
	}
	return explorer{
		client:  &http.Client{Timeout: 20 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		tracer:  tracer,
		key:     key,
	}
}

func (e explorer) Key() string { return e.key }

func (e explorer) span(ctx context.Context) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "onchain."+strings.ReplaceAll(e.key, "_", "-")+".fetch")
}

// getJSON decodes the body of GET path?query into out.
func (e explorer) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := e.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("http.path", path),
		attribute.Int("http.status_code", resp.StatusCode),
	)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{Service: e.key, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Minute)}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Service: e.key, Code: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", e.key, path, err)
	}
	return nil
}

func (e explorer) snapshot(symbol string, score float64, summary string) *OnChainSnapshot {
	return &OnChainSnapshot{
		ProviderKey: e.key,
		Symbol:      symbol,
		FetchedAt:   time.Now().UTC(),
		Score:       bounded(score),
		Summary:     summary,
	}
}

// deviation maps v onto [-1, 1] around a typical level.
func deviation(v, typical, spread float64) float64 {
	return bounded((v - typical) / spread)
}

func bounded(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}

// flexFloat accepts explorer numbers sent either as JSON numbers or as
// quoted strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

// compact renders large counts as 1.2K, 3.4M or 5.6B.
func compact(v float64) string {
	for _, unit := range []struct {
		div    float64
		suffix string
	}{{1e9, "B"}, {1e6, "M"}, {1e3, "K"}} {
		if math.Abs(v) >= unit.div {
			return fmt.Sprintf("%.1f%s", v/unit.div, unit.suffix)
		}
	}
	return fmt.Sprintf("%.0f", v)
}
