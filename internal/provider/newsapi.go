package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const (
	newsAPIBaseURL = "https://newsapi.org"
	NewsAPIService = "newsapi"
)

// NewsAPIProvider searches recent articles through newsapi.org.
type NewsAPIProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	tracer  trace.Tracer
	limiter Limiter
}

func NewNewsAPIProvider(tracer trace.Tracer, apiKey string, limiter Limiter) *NewsAPIProvider {
	return &NewsAPIProvider{
		client:  &http.Client{Timeout: 20 * time.Second},
		baseURL: newsAPIBaseURL,
		apiKey:  strings.TrimSpace(apiKey),
		tracer:  tracer,
		limiter: limiter,
	}
}

func (p *NewsAPIProvider) Name() string { return NewsAPIService }

// Headlines returns the newest English articles matching the coin's search
// term.
func (p *NewsAPIProvider) Headlines(ctx context.Context, coin Coin, limit int) ([]ContentItem, error) {
	ctx, span := p.tracer.Start(ctx, "newsapi.headlines")
	defer span.End()

	if p.apiKey == "" {
		return nil, fmt.Errorf("newsapi key is not configured")
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	if p.limiter != nil {
		if err := p.limiter.Acquire(ctx, NewsAPIService); err != nil {
			return nil, err
		}
	}

	q := url.Values{}
	q.Set("q", coin.Search)
	q.Set("language", "en")
	q.Set("sortBy", "publishedAt")
	q.Set("pageSize", fmt.Sprintf("%d", limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(p.baseURL, "/")+"/v2/everything?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Service: NewsAPIService, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Hour)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{Service: NewsAPIService, Code: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		Status   string `json:"status"`
		Articles []struct {
			Source struct {
				Name string `json:"name"`
			} `json:"source"`
			Author      string `json:"author"`
			Title       string `json:"title"`
			Description string `json:"description"`
			URL         string `json:"url"`
			PublishedAt string `json:"publishedAt"`
		} `json:"articles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode newsapi response: %w", err)
	}

	items := make([]ContentItem, 0, len(payload.Articles))
	for _, a := range payload.Articles {
		title := sanitizeText(a.Title, 300)
		if title == "" || title == "[Removed]" {
			continue
		}
		published, _ := time.Parse(time.RFC3339, a.PublishedAt)
		items = append(items, ContentItem{
			Source:       NewsAPIService,
			SourceItemID: sanitizeText(a.URL, 250),
			Title:        title,
			URL:          sanitizeText(a.URL, 500),
			Excerpt:      sanitizeText(a.Description, 420),
			Author:       sanitizeText(a.Author, 120),
			PublishedAt:  published.UTC(),
			Metadata:     map[string]any{"outlet": a.Source.Name},
		})
	}
	return items, nil
}
