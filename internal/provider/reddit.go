package provider

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	RedditService = "reddit"

	redditBaseURL   = "https://www.reddit.com"
	redditUserAgent = "cryptothreads/1.0"
	redditPageSize  = 40
	redditMaxPage   = 100
	minRedditScore  = 5
)

// RedditProvider reads hot posts from a coin's community subreddit.
type RedditProvider struct {
	client    *http.Client
	baseURL   string
	userAgent string
	tracer    trace.Tracer
	limiter   Limiter
}

func NewRedditProvider(tracer trace.Tracer, limiter Limiter) *RedditProvider {
	return &RedditProvider{
		client:    &http.Client{Timeout: 20 * time.Second},
		baseURL:   redditBaseURL,
		userAgent: redditUserAgent,
		tracer:    tracer,
		limiter:   limiter,
	}
}

func (p *RedditProvider) Name() string { return RedditService }

type redditPost struct {
	ID          string  `json:"id"`
	Subreddit   string  `json:"subreddit"`
	Title       string  `json:"title"`
	SelfText    string  `json:"selftext"`
	Author      string  `json:"author"`
	CreatedUTC  float64 `json:"created_utc"`
	Permalink   string  `json:"permalink"`
	URL         string  `json:"url"`
	Score       float64 `json:"score"`
	NumComments float64 `json:"num_comments"`
	Stickied    bool    `json:"stickied"`
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Headlines returns hot posts of the coin's subreddit ordered by score.
// Stickied announcements and low-score posts are dropped.
func (p *RedditProvider) Headlines(ctx context.Context, coin Coin, limit int) ([]ContentItem, error) {
	if coin.Subreddit == "" {
		return nil, nil
	}
	posts, err := p.hot(ctx, coin.Subreddit, 25)
	if err != nil {
		return nil, err
	}
	posts = slices.DeleteFunc(posts, func(post redditPost) bool {
		return post.Stickied || post.Score < minRedditScore
	})
	slices.SortStableFunc(posts, func(a, b redditPost) int { return cmp.Compare(b.Score, a.Score) })
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return p.toItems(posts), nil
}

// FetchHot returns the subreddit's hot listing as content items.
func (p *RedditProvider) FetchHot(ctx context.Context, subreddit string, limit int) ([]ContentItem, error) {
	posts, err := p.hot(ctx, subreddit, limit)
	if err != nil {
		return nil, err
	}
	return p.toItems(posts), nil
}

func (p *RedditProvider) hot(ctx context.Context, subreddit string, limit int) ([]redditPost, error) {
	ctx, span := p.tracer.Start(ctx, "reddit.fetch-hot")
	defer span.End()

	subreddit = strings.TrimSpace(subreddit)
	if subreddit == "" {
		return nil, errors.New("subreddit is required")
	}
	if limit <= 0 {
		limit = redditPageSize
	}
	limit = min(limit, redditMaxPage)
	span.SetAttributes(attribute.String("subreddit", subreddit), attribute.Int("limit", limit))

	if p.limiter != nil {
		if err := p.limiter.Acquire(ctx, RedditService); err != nil {
			return nil, err
		}
	}

	endpoint := p.base() + "/r/" + url.PathEscape(subreddit) + "/hot.json?" +
		url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	// Reddit throttles requests without a descriptive agent.
	req.Header.Set("User-Agent", cmp.Or(p.userAgent, redditUserAgent))

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{Service: RedditService, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Minute)}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Service: RedditService, Code: resp.StatusCode, Body: string(body)}
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode reddit listing: %w", err)
	}
	posts := make([]redditPost, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		if strings.TrimSpace(child.Data.ID) != "" && strings.TrimSpace(child.Data.Title) != "" {
			posts = append(posts, child.Data)
		}
	}
	return posts, nil
}

func (p *RedditProvider) base() string { return strings.TrimRight(p.baseURL, "/") }

func (p *RedditProvider) toItems(posts []redditPost) []ContentItem {
	items := make([]ContentItem, 0, len(posts))
	for _, post := range posts {
		link := strings.TrimSpace(post.URL)
		if permalink := strings.TrimSpace(post.Permalink); permalink != "" {
			link = p.base() + permalink
		}
		items = append(items, ContentItem{
			Source:       RedditService,
			SourceItemID: post.ID,
			Title:        sanitizeText(post.Title, 300),
			URL:          link,
			Excerpt:      sanitizeText(post.SelfText, 420),
			Author:       sanitizeText(post.Author, 120),
			PublishedAt:  time.Unix(int64(post.CreatedUTC), 0).UTC(),
			Metadata: map[string]any{
				"subreddit":    strings.TrimSpace(post.Subreddit),
				"score":        post.Score,
				"num_comments": post.NumComments,
			},
		})
	}
	return items
}
