package provider

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DefaultFeeds are read when no news API key is configured.
var DefaultFeeds = []string{
	"https://www.coindesk.com/arc/outboundfeeds/rss/",
	"https://cointelegraph.com/rss",
	"https://decrypt.co/feed",
}

const (
	rssFeedConcurrency = 4
	rssMaxItems        = 40
)

var rssDateLayouts = []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC3339}

// RSSProvider reads crypto news feeds and filters items by coin.
type RSSProvider struct {
	client *http.Client
	tracer trace.Tracer
	feeds  []string
}

func NewRSSProvider(tracer trace.Tracer, feeds []string) *RSSProvider {
	if len(feeds) == 0 {
		feeds = DefaultFeeds
	}
	return &RSSProvider{
		client: &http.Client{Timeout: 20 * time.Second},
		tracer: tracer,
		feeds:  feeds,
	}
}

func (p *RSSProvider) Name() string { return "rss" }

// Headlines reads the configured feeds in parallel and keeps items that
// mention coin, newest first. A failing feed is skipped unless every feed
// fails.
func (p *RSSProvider) Headlines(ctx context.Context, coin Coin, limit int) ([]ContentItem, error) {
	if limit <= 0 {
		limit = 10
	}

	var (
		mu      sync.Mutex
		matched []ContentItem
		errs    []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rssFeedConcurrency)
	for _, feed := range p.feeds {
		g.Go(func() error {
			items, err := p.FetchFeed(gctx, feed, 0)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			for _, item := range items {
				if coin.Mentions(item.Title + " " + item.Excerpt) {
					matched = append(matched, item)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) == len(p.feeds) {
		return nil, errors.Join(errs...)
	}
	slices.SortStableFunc(matched, func(a, b ContentItem) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

type rssDocument struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	GUID        string `xml:"guid"`
	PubDate     string `xml:"pubDate"`
	Creator     string `xml:"creator"`
	Author      string `xml:"author"`
}

// FetchFeed downloads one feed and returns up to maxItems titled entries.
func (p *RSSProvider) FetchFeed(ctx context.Context, feedURL string, maxItems int) ([]ContentItem, error) {
	ctx, span := p.tracer.Start(ctx, "rss.fetch-feed")
	defer span.End()

	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, errors.New("feed url is required")
	}
	span.SetAttributes(attribute.String("feed", feedURL))
	if maxItems <= 0 {
		maxItems = rssMaxItems
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Service: "rss", Code: resp.StatusCode, Body: string(body)}
	}

	var doc rssDocument
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode feed %s: %w", feedURL, err)
	}

	channel := sanitizeText(doc.Channel.Title, 120)
	items := make([]ContentItem, 0, min(maxItems, len(doc.Channel.Items)))
	for _, row := range doc.Channel.Items {
		if len(items) == maxItems {
			break
		}
		if item, ok := row.content(feedURL, channel); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (r rssItem) content(feedURL, channel string) (ContentItem, bool) {
	title := sanitizeText(html.UnescapeString(r.Title), 300)
	if title == "" {
		return ContentItem{}, false
	}
	published := parseRSSDate(r.PubDate)
	if published.IsZero() {
		published = time.Now().UTC()
	}
	return ContentItem{
		Source:       "rss",
		SourceItemID: r.id(title, published),
		Title:        title,
		URL:          sanitizeText(r.Link, 500),
		Excerpt:      sanitizeText(htmlStrip(r.Description), 420),
		Author:       firstNonEmpty(sanitizeText(r.Creator, 120), sanitizeText(r.Author, 120)),
		PublishedAt:  published,
		Metadata:     map[string]any{"feed_url": feedURL, "channel": channel},
	}, true
}

// id prefers the guid, then the link, then a hash of title and time.
func (r rssItem) id(title string, published time.Time) string {
	if id := firstNonEmpty(sanitizeText(r.GUID, 250), sanitizeText(r.Link, 250)); id != "" {
		return id
	}
	sum := sha1.Sum([]byte(title + "|" + published.Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseRSSDate(v string) time.Time {
	v = strings.TrimSpace(v)
	for _, layout := range rssDateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// htmlStrip drops tags and decodes entities.
func htmlStrip(in string) string {
	var b strings.Builder
	depth := 0
	for _, r := range in {
		switch {
		case r == '<':
			depth++
		case r == '>' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return html.UnescapeString(b.String())
}
