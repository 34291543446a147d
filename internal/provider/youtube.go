package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const (
	youtubeBaseURL = "https://www.googleapis.com"
	YouTubeService = "youtube"
)

// YouTubeProvider looks up channel uploads through the YouTube Data API.
type YouTubeProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	tracer  trace.Tracer
	limiter Limiter
}

func NewYouTubeProvider(tracer trace.Tracer, apiKey string, limiter Limiter) *YouTubeProvider {
	return &YouTubeProvider{
		client:  &http.Client{Timeout: 20 * time.Second},
		baseURL: youtubeBaseURL,
		apiKey:  strings.TrimSpace(apiKey),
		tracer:  tracer,
		limiter: limiter,
	}
}

// LatestVideo returns the newest upload of channelID, or ErrNoContent if
// the channel has none.
func (p *YouTubeProvider) LatestVideo(ctx context.Context, channelID string) (Video, error) {
	ctx, span := p.tracer.Start(ctx, "youtube.latest-video")
	defer span.End()

	if p.apiKey == "" {
		return Video{}, fmt.Errorf("youtube api key is not configured")
	}
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return Video{}, fmt.Errorf("channel id is required")
	}
	if p.limiter != nil {
		if err := p.limiter.Acquire(ctx, YouTubeService); err != nil {
			return Video{}, err
		}
	}

	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("channelId", channelID)
	q.Set("order", "date")
	q.Set("type", "video")
	q.Set("maxResults", "1")
	q.Set("key", p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(p.baseURL, "/")+"/youtube/v3/search?"+q.Encode(), nil)
	if err != nil {
		return Video{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Video{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Video{}, &RateLimitError{Service: YouTubeService, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Hour)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Video{}, &StatusError{Service: YouTubeService, Code: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
			Snippet struct {
				Title        string `json:"title"`
				ChannelTitle string `json:"channelTitle"`
				PublishedAt  string `json:"publishedAt"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Video{}, fmt.Errorf("decode youtube response: %w", err)
	}
	if len(payload.Items) == 0 || payload.Items[0].ID.VideoID == "" {
		return Video{}, ErrNoContent
	}

	item := payload.Items[0]
	published, _ := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
	return Video{
		ChannelID:   channelID,
		Channel:     sanitizeText(html.UnescapeString(item.Snippet.ChannelTitle), 120),
		Title:       sanitizeText(html.UnescapeString(item.Snippet.Title), 300),
		URL:         "https://www.youtube.com/watch?v=" + url.QueryEscape(item.ID.VideoID),
		PublishedAt: published.UTC(),
	}, nil
}
