package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const defaultXBaseURL = "https://api.twitter.com"

// XClient creates posts through the X API v2 with an OAuth 2.0 user access
// token.
type XClient struct {
	httpClient *http.Client
	baseURL    string
	now        func() time.Time
}

// NewXClient wraps http.DefaultTransport with a static bearer token source.
func NewXClient(ctx context.Context, accessToken string) *XClient {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	hc := oauth2.NewClient(ctx, src)
	hc.Timeout = 30 * time.Second
	return &XClient{httpClient: hc, baseURL: defaultXBaseURL, now: time.Now}
}

// NewXClientWithHTTP is used when the caller already holds an authorized
// client.
func NewXClientWithHTTP(hc *http.Client, baseURL string) *XClient {
	if baseURL == "" {
		baseURL = defaultXBaseURL
	}
	return &XClient{httpClient: hc, baseURL: baseURL, now: time.Now}
}

type xCreateRequest struct {
	Text  string  `json:"text"`
	Reply *xReply `json:"reply,omitempty"`
}

type xReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type xCreateResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func (c *XClient) CreatePost(ctx context.Context, text, replyTo string) (string, error) {
	body := xCreateRequest{Text: text}
	if replyTo != "" {
		body.Reply = &xReply{InReplyToTweetID: replyTo}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/tweets", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &RateLimitError{
			Platform:   "x",
			RetryAfter: resetAfter(resp.Header, "x-rate-limit-reset", c.now()),
			Err:        fmt.Errorf("status 429: %s", string(respBody)),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("x API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var out xCreateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("x API returned no post id: %s", string(respBody))
	}
	return out.Data.ID, nil
}
