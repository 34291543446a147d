package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const defaultPDS = "https://bsky.social"

// BlueskyClient posts to an AT Protocol PDS. Post identifiers it returns
// are "<uri>#<cid>" so replies can reference both.
type BlueskyClient struct {
	pds        string
	httpClient *http.Client
	now        func() time.Time

	mu        sync.Mutex
	accessJwt string
	did       string
	// roots maps a post id to the id of its thread's first post.
	roots map[string]string
}

func NewBlueskyClient(pds string) *BlueskyClient {
	if pds == "" {
		pds = defaultPDS
	}
	return &BlueskyClient{
		pds:        pds,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
		roots:      make(map[string]string),
	}
}

// Login creates a session. Use an app password, not the account password.
func (c *BlueskyClient) Login(ctx context.Context, identifier, password string) error {
	var resp struct {
		AccessJwt string `json:"accessJwt"`
		DID       string `json:"did"`
	}
	body := map[string]string{"identifier": identifier, "password": password}
	if err := c.post(ctx, "/xrpc/com.atproto.server.createSession", body, &resp); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	c.mu.Lock()
	c.accessJwt, c.did = resp.AccessJwt, resp.DID
	c.mu.Unlock()
	return nil
}

type strongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type replyRef struct {
	Root   strongRef `json:"root"`
	Parent strongRef `json:"parent"`
}

type feedPost struct {
	Type      string    `json:"$type"`
	Text      string    `json:"text"`
	CreatedAt string    `json:"createdAt"`
	Reply     *replyRef `json:"reply,omitempty"`
}

type createRecordRequest struct {
	Repo       string   `json:"repo"`
	Collection string   `json:"collection"`
	Record     feedPost `json:"record"`
}

func parseRef(id string) (strongRef, error) {
	uri, cid, ok := strings.Cut(id, "#")
	if !ok || uri == "" || cid == "" {
		return strongRef{}, fmt.Errorf("malformed post id %q", id)
	}
	return strongRef{URI: uri, CID: cid}, nil
}

func (c *BlueskyClient) CreatePost(ctx context.Context, text, replyTo string) (string, error) {
	c.mu.Lock()
	did := c.did
	rootID := c.roots[replyTo]
	c.mu.Unlock()
	if did == "" {
		return "", errors.New("not authenticated: call Login first")
	}

	record := feedPost{
		Type:      "app.bsky.feed.post",
		Text:      text,
		CreatedAt: c.now().UTC().Format(time.RFC3339),
	}
	if replyTo != "" {
		parent, err := parseRef(replyTo)
		if err != nil {
			return "", err
		}
		if rootID == "" {
			rootID = replyTo
		}
		root, err := parseRef(rootID)
		if err != nil {
			return "", err
		}
		record.Reply = &replyRef{Root: root, Parent: parent}
	}

	var resp strongRef
	req := createRecordRequest{Repo: did, Collection: "app.bsky.feed.post", Record: record}
	if err := c.post(ctx, "/xrpc/com.atproto.repo.createRecord", req, &resp); err != nil {
		return "", err
	}
	id := resp.URI + "#" + resp.CID

	c.mu.Lock()
	if replyTo == "" {
		c.roots[id] = id
	} else {
		c.roots[id] = rootID
	}
	c.mu.Unlock()
	return id, nil
}

func (c *BlueskyClient) post(ctx context.Context, path string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pds+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.mu.Lock()
	if c.accessJwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessJwt)
	}
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := resetAfter(resp.Header, "ratelimit-reset", c.now())
		if wait == 0 {
			wait = retryAfter(resp.Header, c.now())
		}
		return &RateLimitError{Platform: "bluesky", RetryAfter: wait, Err: fmt.Errorf("status 429: %s", string(respBody))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
