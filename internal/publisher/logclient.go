package publisher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// LogClient is a dry-run client: it logs instead of publishing and hands out
// random identifiers. It satisfies both MicroBlogClient and ChatClient.
type LogClient struct {
	mu    sync.Mutex
	posts []LoggedPost
}

type LoggedPost struct {
	ID      string
	ReplyTo string
	Channel string
	Text    string
}

func NewLogClient() *LogClient { return &LogClient{} }

func (c *LogClient) CreatePost(_ context.Context, text, replyTo string) (string, error) {
	id := uuid.NewString()
	c.mu.Lock()
	c.posts = append(c.posts, LoggedPost{ID: id, ReplyTo: replyTo, Text: text})
	c.mu.Unlock()
	slog.Info("dry-run post", "id", id, "reply_to", replyTo, "chars", len([]rune(text)), "text", text)
	return id, nil
}

func (c *LogClient) Send(_ context.Context, channelID, text string) error {
	c.mu.Lock()
	c.posts = append(c.posts, LoggedPost{ID: uuid.NewString(), Channel: channelID, Text: text})
	c.mu.Unlock()
	slog.Info("dry-run chat message", "channel", channelID, "chars", len([]rune(text)))
	return nil
}

// Posts returns everything logged so far.
func (c *LogClient) Posts() []LoggedPost {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LoggedPost, len(c.posts))
	copy(out, c.posts)
	return out
}
