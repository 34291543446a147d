package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
)

func TestXClientCreatesReply(t *testing.T) {
	var got xCreateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2/tweets", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"123","text":"hi"}}`))
	}))
	defer srv.Close()

	c := NewXClientWithHTTP(srv.Client(), srv.URL)
	id, err := c.CreatePost(context.Background(), "hi", "99")
	require.NoError(t, err)
	require.Equal(t, "123", id)
	require.Equal(t, "99", got.Reply.InReplyToTweetID)
}

func TestXClientMapsRateLimit(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-rate-limit-reset", "1700000090")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewXClientWithHTTP(srv.Client(), srv.URL)
	c.now = func() time.Time { return now }
	_, err := c.CreatePost(context.Background(), "hi", "")
	rl, ok := AsRateLimit(err)
	require.True(t, ok)
	require.Equal(t, 90*time.Second, rl.RetryAfter)
}

func TestBlueskyClientThreadsReplies(t *testing.T) {
	var records []createRecordRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/xrpc/com.atproto.server.createSession":
			_, _ = w.Write([]byte(`{"accessJwt":"jwt","did":"did:plc:abc"}`))
		case "/xrpc/com.atproto.repo.createRecord":
			require.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))
			var req createRecordRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			records = append(records, req)
			n := len(records)
			_ = json.NewEncoder(w).Encode(strongRef{
				URI: "at://did:plc:abc/app.bsky.feed.post/" + string(rune('a'+n-1)),
				CID: "cid" + string(rune('0'+n)),
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewBlueskyClient(srv.URL)
	ctx := context.Background()
	_, err := c.CreatePost(ctx, "early", "")
	require.Error(t, err)

	require.NoError(t, c.Login(ctx, "me.bsky.social", "app-pass"))
	first, err := c.CreatePost(ctx, "one", "")
	require.NoError(t, err)
	second, err := c.CreatePost(ctx, "two", first)
	require.NoError(t, err)
	_, err = c.CreatePost(ctx, "three", second)
	require.NoError(t, err)

	require.Nil(t, records[0].Record.Reply)
	third := records[2].Record.Reply
	require.Equal(t, "at://did:plc:abc/app.bsky.feed.post/a", third.Root.URI)
	require.Equal(t, "at://did:plc:abc/app.bsky.feed.post/b", third.Parent.URI)
}

type fakeSender struct {
	err  error
	to   tele.Recipient
	what interface{}
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	f.to, f.what = to, what
	return &tele.Message{}, f.err
}

func TestTelegramChatRecipients(t *testing.T) {
	s := &fakeSender{}
	chat := NewTelegramChat(s)
	require.NoError(t, chat.Send(context.Background(), "-100123", "hello"))
	require.Equal(t, "-100123", s.to.Recipient())

	require.NoError(t, chat.Send(context.Background(), "@cryptochan", "hello"))
	require.Equal(t, "@cryptochan", s.to.Recipient())
}

func TestTelegramChatMapsFlood(t *testing.T) {
	s := &fakeSender{err: tele.FloodError{RetryAfter: 12}}
	err := NewTelegramChat(s).Send(context.Background(), "1", "hi")
	rl, ok := AsRateLimit(err)
	require.True(t, ok)
	require.Equal(t, 12*time.Second, rl.RetryAfter)

	s.err = errors.New("chat not found")
	err = NewTelegramChat(s).Send(context.Background(), "1", "hi")
	_, ok = AsRateLimit(err)
	require.False(t, ok)
}
