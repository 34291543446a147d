// Package composer renders fetched market data into bounded-length posts.
// Everything here is pure formatting.
package composer

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Surface is a publishing target with its own length limits.
type Surface int

const (
	MicroBlog Surface = iota
	Chat
)

// Hard caps per finished post, in runes.
const (
	MicroBlogLimit = 280
	ChatLimit      = 2000
)

// Free-text caps applied before interpolation.
const (
	MicroBlogHeadlineLimit = 40
	ChatHeadlineLimit      = 100
	VideoLineLimit         = 200
	MaxLeadEntities        = 4
	MaxInfluencers         = 3
)

// Ellipsis marks a truncated string. It counts toward the cap.
const Ellipsis = "..."

func (s Surface) String() string {
	if s == Chat {
		return "chat"
	}
	return "microblog"
}

// Limit is the per-post cap for the surface.
func (s Surface) Limit() int {
	if s == Chat {
		return ChatLimit
	}
	return MicroBlogLimit
}

func (s Surface) headlineLimit() int {
	if s == Chat {
		return ChatHeadlineLimit
	}
	return MicroBlogHeadlineLimit
}

// Entity is one coin's data for a cycle. Unavailable marks a fallback
// placeholder substituted after a failed fetch.
type Entity struct {
	ID          string
	Name        string
	Symbol      string
	Price       float64
	Change24h   float64
	Volume24h   float64
	OnChain     string
	Headline    string
	HeadlineURL string
	Sentiment   string
	ChartURL    string
	Unavailable bool
}

// FearGreed is the market-wide sentiment index reading.
type FearGreed struct {
	Value int
	Label string
}

// Input is everything one cycle gathered.
type Input struct {
	Timestamp   time.Time
	Entities    []Entity
	Videos      []string
	Influencers []string
	FearGreed   *FearGreed
}

// Thread is an ordered list of posts, published as a reply chain.
type Thread []string

// Truncate cuts s to at most max runes, ending in Ellipsis when shortened.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	if max <= len(Ellipsis) {
		return string(r[:max])
	}
	return strings.TrimRightFunc(string(r[:max-len(Ellipsis)]), isSpace) + Ellipsis
}

func isSpace(r rune) bool { return r == ' ' || r == '\n' || r == '\t' }

// Compose builds the thread for surface: a lead post, one post per entity in
// input order, then the video digest and the influencer call-to-action when
// their data is present.
func Compose(in Input, surface Surface) Thread {
	posts := make(Thread, 0, len(in.Entities)+3)
	posts = append(posts, leadPost(in, surface))
	for _, e := range in.Entities {
		posts = append(posts, entityPost(e, surface))
	}
	if digest := videoDigest(in.Videos); digest != "" {
		posts = append(posts, digest)
	}
	if cta := influencerCTA(in.Influencers); cta != "" {
		posts = append(posts, cta)
	}

	limit := surface.Limit()
	for i, p := range posts {
		posts[i] = Truncate(p, limit)
	}
	return posts
}

// ComposeMessage renders the chat digest as one message capped at the chat
// limit.
func ComposeMessage(in Input) string {
	return Truncate(strings.Join(Compose(in, Chat), "\n\n"), ChatLimit)
}

func leadPost(in Input, surface Surface) string {
	names := make([]string, 0, MaxLeadEntities)
	for _, e := range in.Entities {
		if len(names) == MaxLeadEntities {
			break
		}
		names = append(names, displaySymbol(e))
	}

	var b strings.Builder
	stamp := in.Timestamp.UTC().Format("Jan 2 15:04 MST")
	if surface == Chat {
		fmt.Fprintf(&b, "**Crypto Market Update (%s)**", stamp)
	} else {
		fmt.Fprintf(&b, "Crypto Market Update (%s)!", stamp)
	}
	if len(names) > 0 {
		fmt.Fprintf(&b, " Latest on: %s.", strings.Join(names, ", "))
	}
	if in.FearGreed != nil {
		fmt.Fprintf(&b, " Fear & Greed: %d (%s).", in.FearGreed.Value, in.FearGreed.Label)
	}
	b.WriteString(" #Crypto #Altcoins")
	return b.String()
}

func displaySymbol(e Entity) string {
	if e.Symbol != "" {
		return strings.ToUpper(e.Symbol)
	}
	return e.Name
}

func entityPost(e Entity, surface Surface) string {
	title := e.Name
	if e.Symbol != "" {
		title = fmt.Sprintf("%s (%s)", e.Name, strings.ToUpper(e.Symbol))
	}
	if surface == Chat {
		title = "**" + title + "**"
	}

	if e.Unavailable {
		lines := []string{title + ": Price unavailable"}
		if e.ChartURL != "" {
			lines = append(lines, "Chart: "+e.ChartURL)
		}
		return strings.Join(lines, "\n")
	}

	lines := []string{fmt.Sprintf("%s: %s (%s 24h) %s", title, FormatPrice(e.Price), FormatChange(e.Change24h), arrow(e.Change24h))}
	if e.Volume24h > 0 {
		lines = append(lines, "Tx Volume: "+FormatNumber(e.Volume24h))
	}
	if e.OnChain != "" {
		lines = append(lines, "On-chain: "+e.OnChain)
	}
	if e.Headline != "" {
		label := "News"
		if e.Sentiment != "" {
			label = fmt.Sprintf("News (%s)", e.Sentiment)
		}
		headline := Truncate(e.Headline, surface.headlineLimit())
		if surface == Chat {
			lines = append(lines, label+": "+headline)
			if e.HeadlineURL != "" {
				lines = append(lines, "Link: "+e.HeadlineURL)
			}
		} else {
			line := label + ": " + headline
			if e.HeadlineURL != "" {
				line += " " + e.HeadlineURL
			}
			lines = append(lines, line+" #Crypto")
		}
	}
	if surface == Chat && e.ChartURL != "" {
		lines = append(lines, "Chart: "+e.ChartURL)
	}
	return strings.Join(lines, "\n")
}

func videoDigest(videos []string) string {
	var lines []string
	for _, v := range videos {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		lines = append(lines, Truncate(v, VideoLineLimit))
	}
	if len(lines) == 0 {
		return ""
	}
	return "Crypto Video Updates:\n" + strings.Join(lines, "\n") + "\n#CryptoNews"
}

func influencerCTA(handles []string) string {
	picked := Influencers(handles)
	if len(picked) == 0 {
		return ""
	}
	return fmt.Sprintf("Stay tuned! Follow: %s. #CryptoNews", strings.Join(picked, ", "))
}

// Influencers returns the handles the call-to-action mentions: the first
// MaxInfluencers distinct non-empty entries.
func Influencers(handles []string) []string {
	var picked []string
	seen := make(map[string]bool)
	for _, h := range handles {
		h = strings.TrimSpace(h)
		key := strings.ToLower(h)
		if h == "" || seen[key] {
			continue
		}
		seen[key] = true
		picked = append(picked, h)
		if len(picked) == MaxInfluencers {
			break
		}
	}
	return picked
}

func arrow(change float64) string {
	if change >= 0 {
		return "▲"
	}
	return "▼"
}
