package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cryptothreads/internal/cache"
	"cryptothreads/internal/composer"
	"cryptothreads/internal/ledger"
	"cryptothreads/internal/provider"
	"cryptothreads/internal/sentiment"
)

// headline is what gets cached per coin and day. Placeholder marks the
// "no news" sentence so it is not scored or linked.
type headline struct {
	Item        provider.ContentItem `json:"item"`
	Placeholder bool                 `json:"placeholder"`
}

// gathered holds per-coin results in coin order; each goroutine writes its
// own slot.
type gathered struct {
	quotes    map[string]provider.Quote
	headlines []headline
	onchain   []string
	videos    []string
	fearGreed *composer.FearGreed

	mu   sync.Mutex
	errs []string
}

func (g *gathered) fail(kind, subject string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs = append(g.errs, fmt.Sprintf("%s %s: %v", kind, subject, err))
}

// gather fetches everything one cycle needs concurrently and assembles the
// composer input. It never fails; every error becomes a fallback and a line
// in the returned list.
func (s *ThreadService) gather(ctx context.Context, now time.Time, history []ledger.Entry) (composer.Input, []string) {
	ctx, span := s.tracer.Start(ctx, "thread-service.gather")
	defer span.End()

	g := &gathered{
		headlines: make([]headline, len(s.coins)),
		onchain:   make([]string, len(s.coins)),
		videos:    make([]string, len(s.chans)),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.fetchQuotes(ctx, g)
	}()
	if s.deps.FearGreed != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.fetchFearGreed(ctx, g)
		}()
	}
	for i, coin := range s.coins {
		if s.deps.Headlines != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				g.headlines[i] = s.fetchHeadline(ctx, g, coin, now)
			}()
		}
		if src, ok := s.deps.OnChain[coin.OnChain]; ok && coin.OnChain != "" {
			wg.Add(1)
			go func() {
				defer wg.Done()
				g.onchain[i] = s.fetchOnChain(ctx, g, coin, src)
			}()
		}
	}
	if s.deps.Videos != nil {
		for i, ch := range s.chans {
			wg.Add(1)
			go func() {
				defer wg.Done()
				g.videos[i] = s.fetchVideo(ctx, g, ch)
			}()
		}
	}
	wg.Wait()

	in := composer.Input{
		Timestamp: now,
		Entities:  s.entities(g),
		FearGreed: g.fearGreed,
	}
	for _, v := range g.videos {
		if v != "" {
			in.Videos = append(in.Videos, v)
		}
	}
	s.scoreHeadlines(ctx, g, in.Entities)
	if s.deps.Influencers != nil {
		symbols := make([]string, 0, len(s.coins))
		for _, c := range s.coins {
			symbols = append(symbols, c.Symbol)
		}
		in.Influencers = s.deps.Influencers.Pick(symbols, history, now, composer.MaxInfluencers)
	}
	return in, g.errs
}

func (s *ThreadService) entities(g *gathered) []composer.Entity {
	out := make([]composer.Entity, 0, len(s.coins))
	for i, coin := range s.coins {
		e := composer.Entity{
			ID:       coin.ID,
			Name:     coin.Name,
			Symbol:   coin.Symbol,
			ChartURL: coin.ChartURL(),
			OnChain:  g.onchain[i],
		}
		q, ok := g.quotes[coin.ID]
		if ok {
			e.Price = q.PriceUSD
			e.Change24h = q.Change24hPct
			e.Volume24h = q.Volume24h
		} else {
			e.Unavailable = true
			s.deps.Metrics.EntityFallback("price")
		}
		if h := g.headlines[i]; h.Item.Title != "" {
			e.Headline = h.Item.Title
			if !h.Placeholder {
				e.HeadlineURL = h.Item.URL
			}
		}
		out = append(out, e)
	}
	return out
}

func (s *ThreadService) fetchQuotes(ctx context.Context, g *gathered) {
	ids := make([]string, 0, len(s.coins))
	for _, c := range s.coins {
		ids = append(ids, c.ID)
	}
	key := cache.Key(provider.CoinGeckoService, "markets", strings.Join(ids, ","))
	quotes, err := cache.FetchJSON(ctx, s.deps.Cache, key, cache.MarketTTL, func(ctx context.Context) (map[string]provider.Quote, error) {
		return s.deps.Market.Quotes(ctx, ids)
	})
	if err != nil {
		slog.Warn("market data unavailable, using placeholders", "coins", len(ids), "error", err)
		g.fail("market", "quotes", err)
		return
	}
	g.quotes = quotes
}

func (s *ThreadService) fetchHeadline(ctx context.Context, g *gathered, coin provider.Coin, now time.Time) headline {
	key := cache.DayKey("news", coin.ID, now)
	h, err := cache.FetchJSON(ctx, s.deps.Cache, key, cache.NewsTTL, func(ctx context.Context) (headline, error) {
		item, err := s.deps.Headlines.Find(ctx, coin)
		if errors.Is(err, provider.ErrNoContent) {
			return headline{Item: provider.ContentItem{Title: provider.NoHeadline(coin)}, Placeholder: true}, nil
		}
		if err != nil {
			return headline{}, err
		}
		return headline{Item: item}, nil
	})
	if err != nil {
		slog.Warn("headline fetch failed", "coin", coin.ID, "error", err)
		g.fail("news", coin.ID, err)
		s.deps.Metrics.EntityFallback("news")
		return headline{Item: provider.ContentItem{Title: provider.NoHeadline(coin)}, Placeholder: true}
	}
	return h
}

func (s *ThreadService) fetchOnChain(ctx context.Context, g *gathered, coin provider.Coin, src provider.OnChainSource) string {
	key := cache.Key("onchain", src.Key())
	snap, err := cache.FetchJSON(ctx, s.deps.Cache, key, cache.OnChainTTL, func(ctx context.Context) (provider.OnChainSnapshot, error) {
		snap, err := src.FetchSnapshot(ctx)
		if err != nil {
			return provider.OnChainSnapshot{}, err
		}
		return *snap, nil
	})
	if err != nil {
		slog.Warn("on-chain fetch failed", "coin", coin.ID, "source", src.Key(), "error", err)
		g.fail("onchain", coin.ID, err)
		s.deps.Metrics.EntityFallback("onchain")
		return ""
	}
	return snap.Line()
}

func (s *ThreadService) fetchVideo(ctx context.Context, g *gathered, channelID string) string {
	key := cache.Key(provider.YouTubeService, channelID)
	v, err := cache.FetchJSON(ctx, s.deps.Cache, key, cache.VideoTTL, func(ctx context.Context) (provider.Video, error) {
		return s.deps.Videos.LatestVideo(ctx, channelID)
	})
	if errors.Is(err, provider.ErrNoContent) {
		return ""
	}
	if err != nil {
		slog.Warn("video fetch failed", "channel", channelID, "error", err)
		g.fail("video", channelID, err)
		return ""
	}
	return fmt.Sprintf("%s: %s %s", v.Channel, v.Title, v.URL)
}

func (s *ThreadService) fetchFearGreed(ctx context.Context, g *gathered) {
	key := cache.Key("feargreed", "latest")
	p, err := cache.FetchJSON(ctx, s.deps.Cache, key, cache.SentimentTTL, func(ctx context.Context) (provider.FearGreedPoint, error) {
		p, err := s.deps.FearGreed.FetchLatest(ctx)
		if err != nil {
			return provider.FearGreedPoint{}, err
		}
		return *p, nil
	})
	if err != nil {
		slog.Warn("fear & greed fetch failed", "error", err)
		g.fail("sentiment", "fear_greed", err)
		return
	}
	g.fearGreed = &composer.FearGreed{Value: p.Value, Label: p.Classification}
}

// scoreHeadlines labels every real headline. A scorer failure leaves the
// entities unlabelled.
func (s *ThreadService) scoreHeadlines(ctx context.Context, g *gathered, entities []composer.Entity) {
	if s.deps.Sentiment == nil {
		return
	}
	var items []sentiment.Item
	for i, e := range entities {
		if e.Headline == "" || g.headlines[i].Placeholder {
			continue
		}
		items = append(items, sentiment.Item{ID: e.ID, Title: e.Headline, Excerpt: g.headlines[i].Item.Excerpt})
	}
	if len(items) == 0 {
		return
	}
	scores, err := s.deps.Sentiment.Score(ctx, items)
	if err != nil {
		slog.Warn("headline scoring failed", "items", len(items), "error", err)
		g.fail("sentiment", "headlines", err)
		return
	}
	labels := make(map[string]string, len(scores))
	for _, sc := range scores {
		labels[sc.ID] = sc.Label
	}
	for i := range entities {
		if l, ok := labels[entities[i].ID]; ok {
			entities[i].Sentiment = l
		}
	}
}
