package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cryptothreads/internal/cache"
	"cryptothreads/internal/composer"
	"cryptothreads/internal/influencer"
	"cryptothreads/internal/ledger"
	"cryptothreads/internal/provider"
	"cryptothreads/internal/publisher"
	"cryptothreads/internal/ratebudget"
	"cryptothreads/internal/sentiment"
	"cryptothreads/internal/store"
	"cryptothreads/internal/uniqueness"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Reasons a cycle ends without publishing.
const (
	SkipTooShort  = "too_short"
	SkipDuplicate = "duplicate"
	SkipQuota     = "quota_exhausted"
)

// minThreadPosts is the smallest thread worth publishing: a lead post and
// at least one more.
const minThreadPosts = 2

type MarketSource interface {
	Quotes(ctx context.Context, ids []string) (map[string]provider.Quote, error)
}

type HeadlineFinder interface {
	Find(ctx context.Context, coin provider.Coin) (provider.ContentItem, error)
}

type VideoSource interface {
	LatestVideo(ctx context.Context, channelID string) (provider.Video, error)
}

type FearGreedSource interface {
	FetchLatest(ctx context.Context) (*provider.FearGreedPoint, error)
}

type SentimentScorer interface {
	Score(ctx context.Context, items []sentiment.Item) ([]sentiment.Score, error)
}

type InfluencerPicker interface {
	Pick(symbols []string, history []ledger.Entry, now time.Time, n int) []string
}

type ThreadPoster interface {
	Platform() string
	Publish(ctx context.Context, thread []string) (publisher.PublishResult, error)
}

type MessagePoster interface {
	Platform() string
	Publish(ctx context.Context, message string) error
}

type Quota interface {
	Allow(ctx context.Context, n int) error
	Add(ctx context.Context, n int) error
	Remaining(ctx context.Context) (int, error)
}

// Metrics is implemented by metrics.Metrics.
type Metrics interface {
	CycleFinished(outcome string, d time.Duration)
	EntityFallback(kind string)
	QuotaLeft(n int)
}

type nopMetrics struct{}

func (nopMetrics) CycleFinished(string, time.Duration) {}
func (nopMetrics) EntityFallback(string)               {}
func (nopMetrics) QuotaLeft(int)                       {}

// Deps are the collaborators of one cycle. Market, Ledger and Thread are
// required; every other source is optional and simply leaves its part of
// the thread out when nil.
type Deps struct {
	Market      MarketSource
	Headlines   HeadlineFinder
	Videos      VideoSource
	FearGreed   FearGreedSource
	OnChain     map[string]provider.OnChainSource
	Sentiment   SentimentScorer
	Influencers InfluencerPicker
	Cache       *cache.ResponseCache
	Ledger      ledger.Ledger
	Recorder    *ledger.Recorder
	Gate        uniqueness.Gate
	Quota       Quota
	Thread      ThreadPoster
	Chat        MessagePoster
	Metrics     Metrics

	// Pending keeps a partly published thread for the next cycle. Without
	// it an interrupted thread is abandoned.
	Pending store.KV
}

type Options struct {
	Coins           []string
	YouTubeChannels []string
	Now             func() time.Time

	// PendingMaxAge is how long an interrupted thread stays resumable.
	PendingMaxAge time.Duration
}

// CycleResult summarises one cycle for logs, the API and the bot.
type CycleResult struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	Posts      int       `json:"posts"`
	Duplicates int       `json:"duplicates"`
	Published  bool      `json:"published"`
	PostIDs    []string  `json:"post_ids,omitempty"`
	Resumed    int       `json:"resumed,omitempty"`
	ChatSent   bool      `json:"chat_sent"`
	Skipped    string    `json:"skipped,omitempty"`
	Errors     []string  `json:"errors,omitempty"`

	// ResumedFrom is the cycle whose interrupted thread this cycle finished.
	ResumedFrom string `json:"resumed_from,omitempty"`
}

// Preview is a composed cycle that was not gated or published.
type Preview struct {
	Thread  []string `json:"thread"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

// ThreadService runs one scheduling cycle end to end: gather, compose,
// gate, publish, record.
type ThreadService struct {
	tracer        trace.Tracer
	deps          Deps
	coins         []provider.Coin
	chans         []string
	pendingMaxAge time.Duration
	now           func() time.Time
}

func NewThreadService(tracer trace.Tracer, deps Deps, opts Options) *ThreadService {
	if deps.Cache == nil {
		deps.Cache = cache.New(store.NewMemory())
	}
	if deps.Recorder == nil && deps.Ledger != nil {
		deps.Recorder = ledger.NewRecorder(deps.Ledger, ledger.DefaultRetention)
	}
	if deps.Gate.Window <= 0 {
		deps.Gate = uniqueness.NewGate(0, deps.Gate.Policy)
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if len(opts.Coins) == 0 {
		opts.Coins = provider.DefaultCoinIDs
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PendingMaxAge <= 0 {
		opts.PendingMaxAge = DefaultPendingMaxAge
	}
	return &ThreadService{
		tracer:        tracer,
		deps:          deps,
		coins:         provider.Coins(opts.Coins),
		chans:         opts.YouTubeChannels,
		pendingMaxAge: opts.PendingMaxAge,
		now:           opts.Now,
	}
}

// historyWindow covers both the duplicate window and influencer rotation.
func (s *ThreadService) historyWindow() time.Duration {
	if s.deps.Gate.Window > influencer.DefaultRotation {
		return s.deps.Gate.Window
	}
	return influencer.DefaultRotation
}

// RunCycle gathers, composes and publishes one thread. When an earlier
// cycle stopped part way through a thread, that exact thread is offered
// again instead, so the publisher continues its reply chain. Entity fetch
// failures degrade the thread instead of failing the cycle; the returned
// error is set only when the thread could not be checked, published or
// recorded.
func (s *ThreadService) RunCycle(ctx context.Context) (CycleResult, error) {
	ctx, span := s.tracer.Start(ctx, "thread-service.run-cycle")
	defer span.End()

	now := s.now().UTC()
	res := CycleResult{ID: uuid.NewString(), StartedAt: now}
	span.SetAttributes(attribute.String("cycle.id", res.ID))
	log := slog.With("cycle", res.ID)

	outcome := "failed"
	defer func() { s.deps.Metrics.CycleFinished(outcome, s.now().Sub(now)) }()

	history, err := s.deps.Ledger.Load(ctx, s.historyWindow())
	if err != nil {
		span.RecordError(err)
		return res, fmt.Errorf("load thread history: %w", err)
	}

	pending, err := s.loadPending(ctx, now)
	if err != nil {
		log.Warn("pending thread unavailable, composing a new one", "error", err)
	}

	var cur pendingThread
	if pending != nil {
		cur = *pending
		res.ResumedFrom = cur.CycleID
		res.Posts = len(cur.Thread)
		span.SetAttributes(attribute.String("cycle.resumed_from", cur.CycleID))
		log.Info("resuming interrupted thread", "from", cur.CycleID, "posts", len(cur.Thread), "live", cur.Live)
	} else {
		in, errs := s.gather(ctx, now, history)
		res.Errors = errs
		if err := ctx.Err(); err != nil {
			return res, err
		}

		thread := composer.Compose(in, composer.MicroBlog)
		res.Posts = len(thread)
		if len(thread) < minThreadPosts {
			res.Skipped = SkipTooShort
			outcome = "skipped"
			log.Warn("thread too short, skipping", "posts", len(thread))
			return res, nil
		}

		verdict := s.deps.Gate.Evaluate(thread, history, now)
		res.Duplicates = verdict.Duplicates
		if !verdict.Unique {
			res.Skipped = SkipDuplicate
			outcome = "duplicate"
			log.Info("thread too similar to recent history, skipping",
				"duplicates", verdict.Duplicates, "posts", verdict.Total, "policy", s.deps.Gate.Policy)
			return res, nil
		}
		cur = pendingThread{
			CycleID:     res.ID,
			ComposedAt:  now,
			Thread:      thread,
			Message:     composer.ComposeMessage(in),
			Influencers: in.Influencers,
		}
	}

	if s.deps.Quota != nil {
		if err := s.deps.Quota.Allow(ctx, len(cur.Thread)-cur.Live); err != nil {
			if errors.Is(err, ratebudget.ErrQuotaExhausted) {
				res.Skipped = SkipQuota
				outcome = "skipped"
				log.Warn("monthly post quota exhausted, skipping", "error", err)
				return res, nil
			}
			return res, fmt.Errorf("check post quota: %w", err)
		}
	}

	pub, err := s.deps.Thread.Publish(ctx, cur.Thread)
	res.PostIDs = pub.PostIDs
	res.Resumed = pub.Resumed

	bctx, cancel := detached(ctx)
	defer cancel()
	s.consumeQuota(bctx, pub.Sent)
	if err != nil {
		span.RecordError(err)
		log.Error("thread publish failed", "platform", s.deps.Thread.Platform(), "sent", len(pub.PostIDs), "error", err)
		if len(pub.PostIDs) > 0 {
			cur.Live = len(pub.PostIDs)
			if perr := s.savePending(bctx, cur); perr != nil {
				log.Error("saving interrupted thread failed", "error", perr)
			}
		}
		return res, fmt.Errorf("publish thread: %w", err)
	}
	res.Published = true
	outcome = "published"
	if pending != nil {
		s.clearPending(bctx)
	}
	log.Info("thread published", "platform", s.deps.Thread.Platform(), "posts", len(cur.Thread), "resumed", pub.Resumed)

	entry := ledger.Entry{Timestamp: now, Fingerprints: uniqueness.Fingerprints(cur.Thread), Influencers: cur.Influencers}
	recordErr := s.deps.Recorder.Record(bctx, entry)
	if recordErr != nil {
		span.RecordError(recordErr)
		log.Error("recording published thread failed", "error", recordErr)
	}

	if s.deps.Chat != nil && cur.Message != "" {
		if err := s.deps.Chat.Publish(ctx, cur.Message); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s digest: %v", s.deps.Chat.Platform(), err))
			log.Warn("chat digest failed", "platform", s.deps.Chat.Platform(), "error", err)
		} else {
			res.ChatSent = true
		}
	}

	if recordErr != nil {
		return res, fmt.Errorf("record thread: %w", recordErr)
	}
	return res, nil
}

func (s *ThreadService) consumeQuota(ctx context.Context, sent int) {
	if s.deps.Quota == nil {
		return
	}
	if err := s.deps.Quota.Add(ctx, sent); err != nil {
		slog.Warn("post quota update failed", "sent", sent, "error", err)
	}
	if left, err := s.deps.Quota.Remaining(ctx); err == nil && left >= 0 {
		s.deps.Metrics.QuotaLeft(left)
	}
}

// Preview gathers and composes both surfaces without touching the gate,
// the quota or any platform.
func (s *ThreadService) Preview(ctx context.Context) (Preview, error) {
	ctx, span := s.tracer.Start(ctx, "thread-service.preview")
	defer span.End()

	now := s.now().UTC()
	history, err := s.deps.Ledger.Load(ctx, s.historyWindow())
	if err != nil {
		slog.Warn("preview without thread history", "error", err)
		history = nil
	}
	in, errs := s.gather(ctx, now, history)
	if err := ctx.Err(); err != nil {
		return Preview{}, err
	}
	return Preview{
		Thread:  composer.Compose(in, composer.MicroBlog),
		Message: composer.ComposeMessage(in),
		Errors:  errs,
	}, nil
}

// History returns published threads no older than maxAge, newest first.
func (s *ThreadService) History(ctx context.Context, maxAge time.Duration) ([]ledger.Entry, error) {
	entries, err := s.deps.Ledger.Load(ctx, maxAge)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// QuotaRemaining reports the posts left this month, or -1 when unlimited.
func (s *ThreadService) QuotaRemaining(ctx context.Context) (int, error) {
	if s.deps.Quota == nil {
		return -1, nil
	}
	return s.deps.Quota.Remaining(ctx)
}
