// Package app builds the collaborators shared by the server and the
// operator CLI from a loaded configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cryptothreads/internal/bot"
	"cryptothreads/internal/cache"
	"cryptothreads/internal/config"
	"cryptothreads/internal/db"
	"cryptothreads/internal/influencer"
	"cryptothreads/internal/job"
	"cryptothreads/internal/ledger"
	"cryptothreads/internal/metrics"
	"cryptothreads/internal/provider"
	"cryptothreads/internal/publisher"
	"cryptothreads/internal/ratebudget"
	"cryptothreads/internal/sentiment"
	"cryptothreads/internal/service"
	"cryptothreads/internal/store"
	"cryptothreads/internal/uniqueness"

	"go.opentelemetry.io/otel/trace"
	tele "gopkg.in/telebot.v3"
)

const (
	quotaName    = "microblog"
	sentIndexTTL = 48 * time.Hour

	newsAPIDailyLimit = 100
	redditPerMinute   = 60
	youTubePerMinute  = 60
)

// Hooks for the parts of Build that reach the network; tests replace them.
var (
	initRedisFunc    = cache.InitRedis
	initPostgresFunc = db.InitPostgres
	newTelegramBot   = bot.NewTelegramBot
	loginBluesky     = func(ctx context.Context, c *publisher.BlueskyClient, handle, password string) error {
		return c.Login(ctx, handle, password)
	}
)

// App holds everything one process needs to run or inspect thread cycles.
type App struct {
	Config    *config.Config
	Tracer    trace.Tracer
	KV        store.KV
	Tracker   *ratebudget.Tracker
	Quota     *ratebudget.Quota
	Metrics   *metrics.Metrics
	Cache     *cache.ResponseCache
	Ledger    ledger.Ledger
	Gate      uniqueness.Gate
	SentIndex *publisher.KVSentIndex
	Threads   *service.ThreadService
	// Bot is nil when TELEGRAM_BOT_TOKEN is unset.
	Bot *tele.Bot

	closers []func()
}

// Options adjust Build for callers that do not publish.
type Options struct {
	// SkipTelegram leaves the bot unconnected; the chat digest is then
	// disabled too.
	SkipTelegram bool
}

// Build connects storage, registers rate budgets and assembles the thread
// service. The caller owns the returned App and must Close it.
func Build(ctx context.Context, cfg *config.Config, tracer trace.Tracer, opts Options) (*App, error) {
	policy, err := uniqueness.ParsePolicy(cfg.UniquenessPolicy)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Tracer: tracer, Metrics: metrics.New()}
	a.Gate = uniqueness.NewGate(cfg.UniquenessWindow, policy)

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openLedger(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Tracker = ratebudget.NewTracker(ratebudget.WithWaitHook(a.Metrics.RateWait))
	a.Tracker.Register(provider.CoinGeckoService, cfg.CoinGeckoRateLimit, time.Minute)
	a.Tracker.Register(provider.NewsAPIService, newsAPIDailyLimit, 24*time.Hour)
	a.Tracker.Register(provider.RedditService, redditPerMinute, time.Minute)
	a.Tracker.Register(provider.YouTubeService, youTubePerMinute, time.Minute)

	a.Quota = ratebudget.NewQuota(a.KV, quotaName, cfg.MonthlyPostQuota, nil)
	a.Cache = cache.New(a.KV, cache.WithObserver(a.Metrics))
	a.SentIndex = publisher.NewKVSentIndex(a.KV, cfg.MicroBlogPlatform, sentIndexTTL)

	thread, err := a.threadPublisher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := service.Deps{
		Market:      provider.NewCoinGeckoProvider(tracer, a.Tracker),
		Headlines:   provider.NewHeadlineFinder(a.headlineSources()...),
		FearGreed:   provider.NewFearGreedProvider(tracer),
		OnChain:     provider.NewOnChainSources(tracer),
		Sentiment:   a.sentimentScorer(),
		Influencers: influencer.NewPicker(nil, 0),
		Cache:       a.Cache,
		Ledger:      a.Ledger,
		Recorder:    ledger.NewRecorder(a.Ledger, cfg.HistoryRetention),
		Gate:        a.Gate,
		Quota:       a.Quota,
		Thread:      thread,
		Metrics:     a.Metrics,
		Pending:     a.KV,
	}
	if cfg.YouTubeAPIKey != "" && len(cfg.YouTubeChannels) > 0 {
		deps.Videos = provider.NewYouTubeProvider(tracer, cfg.YouTubeAPIKey, a.Tracker)
	}

	if !opts.SkipTelegram {
		b, err := newTelegramBot(cfg.TelegramBotToken)
		if err != nil {
			slog.Warn("telegram bot unavailable", "error", err)
		}
		a.Bot = b
		if b != nil && cfg.TelegramChatID != "" {
			deps.Chat = publisher.NewChatPublisher(publisher.NewTelegramChat(b), "telegram", cfg.TelegramChatID,
				a.publishConfig(), tracer, publisher.WithObserver(a.Metrics))
		}
	}

	a.Threads = service.NewThreadService(tracer, deps, service.Options{
		Coins:           cfg.Coins,
		YouTubeChannels: cfg.YouTubeChannels,
		PendingMaxAge:   sentIndexTTL,
	})
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.StoreBackend {
	case "redis":
		os.Setenv("REDIS_URL", a.Config.RedisURL)
		if err := initRedisFunc(ctx); err != nil {
			return err
		}
		client := cache.Client
		a.KV = store.NewRedisKV(client, "cryptothreads")
		a.closers = append(a.closers, func() { client.Close() })
	case "sqlite":
		kv, err := store.OpenSQLite(a.Config.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		a.KV = kv
		a.closers = append(a.closers, func() { kv.Close() })
	case "memory":
		slog.Warn("using in-memory store, quota and history reset on restart")
		a.KV = store.NewMemory()
	default:
		return fmt.Errorf("unsupported STORE_BACKEND=%q", a.Config.StoreBackend)
	}
	return nil
}

func (a *App) openLedger(ctx context.Context) error {
	if a.Config.LedgerBackend != "postgres" {
		a.Ledger = ledger.NewKVLedger(a.KV, nil)
		return nil
	}

	os.Setenv("DATABASE_URL", a.Config.DatabaseURL)
	if err := initPostgresFunc(ctx); err != nil {
		return err
	}
	a.closers = append(a.closers, db.Close)

	pg := ledger.NewPostgresLedger(db.Pool, a.Tracer)
	if err := pg.RunMigrations(ctx); err != nil {
		return fmt.Errorf("run ledger migrations: %w", err)
	}
	a.Ledger = pg
	return nil
}

func (a *App) publishConfig() publisher.Config {
	return publisher.Config{
		Cooldown:    a.Config.PublishCooldown,
		MaxAttempts: a.Config.PublishMaxAttempts,
	}
}

func (a *App) threadPublisher(ctx context.Context) (*publisher.ThreadPublisher, error) {
	var client publisher.MicroBlogClient
	switch a.Config.MicroBlogPlatform {
	case "x":
		client = publisher.NewXClient(ctx, a.Config.XAccessToken)
	case "bluesky":
		bc := publisher.NewBlueskyClient(a.Config.BlueskyPDS)
		if err := loginBluesky(ctx, bc, a.Config.BlueskyHandle, a.Config.BlueskyAppPassword); err != nil {
			return nil, fmt.Errorf("bluesky login: %w", err)
		}
		client = bc
	case "log":
		client = publisher.NewLogClient()
	default:
		return nil, fmt.Errorf("unsupported MICROBLOG_PLATFORM=%q", a.Config.MicroBlogPlatform)
	}
	return publisher.NewThreadPublisher(client, a.Config.MicroBlogPlatform, a.publishConfig(), a.Tracer,
		publisher.WithSentIndex(a.SentIndex),
		publisher.WithObserver(a.Metrics),
	), nil
}

func (a *App) headlineSources() []provider.HeadlineSource {
	var sources []provider.HeadlineSource
	if a.Config.NewsAPIKey != "" {
		sources = append(sources, provider.NewNewsAPIProvider(a.Tracer, a.Config.NewsAPIKey, a.Tracker))
	}
	sources = append(sources,
		provider.NewRSSProvider(a.Tracer, a.Config.RSSFeeds),
		provider.NewRedditProvider(a.Tracer, a.Tracker),
	)
	return sources
}

func (a *App) sentimentScorer() *sentiment.Scorer {
	if a.Config.OpenAIAPIKey == "" {
		return sentiment.NewScorer(nil, 0)
	}
	return sentiment.NewScorer(sentiment.NewOpenAIScorer(a.Config.OpenAIAPIKey, a.Config.OpenAIModel), 0)
}

// SweepTasks are the maintenance jobs run outside the thread cycle.
func (a *App) SweepTasks() []job.SweepTask {
	return []job.SweepTask{
		{Name: "cache", Run: func(ctx context.Context) (int, error) {
			return a.Cache.Sweep(ctx, a.Config.CacheRetention)
		}},
		{Name: "sent_index", Run: a.SentIndex.Sweep},
		{Name: "ledger", Run: func(ctx context.Context) (int, error) {
			return a.Ledger.Prune(ctx, a.Config.HistoryRetention)
		}},
	}
}

// Close releases store and database connections in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
