package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cryptothreads/internal/config"
	"cryptothreads/internal/ledger"
	"cryptothreads/internal/publisher"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func testConfig() *config.Config {
	return &config.Config{
		StoreBackend:       "memory",
		LedgerBackend:      "kv",
		MicroBlogPlatform:  "log",
		UniquenessPolicy:   "majority",
		UniquenessWindow:   48 * time.Hour,
		HistoryRetention:   30 * 24 * time.Hour,
		CacheRetention:     time.Hour,
		CoinGeckoRateLimit: 30,
		MonthlyPostQuota:   500,
		Coins:              []string{"bitcoin"},
	}
}

func testTracer() trace.Tracer {
	return trace.NewNoopTracerProvider().Tracer("test")
}

func TestBuildInMemory(t *testing.T) {
	a, err := Build(context.Background(), testConfig(), testTracer(), Options{SkipTelegram: true})
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Threads)
	require.Nil(t, a.Bot)
	require.Equal(t, 48*time.Hour, a.Gate.Window)

	left, err := a.Threads.QuotaRemaining(context.Background())
	require.NoError(t, err)
	require.Equal(t, 500, left)

	services := map[string]bool{}
	for _, st := range a.Tracker.Snapshot() {
		services[st.Service] = true
	}
	require.True(t, services["coingecko"])
	require.True(t, services["newsapi"])
	require.True(t, services["reddit"])
	require.True(t, services["youtube"])
}

func TestSweepTasksPruneLedger(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, testConfig(), testTracer(), Options{SkipTelegram: true})
	require.NoError(t, err)
	defer a.Close()

	old := ledger.Entry{Timestamp: time.Now().Add(-40 * 24 * time.Hour), Fingerprints: []string{"a"}}
	fresh := ledger.Entry{Timestamp: time.Now().Add(-time.Hour), Fingerprints: []string{"b"}}
	require.NoError(t, a.Ledger.Append(ctx, old))
	require.NoError(t, a.Ledger.Append(ctx, fresh))

	tasks := a.SweepTasks()
	names := make([]string, 0, len(tasks))
	for _, task := range tasks {
		names = append(names, task.Name)
	}
	require.Equal(t, []string{"cache", "sent_index", "ledger"}, names)

	n, err := tasks[2].Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	left, err := a.Ledger.Load(ctx, 365*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, left, 1)
}

func TestBuildSQLite(t *testing.T) {
	cfg := testConfig()
	cfg.StoreBackend = "sqlite"
	cfg.SQLitePath = filepath.Join(t.TempDir(), "threads.db")

	a, err := Build(context.Background(), cfg, testTracer(), Options{SkipTelegram: true})
	require.NoError(t, err)
	a.Close()
}

func TestBuildRejectsBadSettings(t *testing.T) {
	cases := map[string]func(*config.Config){
		"policy":   func(c *config.Config) { c.UniquenessPolicy = "loose" },
		"store":    func(c *config.Config) { c.StoreBackend = "etcd" },
		"platform": func(c *config.Config) { c.MicroBlogPlatform = "myspace" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(cfg)
			_, err := Build(context.Background(), cfg, testTracer(), Options{SkipTelegram: true})
			require.Error(t, err)
		})
	}
}

func TestBuildPostgresFailure(t *testing.T) {
	orig := initPostgresFunc
	t.Cleanup(func() { initPostgresFunc = orig })
	initPostgresFunc = func(context.Context) error { return errors.New("no route to host") }

	cfg := testConfig()
	cfg.LedgerBackend = "postgres"
	cfg.DatabaseURL = "postgres://db/threads"

	_, err := Build(context.Background(), cfg, testTracer(), Options{SkipTelegram: true})
	require.ErrorContains(t, err, "no route to host")
}

func TestBuildBlueskyLogin(t *testing.T) {
	orig := loginBluesky
	t.Cleanup(func() { loginBluesky = orig })

	var gotHandle string
	loginBluesky = func(_ context.Context, _ *publisher.BlueskyClient, handle, _ string) error {
		gotHandle = handle
		return nil
	}

	cfg := testConfig()
	cfg.MicroBlogPlatform = "bluesky"
	cfg.BlueskyHandle = "threads.bsky.social"
	cfg.BlueskyAppPassword = "app-pass"

	a, err := Build(context.Background(), cfg, testTracer(), Options{SkipTelegram: true})
	require.NoError(t, err)
	defer a.Close()
	require.Equal(t, "threads.bsky.social", gotHandle)

	loginBluesky = func(context.Context, *publisher.BlueskyClient, string, string) error {
		return errors.New("invalid app password")
	}
	_, err = Build(context.Background(), cfg, testTracer(), Options{SkipTelegram: true})
	require.ErrorContains(t, err, "bluesky login")
}
