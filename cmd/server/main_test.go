package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cryptothreads/internal/app"
	"cryptothreads/internal/bot"
	"cryptothreads/internal/config"
	"cryptothreads/internal/job"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type bootstrap struct {
	threadJobStarted atomic.Bool
	sweepJobStarted  atomic.Bool
	botStarted       bool
	exitCode         int
}

func testConfig() *config.Config {
	return &config.Config{
		Port:               "9090",
		StoreBackend:       "memory",
		LedgerBackend:      "kv",
		MicroBlogPlatform:  "log",
		UniquenessPolicy:   "majority",
		UniquenessWindow:   48 * time.Hour,
		HistoryRetention:   30 * 24 * time.Hour,
		CacheRetention:     time.Hour,
		CacheSweepInterval: time.Hour,
		ThreadInterval:     4 * time.Hour,
		CoinGeckoRateLimit: 30,
		MonthlyPostQuota:   500,
		LogFormat:          "text",
		LogLevel:           "error",
	}
}

func stubServerDeps(t *testing.T, cfg *config.Config) *bootstrap {
	t.Helper()
	gin.SetMode(gin.TestMode)

	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origInitTracer := initTracerFunc
	origBuildApp := buildAppFunc
	origRunThread := runThreadJob
	origRunSweep := runSweepJob
	origStartTelegram := startTelegramBot
	origNewRouter := newRouterFunc
	origSetupSignal := setupSignalNotify
	origWait := waitForSignalFunc
	origStartHTTP := startHTTPServerFunc
	origShutdownHTTP := shutdownHTTPServerFunc
	origExit := exitFunc
	t.Cleanup(func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		initTracerFunc = origInitTracer
		buildAppFunc = origBuildApp
		runThreadJob = origRunThread
		runSweepJob = origRunSweep
		startTelegramBot = origStartTelegram
		newRouterFunc = origNewRouter
		setupSignalNotify = origSetupSignal
		waitForSignalFunc = origWait
		startHTTPServerFunc = origStartHTTP
		shutdownHTTPServerFunc = origShutdownHTTP
		exitFunc = origExit
	})

	b := &bootstrap{exitCode: -1}
	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = func() *config.Config { return cfg }
	initTracerFunc = func(context.Context, string) (*sdktrace.TracerProvider, trace.Tracer, error) {
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("test"), nil
	}
	runThreadJob = func(*job.ThreadJob, context.Context) { b.threadJobStarted.Store(true) }
	runSweepJob = func(*job.SweepJob, context.Context) { b.sweepJobStarted.Store(true) }
	startTelegramBot = func(*app.App, bot.Deps) { b.botStarted = true }
	newRouterFunc = func(...gin.OptionFunc) *gin.Engine { return gin.New() }
	setupSignalNotify = func(chan<- os.Signal, ...os.Signal) {}
	waitForSignalFunc = func(<-chan os.Signal) {}
	startHTTPServerFunc = func(*http.Server) error { return http.ErrServerClosed }
	shutdownHTTPServerFunc = func(*http.Server, context.Context) error { return nil }
	exitFunc = func(code int) { b.exitCode = code }
	return b
}

func runMain(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("main did not exit")
	}
}

func TestMainBootstrap(t *testing.T) {
	b := stubServerDeps(t, testConfig())

	runMain(t)

	require.Equal(t, -1, b.exitCode)
	require.True(t, b.threadJobStarted.Load())
	require.True(t, b.sweepJobStarted.Load())
	require.True(t, b.botStarted)
}

func TestMainWaitsForJobsBeforeClosing(t *testing.T) {
	b := stubServerDeps(t, testConfig())
	var cycleDone atomic.Bool
	runThreadJob = func(_ *job.ThreadJob, ctx context.Context) {
		b.threadJobStarted.Store(true)
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		cycleDone.Store(true)
	}

	runMain(t)

	require.True(t, cycleDone.Load())
}

func TestWaitForJobsTimesOut(t *testing.T) {
	var wg sync.WaitGroup
	release := make(chan struct{})
	defer close(release)
	wg.Go(func() { <-release })

	require.False(t, waitForJobs(&wg, 20*time.Millisecond))
}

func TestMainRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MicroBlogPlatform = "x"
	b := stubServerDeps(t, cfg)

	runMain(t)

	require.Equal(t, 1, b.exitCode)
	require.False(t, b.threadJobStarted.Load())
}

func TestMainExitsWhenBuildFails(t *testing.T) {
	b := stubServerDeps(t, testConfig())
	buildAppFunc = func(context.Context, *config.Config, trace.Tracer, app.Options) (*app.App, error) {
		return nil, errors.New("redis unreachable")
	}

	runMain(t)

	require.Equal(t, 1, b.exitCode)
	require.False(t, b.threadJobStarted.Load())
}

func TestNewLoggerLevel(t *testing.T) {
	cfg := testConfig()
	cfg.LogLevel = "debug"
	logger := newLogger(cfg)
	require.True(t, logger.Enabled(context.Background(), -4))

	cfg.LogLevel = "bogus"
	logger = newLogger(cfg)
	require.False(t, logger.Enabled(context.Background(), -4))
}
