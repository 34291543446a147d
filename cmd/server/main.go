package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cryptothreads/internal/app"
	"cryptothreads/internal/bot"
	"cryptothreads/internal/config"
	"cryptothreads/internal/handler"
	"cryptothreads/internal/job"
	"cryptothreads/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "cryptothreads/docs"
)

const (
	serviceName = "cryptothreads"
	// jobDrainTimeout bounds the wait for an in-flight cycle on shutdown.
	jobDrainTimeout = 30 * time.Second
)

var (
	loadEnvFunc      = godotenv.Load
	loadConfigFunc   = config.Load
	initTracerFunc   = tracing.InitTracer
	buildAppFunc     = app.Build
	runThreadJob     = func(j *job.ThreadJob, ctx context.Context) { j.Start(ctx) }
	runSweepJob      = func(j *job.SweepJob, ctx context.Context) { j.Start(ctx) }
	startTelegramBot = func(a *app.App, deps bot.Deps) {
		if a.Bot != nil {
			bot.StartTelegramBot(a.Bot, deps)
		}
	}
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
	exitFunc               = os.Exit
)

// @title           cryptothreads API
// @version         1.0
// @description     Publishes crypto market threads and chat digests on a schedule.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        X-API-Key
func main() {
	_ = loadEnvFunc()

	cfg := loadConfigFunc()
	slog.SetDefault(newLogger(cfg))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		exitFunc(1)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, tracer, err := initTracerFunc(ctx, serviceName)
	if err != nil {
		slog.Error("failed to initialize tracer", "error", err)
		exitFunc(1)
		return
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			slog.Warn("error shutting down tracer provider", "error", err)
		}
	}()

	a, err := buildAppFunc(ctx, cfg, tracer, app.Options{})
	if err != nil {
		slog.Error("failed to build services", "error", err)
		exitFunc(1)
		return
	}
	defer a.Close()

	var jobs sync.WaitGroup
	threadJob := job.NewThreadJob(ctx, tracer, a.Threads, cfg.ThreadInterval)
	jobs.Go(func() { runThreadJob(threadJob, ctx) })

	sweepJob := job.NewSweepJob(tracer, cfg.CacheSweepInterval, a.Metrics, a.SweepTasks()...)
	jobs.Go(func() { runSweepJob(sweepJob, ctx) })

	startTelegramBot(a, bot.Deps{Cycles: threadJob, Threads: a.Threads, Rates: a.Tracker})

	h := handler.New(tracer, a.Threads, a.Tracker)
	h.SetCycleTrigger(threadJob)
	h.SetMetricsHandler(a.Metrics.Handler())

	r := newRouterFunc()
	r.Use(otelgin.Middleware(serviceName))

	h.RegisterRoutes(r, cfg.APIKey)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed", "error", err)
			select {
			case quit <- syscall.SIGTERM:
			default:
			}
		}
	}()
	slog.Info("server started", "addr", srv.Addr, "platform", cfg.MicroBlogPlatform, "interval", cfg.ThreadInterval)

	waitForSignalFunc(quit)
	slog.Info("shutting down server")

	cancel()
	if a.Bot != nil {
		a.Bot.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if !waitForJobs(&jobs, jobDrainTimeout) {
		slog.Warn("jobs still running at shutdown", "timeout", jobDrainTimeout)
	}

	slog.Info("server exiting")
}

// waitForJobs reports whether every job returned within timeout.
func waitForJobs(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
