package handler

import (
	"context"
	"net/http"
	"time"

	"cryptothreads/internal/job"
	"cryptothreads/internal/ledger"
	"cryptothreads/internal/ratebudget"
	"cryptothreads/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type ThreadReader interface {
	Preview(ctx context.Context) (service.Preview, error)
	History(ctx context.Context, maxAge time.Duration) ([]ledger.Entry, error)
	QuotaRemaining(ctx context.Context) (int, error)
}

type CycleTrigger interface {
	Trigger() error
	Running() bool
	Last() (job.LastRun, bool)
}

type RateReporter interface {
	Snapshot() []ratebudget.Status
}

type Handler struct {
	tracer  trace.Tracer
	threads ThreadReader
	cycles  CycleTrigger
	rates   RateReporter
	metrics http.Handler
}

func New(tracer trace.Tracer, threads ThreadReader, rates RateReporter) *Handler {
	return &Handler{
		tracer:  tracer,
		threads: threads,
		rates:   rates,
	}
}

// SetCycleTrigger enables POST /api/cycles.
func (h *Handler) SetCycleTrigger(cycles CycleTrigger) {
	h.cycles = cycles
}

func (h *Handler) SetMetricsHandler(metrics http.Handler) {
	h.metrics = metrics
}

// RegisterRoutes mounts the API. Routes that reach external services or
// publish are behind the API key when one is configured.
func (h *Handler) RegisterRoutes(r *gin.Engine, apiKey string) {
	r.GET("/health", h.Health)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics))
	}

	api := r.Group("/api")
	api.GET("/threads", h.GetThreads)
	api.GET("/rate", h.GetRate)

	protected := api.Group("", APIKeyAuth(apiKey))
	protected.GET("/threads/preview", h.PreviewThread)
	protected.POST("/cycles", h.TriggerCycle)
}
