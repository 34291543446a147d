// Package metrics exposes Prometheus collectors for the posting pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cryptothreads"

// Metrics implements the cache, publisher and rate budget observer
// interfaces so components can report without importing Prometheus.
type Metrics struct {
	registry *prometheus.Registry

	// Cycle metrics
	CyclesTotal     *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
	DuplicateSkips  prometheus.Counter
	EntityFallbacks *prometheus.CounterVec
	LastPublishedAt prometheus.Gauge
	QuotaRemaining  prometheus.Gauge

	// Publisher metrics
	PostsPublished *prometheus.CounterVec
	PostFailures   *prometheus.CounterVec

	// Budget metrics
	RateWaits       *prometheus.CounterVec
	RateWaitSeconds *prometheus.CounterVec

	// Cache metrics
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheEvictions *prometheus.CounterVec
	SweepDeleted   *prometheus.CounterVec
}

// New registers every collector on a fresh registry, along with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Scheduling cycles by outcome",
		}, []string{"outcome"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Wall time of one scheduling cycle",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 900, 1800},
		}),
		DuplicateSkips: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duplicate_skips_total",
			Help:      "Threads discarded by the uniqueness gate",
		}),
		EntityFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "entity_fallbacks_total",
			Help:      "Entities rendered with a placeholder after a failed fetch",
		}, []string{"kind"}),
		LastPublishedAt: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "last_published_timestamp_seconds",
			Help:      "Unix time of the last published thread",
		}),
		QuotaRemaining: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "monthly_quota_remaining",
			Help:      "Posts left in this month's quota",
		}),

		PostsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "posts_published_total",
			Help:      "Posts accepted by a platform",
		}, []string{"platform"}),
		PostFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "post_failures_total",
			Help:      "Failed post attempts by platform and reason",
		}, []string{"platform", "reason"}),

		RateWaits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratebudget",
			Name:      "waits_total",
			Help:      "Calls that had to wait for the rate window",
		}, []string{"service"}),
		RateWaitSeconds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratebudget",
			Name:      "wait_seconds_total",
			Help:      "Time spent waiting for the rate window",
		}, []string{"service"}),

		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Fresh cache entries served",
		}, []string{"service"}),
		CacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Lookups that went to the upstream API",
		}, []string{"service"}),
		CacheEvictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evicted_total",
			Help:      "Entries deleted as corrupt or expired",
		}, []string{"service"}),
		SweepDeleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "deleted_total",
			Help:      "Records removed by maintenance sweeps",
		}, []string{"target"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests and custom exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

func (m *Metrics) CacheHit(service string)  { m.CacheHits.WithLabelValues(service).Inc() }
func (m *Metrics) CacheMiss(service string) { m.CacheMisses.WithLabelValues(service).Inc() }

func (m *Metrics) CacheEvicted(service string, n int) {
	m.CacheEvictions.WithLabelValues(service).Add(float64(n))
}

func (m *Metrics) PostPublished(platform string) {
	m.PostsPublished.WithLabelValues(platform).Inc()
}

func (m *Metrics) PostFailed(platform string, rateLimited bool) {
	reason := "error"
	if rateLimited {
		reason = "rate_limited"
	}
	m.PostFailures.WithLabelValues(platform, reason).Inc()
}

// RateWait matches ratebudget.WithWaitHook.
func (m *Metrics) RateWait(service string, d time.Duration) {
	m.RateWaits.WithLabelValues(service).Inc()
	m.RateWaitSeconds.WithLabelValues(service).Add(d.Seconds())
}

// CycleFinished records one cycle. outcome is published, duplicate,
// skipped or failed.
func (m *Metrics) CycleFinished(outcome string, d time.Duration) {
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(d.Seconds())
	switch outcome {
	case "duplicate":
		m.DuplicateSkips.Inc()
	case "published":
		m.LastPublishedAt.SetToCurrentTime()
	}
}

func (m *Metrics) EntityFallback(kind string) { m.EntityFallbacks.WithLabelValues(kind).Inc() }

func (m *Metrics) QuotaLeft(n int) { m.QuotaRemaining.Set(float64(n)) }

func (m *Metrics) Swept(target string, n int) {
	m.SweepDeleted.WithLabelValues(target).Add(float64(n))
}
