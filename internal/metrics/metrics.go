package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	VotesTotal       *prometheus.CounterVec
	PairsTotal       *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	FinalizeDuration prometheus.Histogram
}

// New registers all collectors on a fresh registry. Pool gauges are added
// when a database pool is given.
func New(pool *pgxpool.Pool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		VotesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contestvote_votes_total",
				Help: "Vote attempts, by outcome.",
			},
			[]string{"outcome"},
		),
		PairsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contestvote_pairs_total",
				Help: "Pair requests, by outcome.",
			},
			[]string{"outcome"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "contestvote_api_request_duration_seconds",
				Help:    "HTTP request duration in seconds, by route, method and status.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "contestvote_requests_in_flight",
				Help: "Number of HTTP requests currently being served.",
			},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "contestvote_standings_cache_hits_total",
				Help: "Live standings served from Redis.",
			},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "contestvote_standings_cache_misses_total",
				Help: "Live standings computed from the store.",
			},
		),
		FinalizeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "contestvote_finalize_duration_seconds",
				Help:    "Duration of contest finalization.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.VotesTotal,
		m.PairsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.CacheHits,
		m.CacheMisses,
		m.FinalizeDuration,
	)

	if pool != nil {
		m.registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "contestvote_db_connection_pool_active",
					Help: "Number of acquired database connections.",
				},
				func() float64 { return float64(pool.Stat().AcquiredConns()) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "contestvote_db_connection_pool_idle",
					Help: "Number of idle database connections.",
				},
				func() float64 { return float64(pool.Stat().IdleConns()) },
			),
		)
	}

	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request duration and in-flight count. Requests are
// labelled by chi route pattern to keep ids out of the label set.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}

// ObserveVote counts one vote attempt
func (m *Metrics) ObserveVote(outcome string) {
	if m == nil {
		return
	}
	m.VotesTotal.WithLabelValues(outcome).Inc()
}

// ObservePair counts one pair request
func (m *Metrics) ObservePair(outcome string) {
	if m == nil {
		return
	}
	m.PairsTotal.WithLabelValues(outcome).Inc()
}

// CacheHit counts a standings cache hit
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// CacheMiss counts a standings cache miss
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

// ObserveFinalize records how long a finalization took
func (m *Metrics) ObserveFinalize(d time.Duration) {
	if m == nil {
		return
	}
	m.FinalizeDuration.Observe(d.Seconds())
}
