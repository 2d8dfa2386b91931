// Package metrics exposes Prometheus metrics and the /healthz status of
// the kline service.
package metrics

import (
	"strconv"
	"time"

	"kline-service/internal/breaker"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the kline service.
type Metrics struct {
	// Ingest path
	FetchTotal          *prometheus.CounterVec   // labels: resolution, result (ok|network|status|...)
	FetchDur            *prometheus.HistogramVec // labels: resolution
	CandlesUpserted     *prometheus.CounterVec   // labels: resolution
	SQLiteCommitDur     prometheus.Histogram
	IngestCycleDur      prometheus.Histogram
	LastIngest          *prometheus.GaugeVec // labels: resolution; unix seconds
	ConsecutiveFailures *prometheus.GaugeVec // labels: resolution
	AlertsSent          *prometheus.CounterVec

	// Retention
	RetentionDeleted *prometheus.CounterVec // labels: resolution
	StoredCandles    *prometheus.GaugeVec   // labels: resolution

	// Read path
	QueryTotal *prometheus.CounterVec // labels: kind, result
	HTTPDur    *prometheus.HistogramVec

	// Circuit breakers
	BreakerState *prometheus.GaugeVec   // labels: name; 0=closed, 1=open, 2=half-open
	BreakerTrips *prometheus.CounterVec // labels: name

	// Redis publisher
	RedisPublishTotal *prometheus.CounterVec // labels: result
	RedisPending      prometheus.Gauge       // candles parked while Redis is unreachable
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klined_fetch_total",
			Help: "Upstream kline fetches by outcome",
		}, []string{"resolution", "result"}),
		FetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "klined_fetch_duration_seconds",
			Help:    "Fetch plus upsert latency per resolution",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"resolution"}),
		CandlesUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klined_candles_upserted_total",
			Help: "Candles written to the store",
		}, []string{"resolution"}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "klined_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		IngestCycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "klined_ingest_cycle_duration_seconds",
			Help:    "Duration of one ingest cycle over all resolutions",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		LastIngest: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "klined_last_ingest_timestamp_seconds",
			Help: "Unix time of the last successful ingest per resolution",
		}, []string{"resolution"}),
		ConsecutiveFailures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "klined_ingest_consecutive_failures",
			Help: "Consecutive failed ingests per resolution",
		}, []string{"resolution"}),
		AlertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klined_alerts_sent_total",
			Help: "Alerts sent by level",
		}, []string{"level"}),

		RetentionDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klined_retention_deleted_total",
			Help: "Candles deleted by the retention sweep",
		}, []string{"resolution"}),
		StoredCandles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "klined_stored_candles",
			Help: "Candles currently stored per resolution",
		}, []string{"resolution"}),

		QueryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klined_queries_total",
			Help: "Read-path queries by kind and outcome",
		}, []string{"kind", "result"}),
		HTTPDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "klined_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "code"}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "klined_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klined_circuit_breaker_trips_total",
			Help: "Times a circuit breaker tripped open",
		}, []string{"name"}),

		RedisPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klined_redis_publish_total",
			Help: "Latest-candle publishes to Redis by outcome",
		}, []string{"result"}),
		RedisPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "klined_redis_pending_candles",
			Help: "Latest candles parked until the next successful Redis publish",
		}),
	}

	reg.MustRegister(
		m.FetchTotal,
		m.FetchDur,
		m.CandlesUpserted,
		m.SQLiteCommitDur,
		m.IngestCycleDur,
		m.LastIngest,
		m.ConsecutiveFailures,
		m.AlertsSent,
		m.RetentionDeleted,
		m.StoredCandles,
		m.QueryTotal,
		m.HTTPDur,
		m.BreakerState,
		m.BreakerTrips,
		m.RedisPublishTotal,
		m.RedisPending,
	)

	return m
}

// ObserveHTTP records one request.
func (m *Metrics) ObserveHTTP(route string, code int, took time.Duration) {
	m.HTTPDur.WithLabelValues(route, strconv.Itoa(code)).Observe(took.Seconds())
}

// BreakerHook returns an OnStateChange callback that tracks breaker state.
func (m *Metrics) BreakerHook() func(name string, from, to breaker.State) {
	return func(name string, from, to breaker.State) {
		m.BreakerState.WithLabelValues(name).Set(float64(to))
		if to == breaker.StateOpen {
			m.BreakerTrips.WithLabelValues(name).Inc()
		}
	}
}
