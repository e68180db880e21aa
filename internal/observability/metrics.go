// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Refresh metrics
	RefreshRunsTotal    *prometheus.CounterVec
	RefreshDuration     prometheus.Histogram
	RefreshSkippedTotal prometheus.Counter
	SnapshotSize        prometheus.Gauge
	LastSuccessfulRun   prometheus.Gauge

	// Source metrics
	SourceErrorsTotal  *prometheus.CounterVec
	SourceFetchLatency *prometheus.HistogramVec
	SourceRecordsTotal *prometheus.CounterVec
	SourceRetriesTotal *prometheus.CounterVec

	// Realtime metrics
	ConnectedClients   prometheus.Gauge
	FilterGroups       prometheus.Gauge
	EventsSentTotal    *prometheus.CounterVec
	EventsDroppedTotal prometheus.Counter
	AlertsEmittedTotal *prometheus.CounterVec
	AlertPublishErrors prometheus.Counter

	// Cache metrics
	CacheRequestsTotal *prometheus.CounterVec
	CacheErrorsTotal   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimitedTotal    prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "token_aggregator"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Refresh metrics
		RefreshRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "runs_total",
			Help:      "Total number of refresh cycles by status",
		}, []string{"status"}),
		RefreshDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "duration_seconds",
			Help:      "Refresh cycle duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		RefreshSkippedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "skipped_total",
			Help:      "Refresh triggers skipped because a cycle was already running",
		}),
		SnapshotSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "snapshot_records",
			Help:      "Number of records in the current snapshot",
		}),
		LastSuccessfulRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_refresh_timestamp",
			Help:      "Unix timestamp of last snapshot replacement",
		}),

		// Source metrics
		SourceErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "errors_total",
			Help:      "Total number of failed upstream fetches by source",
		}, []string{"source"}),
		SourceFetchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "request_latency_seconds",
			Help:      "Upstream request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source", "operation"}),
		SourceRecordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "records_total",
			Help:      "Total number of records returned by source",
		}, []string{"source"}),
		SourceRetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "retries_total",
			Help:      "Total number of retried upstream requests",
		}, []string{"source"}),

		// Realtime metrics
		ConnectedClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "connected_clients",
			Help:      "Number of connected realtime clients",
		}),
		FilterGroups: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "filter_groups",
			Help:      "Number of active filter groups",
		}),
		EventsSentTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "events_sent_total",
			Help:      "Total number of events queued to clients by event name",
		}, []string{"event"}),
		EventsDroppedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a client send buffer was full",
		}),
		AlertsEmittedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "alerts_emitted_total",
			Help:      "Total number of price and volume alerts by type",
		}, []string{"type"}),
		AlertPublishErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "publish_errors_total",
			Help:      "Total number of alerts that failed to reach the alert sink",
		}),

		// Cache metrics
		CacheRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache lookups by area and result",
		}, []string{"area", "result"}),
		CacheErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Cache operation errors by operation",
		}, []string{"operation"}),

		// HTTP metrics
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		RateLimitedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordRefresh records a finished refresh cycle. status is "ok", "empty" or "error".
func RecordRefresh(status string, durationSeconds float64) {
	DefaultMetrics.RefreshRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.RefreshDuration.Observe(durationSeconds)
}

// RecordRefreshSkipped increments the skipped refresh counter.
func RecordRefreshSkipped() {
	DefaultMetrics.RefreshSkippedTotal.Inc()
}

// RecordSnapshot records a snapshot replacement.
func RecordSnapshot(records int, unixSeconds int64) {
	DefaultMetrics.SnapshotSize.Set(float64(records))
	DefaultMetrics.LastSuccessfulRun.Set(float64(unixSeconds))
}

// RecordSourceError records a failed fetch from source.
func RecordSourceError(source string) {
	DefaultMetrics.SourceErrorsTotal.WithLabelValues(source).Inc()
}

// RecordSourceRecords counts records returned by source.
func RecordSourceRecords(source string, n int) {
	DefaultMetrics.SourceRecordsTotal.WithLabelValues(source).Add(float64(n))
}

// RecordSourceLatency records upstream request latency.
func RecordSourceLatency(source, operation string, seconds float64) {
	DefaultMetrics.SourceFetchLatency.WithLabelValues(source, operation).Observe(seconds)
}

// RecordSourceRetry increments the retry counter for source.
func RecordSourceRetry(source string) {
	DefaultMetrics.SourceRetriesTotal.WithLabelValues(source).Inc()
}

// UpdateRealtime sets the client and filter group gauges.
func UpdateRealtime(clients, groups int) {
	DefaultMetrics.ConnectedClients.Set(float64(clients))
	DefaultMetrics.FilterGroups.Set(float64(groups))
}

// RecordEventSent counts an event queued to a client.
func RecordEventSent(event string) {
	DefaultMetrics.EventsSentTotal.WithLabelValues(event).Inc()
}

// RecordEventDropped counts an event dropped on a full client buffer.
func RecordEventDropped() {
	DefaultMetrics.EventsDroppedTotal.Inc()
}

// RecordAlert counts an emitted alert of the given event type.
func RecordAlert(event string) {
	DefaultMetrics.AlertsEmittedTotal.WithLabelValues(event).Inc()
}

// RecordAlertPublishError counts an alert the sink rejected.
func RecordAlertPublishError() {
	DefaultMetrics.AlertPublishErrors.Inc()
}

// RecordCacheLookup records a cache hit or miss for area.
func RecordCacheLookup(area string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.CacheRequestsTotal.WithLabelValues(area, result).Inc()
}

// RecordCacheError records a failed cache operation.
func RecordCacheError(operation string) {
	DefaultMetrics.CacheErrorsTotal.WithLabelValues(operation).Inc()
}

// RecordHTTPRequest records a served HTTP request.
func RecordHTTPRequest(route, status string, seconds float64) {
	DefaultMetrics.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	DefaultMetrics.HTTPRequestDuration.WithLabelValues(route).Observe(seconds)
}

// RecordRateLimited counts a request rejected by the rate limiter.
func RecordRateLimited() {
	DefaultMetrics.RateLimitedTotal.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(operation).Inc()
	}
}
