// Package middleware provides HTTP middleware for the device fleet control
// plane.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// hbWriteLatency is the heartbeat write-path histogram tracking the
	// performance contract (p95 ≤ 150ms, p99 ≤ 300ms).
	hbWriteLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hb_write_latency_ms",
			Help:    "Heartbeat ingest write-path latency in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 75, 100, 150, 200, 300, 500, 1000},
		},
	)

	dispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_dispatches_total",
			Help: "Total number of command dispatches by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	alertsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_alerts_emitted_total",
			Help: "Total number of alert notifications emitted by condition",
		},
		[]string{"condition", "kind"},
	)

	alertDedupeHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alert_dedupe_hit_total",
			Help: "Alert notifications suppressed by per-device cooldown",
		},
	)

	alertRateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alert_rate_limited_total",
			Help: "Alert notifications dropped by the global rate cap",
		},
	)

	dbPoolInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_pool_in_use",
			Help: "Number of database connections currently checked out",
		},
	)

	dbPoolUtilizationPct = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_pool_utilization_pct",
			Help: "Database pool utilization as a percentage of max capacity",
		},
	)

	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_errors_total",
			Help: "Total number of errors by class",
		},
		[]string{"class"},
	)
)

// Metrics returns a middleware that records Prometheus metrics for every
// HTTP request.
func Metrics() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

			path := normalizePath(r)

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			status := strconv.Itoa(wrapped.status)

			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration.Seconds())

			if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/heartbeat") {
				hbWriteLatency.Observe(float64(duration.Milliseconds()))
			}

			if wrapped.status >= 400 {
				class := "client_error"
				if wrapped.status >= 500 {
					class = "server_error"
				}
				errorsTotal.WithLabelValues(class).Inc()
			}
		})
	}
}

type metricsResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes URL paths to prevent cardinality explosion.
func normalizePath(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}

	path := r.URL.Path
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if len(seg) == 36 && strings.Count(seg, "-") == 4 {
			segments[i] = "{id}"
		}
		if len(seg) == 26 && isAlphanumeric(seg) {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

func isAlphanumeric(s string) bool {
	for _, c := range s {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}

// IncrementDispatch records a command dispatch outcome. Called from the
// dispatch service in addition to the HTTP middleware, since a dispatch
// terminates asynchronously via the ack endpoint, not within the request
// that created it.
func IncrementDispatch(action, outcome string) {
	dispatchesTotal.WithLabelValues(action, outcome).Inc()
}

// IncrementAlert records an alert notification of the given kind
// ("raise", "recover", "rollup").
func IncrementAlert(condition, kind string) {
	alertsEmittedTotal.WithLabelValues(condition, kind).Inc()
}

// IncrementAlertDedupeHit records a per-device cooldown suppression.
func IncrementAlertDedupeHit() {
	alertDedupeHitsTotal.Inc()
}

// IncrementAlertRateLimited records a global-cap drop.
func IncrementAlertRateLimited() {
	alertRateLimitedTotal.Inc()
}

// SetPoolStats updates the pool governor gauges.
func SetPoolStats(inUse int32, utilizationPct float64) {
	dbPoolInUse.Set(float64(inUse))
	dbPoolUtilizationPct.Set(utilizationPct)
}
