// Package metrics exposes Prometheus collectors for the HTTP surface and the
// scheduling engine.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cadence_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cadence_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	executionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_executions_total",
			Help: "Total number of finished task executions",
		},
		[]string{"status"},
	)

	executionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cadence_execution_duration_seconds",
			Help:    "Time from task fire to dispatch hand-off in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"status"},
	)

	executionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cadence_executions_in_flight",
			Help: "Number of executions currently running",
		},
	)

	armedTimers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cadence_armed_timers",
			Help: "Number of tasks with a live timer",
		},
	)

	tasksTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cadence_tasks",
			Help: "Number of registered tasks",
		},
		[]string{"state"},
	)

	eventStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cadence_event_streams",
			Help: "Number of connected WebSocket event streams",
		},
	)

	cleanupDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cadence_cleanup_deleted_executions_total",
			Help: "Total number of executions removed by retention cleanup",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func IncrementInFlight() {
	httpRequestsInFlight.Inc()
}

func DecrementInFlight() {
	httpRequestsInFlight.Dec()
}

func ExecutionStarted() {
	executionsInFlight.Inc()
}

// ExecutionFinished records a terminal execution and releases its in-flight
// slot.
func ExecutionFinished(status string, duration time.Duration) {
	executionsInFlight.Dec()
	executionsTotal.WithLabelValues(status).Inc()
	executionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func UpdateSchedulerStats(total, enabled, armed int) {
	tasksTotal.WithLabelValues("enabled").Set(float64(enabled))
	tasksTotal.WithLabelValues("disabled").Set(float64(total - enabled))
	armedTimers.Set(float64(armed))
}

func IncrementEventStreams() {
	eventStreams.Inc()
}

func DecrementEventStreams() {
	eventStreams.Dec()
}

func RecordCleanup(deleted int) {
	cleanupDeleted.Add(float64(deleted))
}

// NormalizePath turns a ServeMux pattern such as "GET /api/tasks/{id}" into
// a low-cardinality label like "/api/tasks/:id".
func NormalizePath(pattern string) string {
	if _, path, ok := strings.Cut(pattern, " "); ok {
		pattern = path
	}
	if len(pattern) > 100 {
		pattern = pattern[:100]
	}

	var b strings.Builder
	inParam := false
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; {
		case c == '{':
			inParam = true
			b.WriteByte(':')
		case c == '}':
			inParam = false
		case inParam && c == '.':
			// "{rest...}" wildcards keep only the name.
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
