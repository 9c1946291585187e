package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/coursehub/core/enrollment"
)

// Metrics holds all Prometheus metrics of the API.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Enrollment metrics
	SelfHealsTotal     prometheus.Counter
	PrunedLessonsTotal prometheus.Counter
	StaleRetriesTotal  prometheus.Counter

	// Notification metrics
	NotificationsTotal *prometheus.CounterVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

var _ enrollment.Observer = (*Metrics)(nil) // interface compliance check

// NewMetrics creates and registers all Prometheus metrics. They are registered once per process.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "coursehub_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "coursehub_http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),

			SelfHealsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "coursehub_enrollment_self_heals_total",
					Help: "Total number of enrollments rewritten by a progress read",
				},
			),
			PrunedLessonsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "coursehub_enrollment_pruned_lessons_total",
					Help: "Total number of completed lessons dropped because they left the course",
				},
			),
			StaleRetriesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "coursehub_enrollment_stale_retries_total",
					Help: "Total number of enrollment updates retried after a concurrent write",
				},
			),

			NotificationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "coursehub_notifications_total",
					Help: "Total number of notification tasks by result",
				},
				[]string{"event", "result"},
			),
		}
	})

	return sharedMetrics
}

// Handler serves the metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordNotification records the outcome of a notification task: sent, skipped, failed or panicked.
func (m *Metrics) RecordNotification(event, result string) {
	m.NotificationsTotal.WithLabelValues(event, result).Inc()
}

func (m *Metrics) ObserveSelfHeal(pruned int) {
	m.SelfHealsTotal.Inc()
	if pruned > 0 {
		m.PrunedLessonsTotal.Add(float64(pruned))
	}
}

func (m *Metrics) ObserveStaleRetry() {
	m.StaleRetriesTotal.Inc()
}
