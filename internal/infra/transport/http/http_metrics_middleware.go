package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics holds the request counters and latency histogram of a server.
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewHTTPMetrics creates the HTTP metrics and registers them with reg.
func NewHTTPMetrics(reg prometheus.Registerer, serviceName string) *HTTPMetrics {
	m := &HTTPMetrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"method", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "Histogram of HTTP request latency",
				ConstLabels: prometheus.Labels{"service": serviceName},
				Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method"},
		),
	}

	reg.MustRegister(m.RequestsTotal, m.RequestDuration)

	return m
}

// MetricsMiddleware counts requests by method and status and observes their latency.
// A nil metrics disables it.
func MetricsMiddleware(next http.Handler, metrics *HTTPMetrics) http.Handler {
	if metrics == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := NewResponseRecorder(w)

		next.ServeHTTP(rec, r)

		metrics.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.StatusCode)).Inc()
		metrics.RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
