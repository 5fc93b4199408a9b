package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives one observation per service operation. Nil-safe
// implementations are not required; the service substitutes a no-op
// recorder when none is configured.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// NopMetricsRecorder discards all observations.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

var _ MetricsRecorder = NopMetricsRecorder{}
var _ MetricsRecorder = (*PrometheusMetricsRecorder)(nil)

// PrometheusMetricsRecorder aggregates operation outcomes into a dedicated
// prometheus registry: a result counter labelled by operation and status,
// and a duration histogram labelled by operation.
type PrometheusMetricsRecorder struct {
	registry  *prometheus.Registry
	results   *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder constructs a recorder with its own registry
// so scrape endpoints expose only biomecore series.
func NewPrometheusMetricsRecorder() *PrometheusMetricsRecorder {
	rec := &PrometheusMetricsRecorder{
		registry: prometheus.NewRegistry(),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "biomecore",
			Name:      "operations_total",
			Help:      "Service operations by outcome.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "biomecore",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"operation"}),
	}
	rec.registry.MustRegister(rec.results, rec.durations)
	return rec
}

// Registry exposes the backing registry for a promhttp handler.
func (r *PrometheusMetricsRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observe records one service operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.results.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}
