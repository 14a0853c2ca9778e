package vecd

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Compile-time check that PrometheusCollector satisfies MetricsCollector.
var _ MetricsCollector = (*PrometheusCollector)(nil)

// PrometheusCollector implements MetricsCollector on top of a Prometheus
// registry. Operations share one counter and one latency histogram, labeled
// by operation name and status.
type PrometheusCollector struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	batchItems *prometheus.CounterVec
}

// NewPrometheusCollector creates a collector registered on the given
// registry. If registry is nil, a new one is created; retrieve it with
// Registry to expose other collectors on the same endpoint.
func NewPrometheusCollector(registry *prometheus.Registry) *PrometheusCollector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &PrometheusCollector{
		registry: registry,
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vecd",
				Name:      "operations_total",
				Help:      "Total number of database operations",
			},
			[]string{"op", "status"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "vecd",
				Name:      "operation_latency_seconds",
				Help:      "Database operation latency in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"op"},
		),
		batchItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vecd",
				Name:      "batch_upsert_items_total",
				Help:      "Total number of items processed by batch upserts",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(c.operations, c.latency, c.batchItems)

	return c
}

// Registry returns the underlying Prometheus registry.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler serving the metrics endpoint.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *PrometheusCollector) record(op string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.operations.WithLabelValues(op, status).Inc()
	c.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordCreateIndex implements MetricsCollector.
func (c *PrometheusCollector) RecordCreateIndex(duration time.Duration, err error) {
	c.record("create_index", duration, err)
}

// RecordUpsert implements MetricsCollector.
func (c *PrometheusCollector) RecordUpsert(duration time.Duration, err error) {
	c.record("upsert", duration, err)
}

// RecordBatchUpsert implements MetricsCollector.
func (c *PrometheusCollector) RecordBatchUpsert(count, failed int, duration time.Duration) {
	c.record("batch_upsert", duration, nil)
	c.batchItems.WithLabelValues("success").Add(float64(count - failed))
	if failed > 0 {
		c.batchItems.WithLabelValues("error").Add(float64(failed))
	}
}

// RecordQuery implements MetricsCollector.
func (c *PrometheusCollector) RecordQuery(duration time.Duration, err error) {
	c.record("query", duration, err)
}

// RecordSearch implements MetricsCollector.
func (c *PrometheusCollector) RecordSearch(k int, duration time.Duration, err error) {
	c.record("search", duration, err)
}

// RecordDelete implements MetricsCollector.
func (c *PrometheusCollector) RecordDelete(duration time.Duration, err error) {
	c.record("delete", duration, err)
}

// RecordSnapshot implements MetricsCollector.
func (c *PrometheusCollector) RecordSnapshot(duration time.Duration, err error) {
	c.record("snapshot", duration, err)
}
