// Package metrics provides Prometheus metrics for the asset catalog
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the asset catalog
type Metrics struct {
	// Store operation metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	QueryResultsTotal      *prometheus.CounterVec

	// Backend behaviour
	RetriesTotal       *prometheus.CounterVec
	CacheRequestsTotal *prometheus.CounterVec

	// Process metrics
	UptimeSeconds prometheus.GaugeFunc
	StartTime     time.Time
}

// NewMetrics creates all metrics and registers them on reg. A nil reg
// registers on the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		StartTime: time.Now(),
	}

	m.StoreOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetcatalog_store_operations_total",
			Help: "Total number of metadata store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	m.StoreOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assetcatalog_store_operation_duration_seconds",
			Help:    "Duration of metadata store operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"backend", "operation"},
	)

	m.QueryResultsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetcatalog_query_results_total",
			Help: "Total number of object references returned by queries",
		},
		[]string{"backend"},
	)

	m.RetriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetcatalog_retries_total",
			Help: "Total number of retried backend operations",
		},
		[]string{"backend"},
	)

	m.CacheRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetcatalog_cache_requests_total",
			Help: "Total number of metadata cache lookups",
		},
		[]string{"result"},
	)

	m.UptimeSeconds = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "assetcatalog_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.StartTime).Seconds() },
	)

	return m
}

// RecordStoreOperation records a store operation with its status
func (m *Metrics) RecordStoreOperation(backend, operation, status string, duration time.Duration) {
	m.StoreOperationsTotal.WithLabelValues(backend, operation, status).Inc()
	m.StoreOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordQueryResults adds n streamed query results
func (m *Metrics) RecordQueryResults(backend string, n int) {
	m.QueryResultsTotal.WithLabelValues(backend).Add(float64(n))
}

// RecordRetry counts one retried attempt
func (m *Metrics) RecordRetry(backend string) {
	m.RetriesTotal.WithLabelValues(backend).Inc()
}

// RecordCacheRequest counts a cache lookup; result is "hit" or "miss"
func (m *Metrics) RecordCacheRequest(result string) {
	m.CacheRequestsTotal.WithLabelValues(result).Inc()
}
