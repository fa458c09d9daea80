package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStoreOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordStoreOperation("sql", "get", "success", 10*time.Millisecond)
	m.RecordStoreOperation("sql", "get", "success", 20*time.Millisecond)
	m.RecordStoreOperation("sql", "get", "not_found", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("sql", "get", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("sql", "get", "not_found")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StoreOperationDuration))
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordQueryResults("avu", 3)
	m.RecordQueryResults("avu", 4)
	m.RecordRetry("avu")
	m.RecordCacheRequest("hit")
	m.RecordCacheRequest("miss")
	m.RecordCacheRequest("miss")

	assert.Equal(t, 7.0, testutil.ToFloat64(m.QueryResultsTotal.WithLabelValues("avu")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("avu")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheRequestsTotal.WithLabelValues("miss")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "assetcatalog_uptime_seconds")
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}
