package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveVerification("valid")
	m.ObserveVerification("valid")
	m.ObserveVerification("not_found")
	m.ObserveCacheLookup(true)
	m.ObserveCacheLookup(false)
	m.ObserveCacheLookup(false)
	m.SetCacheEntries(7)
	m.ObserveSweep(3)
	m.ObservePackageBuild("ok", 4096)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.verifications.WithLabelValues("valid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verifications.WithLabelValues("not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.cacheEntries))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.cacheSwept))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.packageBuilds.WithLabelValues("ok")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveVerification("valid")
		m.ObserveCacheLookup(true)
		m.SetCacheEntries(1)
		m.ObserveSweep(1)
		m.ObservePackageBuild("ok", 10)
	})
}
