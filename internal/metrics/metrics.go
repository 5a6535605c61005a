package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "license"

// Metrics 验证与打包相关指标。方法允许 nil 接收者，未配置指标时直接忽略。
type Metrics struct {
	verifications *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	cacheEntries  prometheus.Gauge
	cacheSwept    prometheus.Counter
	packageBuilds *prometheus.CounterVec
	packageBytes  prometheus.Histogram
}

// New 创建指标并注册到 reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "License verification requests by outcome.",
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "License cache lookups by result.",
		}, []string{"result"}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Current number of license cache entries.",
		}),
		cacheSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_swept_total",
			Help:      "License cache entries removed by sweeps.",
		}),
		packageBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "package_builds_total",
			Help:      "Package bundle builds by outcome.",
		}, []string{"outcome"}),
		packageBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "package_bytes",
			Help:      "Size of encrypted package bundles.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),
	}
	reg.MustRegister(m.verifications, m.cacheLookups, m.cacheEntries, m.cacheSwept, m.packageBuilds, m.packageBytes)
	return m
}

func (m *Metrics) ObserveVerification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(n))
}

func (m *Metrics) ObserveSweep(removed int) {
	if m == nil {
		return
	}
	m.cacheSwept.Add(float64(removed))
}

func (m *Metrics) ObservePackageBuild(outcome string, size int) {
	if m == nil {
		return
	}
	m.packageBuilds.WithLabelValues(outcome).Inc()
	if size > 0 {
		m.packageBytes.Observe(float64(size))
	}
}
