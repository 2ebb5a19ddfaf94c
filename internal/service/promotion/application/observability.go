package application

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 是推荐服务的 Prometheus 指标。
type Metrics struct {
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	rejectedRecords prometheus.Counter
	cacheLookups    *prometheus.CounterVec
	published       *prometheus.CounterVec
}

// NewMetrics 创建并注册指标，测试中传入独立的 registry 避免重复注册。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promotion",
			Subsystem: "insight",
			Name:      "recommendations_total",
			Help:      "Recommendation runs by goal and status.",
		}, []string{"goal", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "promotion",
			Subsystem: "insight",
			Name:      "operation_duration_seconds",
			Help:      "Duration of insight service operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		rejectedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "promotion",
			Subsystem: "insight",
			Name:      "rejected_records_total",
			Help:      "Malformed promotion records excluded from scoring.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promotion",
			Subsystem: "insight",
			Name:      "cache_lookups_total",
			Help:      "Recommendation cache lookups by result.",
		}, []string{"result"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promotion",
			Subsystem: "insight",
			Name:      "published_events_total",
			Help:      "Metrics events published to Kafka by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.requests, m.duration, m.rejectedRecords, m.cacheLookups, m.published)
	return m
}
