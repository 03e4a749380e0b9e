// Package metrics Prometheus 指标，通过 /metrics 暴露
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 缓存访问结果
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

var (
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Comment cache lookups by operation and result",
		},
		[]string{"op", "result"},
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_invalidated_keys_total",
			Help: "Cache keys removed by invalidation scope",
		},
		[]string{"scope"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)
)

// RecordCache 记录一次缓存访问
func RecordCache(op, result string) {
	CacheRequests.WithLabelValues(op, result).Inc()
}

// RecordInvalidation 记录失效的 key 数量
func RecordInvalidation(scope string, keys int) {
	CacheInvalidations.WithLabelValues(scope).Add(float64(keys))
}

// RecordHTTP 记录一次 HTTP 请求
func RecordHTTP(method, route, code string, d time.Duration) {
	HTTPRequests.WithLabelValues(method, route, code).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
