package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheRequestsTotal, recordOpsTotal) }

var cacheRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Tracks cache hits and misses for various caches.",
	},
	[]string{"cache", "result"}, // e.g., cache="session", result="hit"
)

var recordOpsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "record_store_ops_total",
		Help: "Durable record operations by backend, operation and result.",
	},
	[]string{"backend", "op", "result"}, // result: 'ok', 'miss', 'error'
)

func IncCacheRequest(cacheName, result string) {
	cacheRequestsTotal.WithLabelValues(norm(cacheName), norm(result)).Inc()
}

func IncRecordOp(backend, op, result string) {
	recordOpsTotal.WithLabelValues(norm(backend), norm(op), norm(result)).Inc()
}
