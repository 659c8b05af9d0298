package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace префикс всех метрик сервиса
const namespace = "observatory"

var (
	// HTTP метрики
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route template and status code",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP handler latency by route template",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	// ответы с точками бывают крупными, отсюда верхняя граница в 100MB
	HTTPResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response body size by route template",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 7),
	}, []string{"method", "path"})

	// gRPC метрики
	GRPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grpc",
		Name:      "requests_total",
		Help:      "gRPC calls by full method and status code",
	}, []string{"method", "status"})

	GRPCRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "grpc",
		Name:      "request_duration_seconds",
		Help:      "gRPC call latency by full method and status code",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "status"})

	// Метрики хранилища
	DBQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "query_duration_seconds",
		Help:      "Store operation latency including the wait for the store lock",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	DBLockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "lock_wait_seconds",
		Help:      "Time spent waiting for the store lock",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	})

	DBActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "pool_acquired_connections",
		Help:      "Connections currently acquired from the pgx pool",
	})

	DBIdleConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "pool_idle_connections",
		Help:      "Idle connections kept by the pgx pool",
	})

	// Приём и выдача точек
	PointsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "points_ingested_total",
		Help:      "Data points written to the store by emitter",
	}, []string{"emitter"})

	PointsReturned = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "points_returned",
		Help:      "Data points returned per query after sampling",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_failures_total",
		Help:      "Rejected authentication attempts by credential kind",
	}, []string{"kind"})
)
