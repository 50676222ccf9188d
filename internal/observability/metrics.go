package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "avlgate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "avlgate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "avlgate",
			Subsystem: "gateway",
			Name:      "active_connections",
			Help:      "Currently open tracker connections.",
		},
	)
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "avlgate",
			Subsystem: "gateway",
			Name:      "handshakes_total",
			Help:      "Identity handshakes by outcome.",
		},
		[]string{"outcome"},
	)
	packets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "avlgate",
			Subsystem: "gateway",
			Name:      "packets_total",
			Help:      "Data packets by codec and outcome.",
		},
		[]string{"codec", "outcome"},
	)
	recordsAcked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "avlgate",
			Subsystem: "gateway",
			Name:      "records_acked_total",
			Help:      "AVL records acknowledged to trackers.",
		},
	)
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "avlgate",
			Subsystem: "tenant",
			Name:      "cache_lookups_total",
			Help:      "Tenant route cache lookups by result.",
		},
		[]string{"result"},
	)
	sinkWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "avlgate",
			Subsystem: "sink",
			Name:      "writes_total",
			Help:      "Tenant sink bulk writes.",
		},
		[]string{"tenant", "kind", "success"},
	)
	sinkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "avlgate",
			Subsystem: "sink",
			Name:      "write_duration_seconds",
			Help:      "Tenant sink bulk write duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tenant", "kind", "success"},
	)
)

// RegisterMetrics registers collectors with the default registry once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			activeConnections, handshakes, packets, recordsAcked,
			cacheLookups, sinkWrites, sinkDuration,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// ConnectionOpened increments the active tracker connection gauge.
func ConnectionOpened() {
	RegisterMetrics()
	activeConnections.Inc()
}

func ConnectionClosed() {
	RegisterMetrics()
	activeConnections.Dec()
}

// RecordHandshake counts one identity phase outcome: accepted, invalid or unknown.
func RecordHandshake(outcome string) {
	RegisterMetrics()
	handshakes.WithLabelValues(outcome).Inc()
}

// RecordPacket counts a data message by codec and outcome.
func RecordPacket(codec, outcome string, acked int) {
	RegisterMetrics()
	packets.WithLabelValues(codec, outcome).Inc()
	if acked > 0 {
		recordsAcked.Add(float64(acked))
	}
}

func RecordCacheLookup(hit bool) {
	RegisterMetrics()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(result).Inc()
}

// RecordSinkWrite observes one bulk write to a tenant sink.
func RecordSinkWrite(tenant, kind string, duration time.Duration, success bool) {
	RegisterMetrics()
	successLabel := strconv.FormatBool(success)
	sinkWrites.WithLabelValues(tenant, kind, successLabel).Inc()
	sinkDuration.WithLabelValues(tenant, kind, successLabel).Observe(duration.Seconds())
}
