package metrics

import "github.com/prometheus/client_golang/prometheus"

// Upstream metering API and snapshot cache metrics.
var (
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metergate",
			Name:      "upstream_requests_total",
			Help:      "Total number of upstream metering API requests",
		},
		[]string{"endpoint", "routing", "status"},
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "metergate",
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream metering API request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "routing"},
	)

	EventPagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "metergate",
			Name:      "event_pages_total",
			Help:      "Total usage-event pages fetched",
		},
	)

	EventsFetchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "metergate",
			Name:      "events_fetched_total",
			Help:      "Total usage events fetched",
		},
	)

	SnapshotCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metergate",
			Name:      "snapshot_cache_total",
			Help:      "Snapshot cache hits and misses per slot",
		},
		[]string{"slot", "result"}, // result: "hit" / "miss"
	)
)

var upstreamMetricsRegistered bool

// RegisterUpstreamMetrics registers the upstream and cache metrics. Must be
// called once from main.
func RegisterUpstreamMetrics() {
	if upstreamMetricsRegistered {
		return
	}
	prometheus.MustRegister(UpstreamRequestsTotal)
	prometheus.MustRegister(UpstreamRequestDuration)
	prometheus.MustRegister(EventPagesTotal)
	prometheus.MustRegister(EventsFetchedTotal)
	prometheus.MustRegister(SnapshotCacheTotal)
	upstreamMetricsRegistered = true
}
