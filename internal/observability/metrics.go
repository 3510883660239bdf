package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects relay-wide counters and gauges.
//
// The metrics system is built on Prometheus and tracks:
//   - Inbound frames by classified kind
//   - Broadcast fan-out deliveries and per-recipient failures
//   - Reply-oracle requests by outcome
//   - Active connections per registry
type Metrics struct {
	// FramesRouted counts inbound frames by classified kind.
	// Labels: kind (plain|private|announcement|oracle|read_position|malformed|blank)
	FramesRouted *prometheus.CounterVec

	// BroadcastDeliveries counts individual frame deliveries during fan-out.
	// Labels: registry (chat|notice), status (sent|failed)
	BroadcastDeliveries *prometheus.CounterVec

	// OracleRequests counts reply-oracle invocations.
	// Labels: status (answered|error|over_budget)
	OracleRequests *prometheus.CounterVec

	// OracleRequestDuration measures oracle round-trip latency in seconds.
	OracleRequestDuration prometheus.Histogram

	// ActiveConnections tracks live registry entries.
	// Labels: registry (chat|notice)
	ActiveConnections *prometheus.GaugeVec

	// StoreErrors counts failed log/read-state operations.
	// Labels: operation (append|list|get_read|set_read)
	StoreErrors *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with reg.
// A nil registerer uses the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FramesRouted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_frames_routed_total",
				Help: "Total number of inbound frames by classified kind",
			},
			[]string{"kind"},
		),
		BroadcastDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_broadcast_deliveries_total",
				Help: "Total number of per-recipient deliveries during broadcast fan-out",
			},
			[]string{"registry", "status"},
		),
		OracleRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_oracle_requests_total",
				Help: "Total number of reply-oracle invocations by outcome",
			},
			[]string{"status"},
		),
		OracleRequestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_oracle_request_duration_seconds",
				Help:    "Duration of reply-oracle round trips in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		ActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_active_connections",
				Help: "Number of live connections per registry",
			},
			[]string{"registry"},
		),
		StoreErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_store_errors_total",
				Help: "Total number of failed message-log and read-state operations",
			},
			[]string{"operation"},
		),
	}
}
