package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "doublezero"

const authoritySubsystem = "authority"

// Metrics holds the authority's Prometheus collectors.
type Metrics struct {
	// PushesTotal counts push requests by result (accepted, unchanged,
	// rejected, unauthorized, limited).
	PushesTotal *prometheus.CounterVec

	// BroadcastsTotal counts committed, non-empty patches.
	BroadcastsTotal prometheus.Counter

	// OperationsTotal counts operations across all broadcast patches.
	OperationsTotal prometheus.Counter

	// ActiveStreams tracks open pull streams by transport (ndjson, websocket).
	ActiveStreams *prometheus.GaugeVec

	// SlowConsumersTotal counts sessions closed because their queue filled.
	SlowConsumersTotal prometheus.Counter

	// Clients tracks how many clients have an entry in the canonical state.
	Clients prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PushesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: authoritySubsystem,
			Name:      "pushes_total",
			Help:      "Push requests by result.",
		}, []string{"result"}),
		BroadcastsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: authoritySubsystem,
			Name:      "broadcasts_total",
			Help:      "Patches broadcast to pull streams.",
		}),
		OperationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: authoritySubsystem,
			Name:      "patch_operations_total",
			Help:      "Operations contained in broadcast patches.",
		}),
		ActiveStreams: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: authoritySubsystem,
			Name:      "active_streams",
			Help:      "Open pull streams by transport.",
		}, []string{"transport"}),
		SlowConsumersTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: authoritySubsystem,
			Name:      "slow_consumers_total",
			Help:      "Pull streams closed because they fell behind.",
		}),
		Clients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: authoritySubsystem,
			Name:      "clients",
			Help:      "Clients present in the canonical state.",
		}),
	}
}
