package live

import "github.com/prometheus/client_golang/prometheus"

// Metric names as constants for consistency.
const (
	MetricConnections = "dmflow_live_connections"
	MetricEvents      = "dmflow_live_events_total"
)

// Metrics contains Prometheus metrics for the live hub.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	connections prometheus.Gauge
	events      *prometheus.CounterVec
}

// NewMetrics creates unregistered collectors; call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricConnections,
			Help: "Number of open live WebSocket connections",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricEvents,
			Help: "Total number of campaign change events published to at least one subscriber",
		}, []string{"resource", "action"}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.connections, m.events} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) incConnections() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) decConnections() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) incEvents(resource, action string) {
	if m != nil {
		m.events.WithLabelValues(resource, action).Inc()
	}
}
