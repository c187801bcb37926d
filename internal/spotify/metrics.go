package spotify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricAPIRequests        = "dmflow_spotify_api_requests_total"
	MetricAPIRequestDuration = "dmflow_spotify_api_request_duration_seconds"
	MetricTokenRefreshes     = "dmflow_spotify_token_refreshes_total"
	MetricCircuitState       = "dmflow_spotify_circuit_breaker_state"
)

// Request outcomes recorded on MetricAPIRequests.
const (
	outcomeSuccess  = "success"
	outcomeFailure  = "failure"
	outcomeRejected = "rejected"
)

// Metrics contains Prometheus metrics for Spotify calls.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	apiRequests        *prometheus.CounterVec
	apiRequestDuration *prometheus.HistogramVec
	tokenRefreshes     *prometheus.CounterVec
	circuitState       prometheus.Gauge
}

// NewMetrics creates unregistered collectors; call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricAPIRequests,
				Help: "Total number of Spotify Web API calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		apiRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricAPIRequestDuration,
				Help:    "Spotify Web API call duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"operation"},
		),
		tokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricTokenRefreshes,
				Help: "Total number of access token refreshes by outcome",
			},
			[]string{"outcome"},
		),
		circuitState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricCircuitState,
				Help: "Spotify circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.apiRequests,
		m.apiRequestDuration,
		m.tokenRefreshes,
		m.circuitState,
	}
}

func (m *Metrics) observeRequest(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(operation, outcome).Inc()
	if outcome != outcomeRejected {
		m.apiRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
	}
}

func (m *Metrics) incTokenRefresh(outcome string) {
	if m == nil {
		return
	}
	m.tokenRefreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) setCircuitState(v float64) {
	if m == nil {
		return
	}
	m.circuitState.Set(v)
}
