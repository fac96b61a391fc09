package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marine_alerts"

// Metrics holds the Prometheus counters, histograms, and gauges for the alert engine.
type Metrics struct {
	OrchestratorRunning prometheus.Gauge

	// Cycle metrics. labels: cycle={digest,scan,threshold}
	Cycles        *prometheus.CounterVec   // labels: cycle, outcome={success,error}
	CycleDuration *prometheus.HistogramVec // labels: cycle
	Locations     *prometheus.CounterVec   // labels: cycle, outcome={evaluated,unavailable,suppressed,below_bar}

	// Alert pipeline metrics.
	AlertsTriggered    *prometheus.CounterVec // labels: pathway={scan,threshold}, kind
	NotificationsSent  *prometheus.CounterVec // labels: kind, outcome={success,failure}
	AlertsPersisted    *prometheus.CounterVec // labels: outcome={success,error}
	LedgerEntries      prometheus.Gauge
	ClassifierRequests *prometheus.CounterVec // labels: outcome={success,error}

	// Weather source metrics.
	WeatherRequests    *prometheus.CounterVec   // labels: endpoint={current,marine,forecast}, outcome={success,error}
	WeatherCache       *prometheus.CounterVec   // labels: method={current,forecast}, result={hit,miss}
	WeatherAPIDuration *prometheus.HistogramVec // labels: endpoint
}

// NewMetrics creates and registers all engine metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.OrchestratorRunning,
		m.Cycles,
		m.CycleDuration,
		m.Locations,
		m.AlertsTriggered,
		m.NotificationsSent,
		m.AlertsPersisted,
		m.LedgerEntries,
		m.ClassifierRequests,
		m.WeatherRequests,
		m.WeatherCache,
		m.WeatherAPIDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		OrchestratorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orchestrator_running",
			Help:      "1 when the scan orchestrator is active, 0 when shut down.",
		}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed scan cycles by kind and outcome.",
		}, []string{"cycle", "outcome"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete scan cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"cycle"}),
		Locations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locations_total",
			Help:      "Per-location evaluations by cycle and outcome.",
		}, []string{"cycle", "outcome"}),
		AlertsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_triggered_total",
			Help:      "Hazards that crossed a threshold or the probability bar.",
		}, []string{"pathway", "kind"}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications handed to the notifier by kind and outcome.",
		}, []string{"kind", "outcome"}),
		AlertsPersisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_persisted_total",
			Help:      "Audit trail writes by outcome.",
		}, []string{"outcome"}),
		LedgerEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_entries",
			Help:      "Live entries in the suppression ledger.",
		}),
		ClassifierRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_requests_total",
			Help:      "Hazard classifier requests by outcome.",
		}, []string{"outcome"}),
		WeatherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_requests_total",
			Help:      "Weather API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		WeatherCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_cache_total",
			Help:      "Weather cache lookups by method and result.",
		}, []string{"method", "result"}),
		WeatherAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "weather_api_duration_seconds",
			Help:      "Weather API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"endpoint"}),
	}
}
