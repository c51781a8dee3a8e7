package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "waterwatch"

// Metrics holds the Prometheus collectors for ingestion, alerting and health cards.
type Metrics struct {
	WaterTestsIngested *prometheus.CounterVec // labels: quality
	AlertsCreated      *prometheus.CounterVec // labels: kind={leader,global}
	Notifications      *prometheus.CounterVec // labels: outcome={sent,failed}
	HealthCardBuilds   *prometheus.CounterVec // labels: outcome={ok,error,demo}
	RiskScore          prometheus.Histogram
}

func newCollectors() *Metrics {
	return &Metrics{
		WaterTestsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "water_tests_ingested_total",
			Help:      "Water tests accepted by ingestion, by quality.",
		}, []string{"quality"}),
		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Alert records written, by kind.",
		}, []string{"kind"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Text message delivery attempts, by outcome.",
		}, []string{"outcome"}),
		HealthCardBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_card_builds_total",
			Help:      "Health card builds and reads, by outcome.",
		}, []string{"outcome"}),
		RiskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "health_card_risk_score",
			Help:      "Risk scores computed for health cards.",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 85, 100},
		}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newCollectors()
	prometheus.MustRegister(
		m.WaterTestsIngested,
		m.AlertsCreated,
		m.Notifications,
		m.HealthCardBuilds,
		m.RiskScore,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newCollectors()
}
