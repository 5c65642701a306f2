package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the enrichment pipeline.
type Metrics struct {
	OnboardOutcomes *prometheus.CounterVec
	LookupDuration  prometheus.Histogram
	LookupRetries   prometheus.Counter
}

// New registers the onboarding metrics on the default registry. Call once per
// process.
func New() *Metrics {
	return &Metrics{
		OnboardOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_onboard_total",
			Help: "Onboarding attempts by outcome.",
		}, []string{"outcome"}),
		LookupDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "roster_idp_lookup_duration_seconds",
			Help:    "Directory lookup latency including retries.",
			Buckets: prometheus.DefBuckets,
		}),
		LookupRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roster_idp_lookup_retries_total",
			Help: "Directory lookup attempts beyond the first.",
		}),
	}
}

// ObserveOutcome records one finished onboarding attempt.
func (m *Metrics) ObserveOutcome(outcome string) {
	m.OnboardOutcomes.WithLabelValues(outcome).Inc()
}
