// Package metrics registers Prometheus metrics for the consent service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ConsentUpdates    *prometheus.CounterVec
	ConsentConflicts  prometheus.Counter
	ProfilesCreated   prometheus.Counter
	UpdateDuration    prometheus.Histogram
	OutboxRelayed     prometheus.Counter
	OutboxRelayErrors prometheus.Counter
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on a specific registerer. Tests use this to
// avoid duplicate registration on the default registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConsentUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "othertales_consent_updates_total",
			Help: "Consent updates applied, by consent type and new value",
		}, []string{"consent_type", "granted"}),
		ConsentConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "othertales_consent_conflicts_total",
			Help: "Consent updates rejected due to profile version conflicts",
		}),
		ProfilesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "othertales_profiles_created_total",
			Help: "Profiles created on first authenticated access",
		}),
		UpdateDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "othertales_consent_update_duration_seconds",
			Help:    "Latency of the consent update unit of work",
			Buckets: prometheus.DefBuckets,
		}),
		OutboxRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "othertales_audit_outbox_relayed_total",
			Help: "Audit outbox entries published to Kafka",
		}),
		OutboxRelayErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "othertales_audit_outbox_relay_errors_total",
			Help: "Failures while relaying audit outbox entries",
		}),
	}
}

// IncConsentUpdate records one applied consent update.
func (m *Metrics) IncConsentUpdate(consentType string, granted bool) {
	label := "false"
	if granted {
		label = "true"
	}
	m.ConsentUpdates.WithLabelValues(consentType, label).Inc()
}
