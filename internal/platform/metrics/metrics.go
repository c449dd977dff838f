package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	AttestationsSubmitted *prometheus.CounterVec
	AttestationsRejected  *prometheus.CounterVec
	QuorumFinalized       prometheus.Counter
	CertificatesRevoked   prometheus.Counter
	SelectionDraws        *prometheus.CounterVec
	WebhookDeliveries     *prometheus.CounterVec
	WebhookDeadLetters    prometheus.Counter
	SubmitDuration        prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		AttestationsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tml_attestations_submitted_total",
			Help: "Attestations accepted by the ledger, by type.",
		}, []string{"type"}),
		AttestationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tml_attestations_rejected_total",
			Help: "Attestation submissions rejected, by error code.",
		}, []string{"code"}),
		QuorumFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tml_quorum_finalizations_total",
			Help: "Milestones completed by the quorum resolver.",
		}),
		CertificatesRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tml_certificates_revoked_total",
			Help: "Certificates revoked by dispute filings.",
		}),
		SelectionDraws: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tml_selection_draws_total",
			Help: "Assignment engine selection runs, by kind.",
		}, []string{"kind"}),
		WebhookDeliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tml_webhook_deliveries_total",
			Help: "Webhook delivery outcomes, by event type and status.",
		}, []string{"event_type", "status"}),
		WebhookDeadLetters: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tml_webhook_dead_letters_total",
			Help: "Webhook deliveries that exhausted all attempts.",
		}),
		SubmitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tml_attestation_submit_duration_seconds",
			Help:    "Latency of the attestation submission pipeline.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
