// Package metrics registers the prometheus collectors for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's prometheus collectors.
type Metrics struct {
	EventsIngested  prometheus.Counter
	EventsHigh      prometheus.Counter
	AlertsCreated   prometheus.Counter
	IngestRejected  prometheus.Counter
	Subscribers     *prometheus.GaugeVec
	AuditEntries    prometheus.Counter
	RuleEvaluations prometheus.Counter
}

// New registers and returns the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "netsentry_events_ingested_total",
			Help: "Flow events accepted by the ingest endpoint.",
		}),
		EventsHigh: factory.NewCounter(prometheus.CounterOpts{
			Name: "netsentry_events_high_total",
			Help: "Flow events classified High severity.",
		}),
		AlertsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "netsentry_alerts_created_total",
			Help: "Alerts created by the rule engine.",
		}),
		IngestRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "netsentry_ingest_rejected_total",
			Help: "Ingest requests rejected as malformed.",
		}),
		Subscribers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netsentry_stream_subscribers",
			Help: "Live stream subscribers per channel.",
		}, []string{"stream"}),
		AuditEntries: factory.NewCounter(prometheus.CounterOpts{
			Name: "netsentry_audit_entries_total",
			Help: "Audit trail entries recorded.",
		}),
		RuleEvaluations: factory.NewCounter(prometheus.CounterOpts{
			Name: "netsentry_rule_evaluations_total",
			Help: "Events evaluated against the rule set.",
		}),
	}
}
