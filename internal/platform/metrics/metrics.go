package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	BatchesCreated   prometheus.Counter
	UnitsIssued      prometheus.Counter
	Transfers        *prometheus.CounterVec
	LedgerCalls      *prometheus.CounterVec
	LedgerLatency    prometheus.Histogram
	Reconciliations  *prometheus.CounterVec
	EventsPublished  prometheus.Counter
	EventPublishErrs prometheus.Counter
}

// New creates all metrics and registers them on reg. Production wiring
// passes prometheus.DefaultRegisterer; tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BatchesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "medtrace_batches_created_total",
			Help: "Total number of batches created.",
		}),
		UnitsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "medtrace_units_issued_total",
			Help: "Total number of unit serials issued.",
		}),
		Transfers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medtrace_custody_transfers_total",
			Help: "Custody transfer attempts by outcome.",
		}, []string{"outcome"}),
		LedgerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medtrace_ledger_calls_total",
			Help: "External ledger calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		LedgerLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "medtrace_ledger_call_seconds",
			Help:    "External ledger call latency.",
			Buckets: prometheus.DefBuckets,
		}),
		Reconciliations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medtrace_reconciliations_total",
			Help: "Reconciliation runs by result (consistent, repaired, failed).",
		}, []string{"result"}),
		EventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "medtrace_custody_events_published_total",
			Help: "Custody events published to the stream.",
		}),
		EventPublishErrs: factory.NewCounter(prometheus.CounterOpts{
			Name: "medtrace_custody_event_publish_errors_total",
			Help: "Custody event publish failures.",
		}),
	}
}
