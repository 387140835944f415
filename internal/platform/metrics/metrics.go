package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the intake workflow.
type Metrics struct {
	MessagesProcessed *prometheus.CounterVec
	ParseFailures     prometheus.Counter
	SendRetries       prometheus.Counter
	ReviewDuration    prometheus.Histogram
	AuditDropped      prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		MessagesProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ndaflow_messages_processed_total",
			Help: "Messages fully processed, labelled by ledger outcome",
		}, []string{"outcome"}),
		ParseFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ndaflow_parse_failures_total",
			Help: "Attachments that failed every extraction strategy",
		}),
		SendRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ndaflow_send_retries_total",
			Help: "Outbound mail attempts beyond the first",
		}),
		ReviewDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ndaflow_review_duration_seconds",
			Help:    "Latency of parse plus clause review per attachment",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		AuditDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ndaflow_audit_events_dropped_total",
			Help: "Audit events dropped because the buffer was full",
		}),
	}
}

// IncProcessed increments the processed counter for an outcome.
func (m *Metrics) IncProcessed(outcome string) {
	m.MessagesProcessed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncParseFailure() { m.ParseFailures.Inc() }

func (m *Metrics) IncSendRetry() { m.SendRetries.Inc() }

func (m *Metrics) ObserveReviewDuration(seconds float64) { m.ReviewDuration.Observe(seconds) }

func (m *Metrics) IncAuditDropped() { m.AuditDropped.Inc() }
