package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. Methods are
// nil-receiver safe so handlers constructed without metrics (tests) don't
// need guards at every call site.
type Metrics struct {
	DocumentsCreated   prometheus.Counter
	DocumentsSigned    prometheus.Counter
	SignaturesRecorded prometheus.Counter
	Verifications      *prometheus.CounterVec
	LedgerFailures     prometheus.Counter
	AuditDropped       prometheus.Counter
	HTTPDuration       *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		DocumentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docsign_documents_created_total",
			Help: "Total number of documents created.",
		}),
		DocumentsSigned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docsign_documents_signed_total",
			Help: "Total number of documents that reached the signed state.",
		}),
		SignaturesRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docsign_signatures_recorded_total",
			Help: "Total number of signatures appended to documents.",
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docsign_identity_verifications_total",
			Help: "Identity verification attempts by method and decision.",
		}, []string{"method", "decision"}),
		LedgerFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docsign_ledger_failures_total",
			Help: "Attestation ledger writes that failed or timed out.",
		}),
		AuditDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docsign_audit_events_dropped_total",
			Help: "Audit events dropped because the inbox was full.",
		}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docsign_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

func (m *Metrics) IncDocumentsCreated() {
	if m != nil {
		m.DocumentsCreated.Inc()
	}
}

func (m *Metrics) IncDocumentsSigned() {
	if m != nil {
		m.DocumentsSigned.Inc()
	}
}

func (m *Metrics) IncSignaturesRecorded() {
	if m != nil {
		m.SignaturesRecorded.Inc()
	}
}

func (m *Metrics) IncVerification(method, decision string) {
	if m != nil {
		m.Verifications.WithLabelValues(method, decision).Inc()
	}
}

func (m *Metrics) IncLedgerFailures() {
	if m != nil {
		m.LedgerFailures.Inc()
	}
}

func (m *Metrics) IncAuditDropped() {
	if m != nil {
		m.AuditDropped.Inc()
	}
}

func (m *Metrics) ObserveRequest(route, status string, elapsed time.Duration) {
	if m != nil {
		m.HTTPDuration.WithLabelValues(route, status).Observe(elapsed.Seconds())
	}
}
