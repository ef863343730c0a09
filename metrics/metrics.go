package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jacoelho/xmlhub"
	xherrors "github.com/jacoelho/xmlhub/errors"
)

// Metrics records document outcomes. It implements xmlhub.Observer.
type Metrics struct {
	// Documents by outcome: "ok", or the error class.
	Documents *prometheus.CounterVec

	// Failures by error code
	Failures *prometheus.CounterVec

	Elements       prometheus.Counter
	HandlerScopes  prometheus.Counter
	ProcessLatency prometheus.Histogram
	DocumentDepth  prometheus.Histogram
}

// New creates the dispatch metrics and registers them with reg.
// A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Documents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "xmlhub_documents_total",
			Help: "Documents processed by outcome",
		}, []string{"outcome"}), // outcome: "ok", "malformed-input", "configuration", "handler", "unknown"

		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "xmlhub_failures_total",
			Help: "Failed documents by error code",
		}, []string{"code"}),

		Elements: factory.NewCounter(prometheus.CounterOpts{
			Name: "xmlhub_elements_total",
			Help: "Start elements dispatched",
		}),

		HandlerScopes: factory.NewCounter(prometheus.CounterOpts{
			Name: "xmlhub_handler_scopes_total",
			Help: "Handler instances created from the registry",
		}),

		ProcessLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "xmlhub_process_duration_seconds",
			Help:    "Duration of one Process call",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		DocumentDepth: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "xmlhub_document_depth",
			Help:    "Maximum element nesting per document",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

// DocumentProcessed records one report.
func (m *Metrics) DocumentProcessed(r xmlhub.Report) {
	if m == nil {
		return
	}
	m.ProcessLatency.Observe(r.Duration.Seconds())
	m.Elements.Add(float64(r.Stats.Elements))
	m.HandlerScopes.Add(float64(r.Stats.FramesPushed))
	m.DocumentDepth.Observe(float64(r.Stats.MaxDepth))

	if r.Err == nil {
		m.Documents.WithLabelValues("ok").Inc()
		return
	}
	m.Documents.WithLabelValues(xherrors.ClassOf(r.Err).String()).Inc()
	code := "unknown"
	if e, ok := xherrors.As(r.Err); ok {
		code = string(e.Code)
	}
	m.Failures.WithLabelValues(code).Inc()
}
