package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	documents     *prometheus.CounterVec
	modelCalls    *prometheus.CounterVec
	modelLatency  *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		documents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statements",
			Name:      "documents_total",
			Help:      "Documents processed, by outcome status and error kind.",
		}, []string{"status", "kind"}),
		modelCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statements",
			Name:      "model_calls_total",
			Help:      "Completion calls, by model and outcome.",
		}, []string{"model", "outcome"}),
		modelLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "statements",
			Name:      "model_call_duration_seconds",
			Help:      "Completion call latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"model"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "statements",
			Name:      "stage_duration_seconds",
			Help:      "Time spent per pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
}

func (m *Metrics) ObserveDocument(o statement.Outcome) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(string(o.Status), string(o.Kind)).Inc()
}

// ObserveModelCall matches completion.Observer.
func (m *Metrics) ObserveModelCall(model string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.modelCalls.WithLabelValues(model, outcome).Inc()
	m.modelLatency.WithLabelValues(model).Observe(d.Seconds())
}

func (m *Metrics) ObserveStage(s statement.Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(s)).Observe(d.Seconds())
}
