package m2m

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records reconcile activity per relation. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	unlinked *prometheus.CounterVec
	linked   *prometheus.CounterVec
	missing  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the reconcile metrics and registers them with reg.
// A nil reg creates unregistered metrics. It panics if the metrics are
// already registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		unlinked: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "m2m_unlinked_rows_total",
				Help: "Total number of junction rows removed by reconcile",
			},
			[]string{"relation"},
		),
		linked: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "m2m_links_created_total",
				Help: "Total number of junction rows created by reconcile",
			},
			[]string{"relation"},
		),
		missing: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "m2m_related_missing_total",
				Help: "Total number of desired keys that did not resolve to a target entity",
			},
			[]string{"relation"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "m2m_reconcile_duration_seconds",
				Help:    "Duration of a relation reconcile in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"relation"},
		),
	}
}

func (m *Metrics) unlink(relation string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.unlinked.WithLabelValues(relation).Add(float64(n))
}

func (m *Metrics) link(relation string) {
	if m == nil {
		return
	}
	m.linked.WithLabelValues(relation).Inc()
}

func (m *Metrics) miss(relation string) {
	if m == nil {
		return
	}
	m.missing.WithLabelValues(relation).Inc()
}

func (m *Metrics) observe(relation string, start time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(relation).Observe(time.Since(start).Seconds())
}
