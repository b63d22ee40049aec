// Package metrics exposes engine activity as Prometheus collectors.
package metrics

import (
	"github.com/dukex/stageflow/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements engine.Observer.
type Metrics struct {
	EventsDispatched *prometheus.CounterVec
	RunsRecorded     *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	RecursionAborts  prometheus.Counter
	EventDepth       prometheus.Histogram
}

// New registers the stageflow collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stageflow_events_dispatched_total",
			Help: "Total number of events dispatched by the engine, labelled by kind.",
		}, []string{"kind"}),

		RunsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stageflow_runs_recorded_total",
			Help: "Total number of runs appended to the ledger, labelled by action kind, status and reason.",
		}, []string{"action_kind", "status", "reason"}),

		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stageflow_run_duration_seconds",
			Help:    "Duration of action runs in seconds.",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"action_kind"}),

		RecursionAborts: factory.NewCounter(prometheus.CounterOpts{
			Name: "stageflow_recursion_limit_exceeded_total",
			Help: "Total number of events dropped for exceeding the depth limit.",
		}),

		EventDepth: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stageflow_event_depth",
			Help:    "Propagation depth of dispatched events.",
			Buckets: prometheus.LinearBuckets(0, 1, 12),
		}),
	}
}

func (m *Metrics) ObserveEvent(event models.Event) {
	m.EventsDispatched.WithLabelValues(string(event.Kind)).Inc()
	m.EventDepth.Observe(float64(event.Depth))
}

func (m *Metrics) ObserveRun(run *models.Run) {
	m.RunsRecorded.WithLabelValues(run.ActionKind, string(run.Status), run.Reason).Inc()

	if !run.StartedAt.IsZero() && !run.FinishedAt.IsZero() {
		m.RunDuration.WithLabelValues(run.ActionKind).Observe(run.Duration().Seconds())
	}
}

func (m *Metrics) ObserveRecursionLimit(models.Event) {
	m.RecursionAborts.Inc()
}
