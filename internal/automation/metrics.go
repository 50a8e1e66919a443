package automation

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the automation engine.
// Tracks inbound events, match decisions, run outcomes and queue pressure.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	EventsProcessed *prometheus.CounterVec
	Decisions       *prometheus.CounterVec
	Runs            *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	LateCompletions prometheus.Counter
	QueueDepth      prometheus.Gauge
	Registrations   prometheus.Gauge
}

// NewMetrics creates and registers the automation metrics with reg.
// Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trackside_events_processed_total",
			Help: "Inbound feed events processed, by kind (clock, entity)",
		}, []string{"kind"}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trackside_automation_decisions_total",
			Help: "Trigger matches by guard decision (fired, skipped)",
		}, []string{"decision"}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trackside_automation_runs_total",
			Help: "Automation runs by outcome",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trackside_automation_run_duration_seconds",
			Help:    "Time from dispatch to outcome for automation runs",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		LateCompletions: factory.NewCounter(prometheus.CounterOpts{
			Name: "trackside_automation_late_completions_total",
			Help: "Scripts that returned after their watchdog had fired",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trackside_automation_queue_depth",
			Help: "Matched runs waiting for a worker",
		}),
		Registrations: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trackside_automation_registrations",
			Help: "Currently registered automations",
		}),
	}
}

// ObserveEvent records an inbound feed event.
func (m *Metrics) ObserveEvent(kind string) {
	if m == nil {
		return
	}
	m.EventsProcessed.WithLabelValues(kind).Inc()
}

// ObserveDecision records whether a matched automation fired.
func (m *Metrics) ObserveDecision(fired bool) {
	if m == nil {
		return
	}
	decision := "skipped"
	if fired {
		decision = "fired"
	}
	m.Decisions.WithLabelValues(decision).Inc()
}

// SetQueueDepth records the current scheduler backlog.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// SetRegistrations records the registration count.
func (m *Metrics) SetRegistrations(n int) {
	if m == nil {
		return
	}
	m.Registrations.Set(float64(n))
}

// RecordRun implements RunRecorder. Late completions only bump the late
// counter since their timeout was already counted.
func (m *Metrics) RecordRun(_ context.Context, run RunRecord) error {
	if m == nil {
		return nil
	}
	if run.Late {
		m.LateCompletions.Inc()
		return nil
	}
	m.Runs.WithLabelValues(string(run.Status)).Inc()
	if run.Status != StatusCancelled {
		m.RunDuration.Observe(run.Elapsed.Seconds())
	}
	return nil
}
