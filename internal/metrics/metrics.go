// Package metrics holds the Prometheus instruments for reminder passes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mangabot/internal/reminder"
	"mangabot/internal/schedule"
)

// Metrics groups the instruments. Build it once with New and share the
// pointer.
type Metrics struct {
	RemindersSent   *prometheus.CounterVec
	RemindersFailed *prometheus.CounterVec
	Passes          *prometheus.CounterVec
	PassDuration    prometheus.Histogram
	Malformed       prometheus.Gauge
	LastPass        prometheus.Gauge
}

// New registers every instrument with reg. Pass a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RemindersSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reminders_sent_total",
			Help: "Reminders delivered, by cadence kind.",
		}, []string{"cadence"}),
		RemindersFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reminders_failed_total",
			Help: "Reminders the notifier did not accept, by cadence kind.",
		}, []string{"cadence"}),
		Passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reminder_passes_total",
			Help: "Completed reminder passes by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reminder_pass_seconds",
			Help:    "Wall time of one reminder pass.",
			Buckets: prometheus.DefBuckets,
		}),
		Malformed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reminder_malformed_items",
			Help: "Items skipped by the last pass because their schedule is unusable.",
		}),
		LastPass: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reminder_last_pass_timestamp_seconds",
			Help: "Unix time the last pass finished.",
		}),
	}

	reg.MustRegister(
		m.RemindersSent,
		m.RemindersFailed,
		m.Passes,
		m.PassDuration,
		m.Malformed,
		m.LastPass,
	)
	return m
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors plus the reminder instruments.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, New(reg)
}

// Hooks adapts the instruments to reminder.Hooks so the dispatcher stays
// free of Prometheus imports.
func (m *Metrics) Hooks() reminder.Hooks {
	return reminder.Hooks{
		OnSent: func(it schedule.Item) {
			m.RemindersSent.WithLabelValues(it.Cadence.Kind.String()).Inc()
		},
		OnFailed: func(it schedule.Item, _ error) {
			m.RemindersFailed.WithLabelValues(it.Cadence.Kind.String()).Inc()
		},
		OnMalformed: func(n int) {
			m.Malformed.Set(float64(n))
		},
		OnPass: func(res reminder.Result, err error) {
			outcome := "ok"
			switch {
			case err != nil:
				outcome = "error"
			case res.Failed > 0:
				outcome = "partial"
			}
			m.Passes.WithLabelValues(res.Trigger, outcome).Inc()
			if !res.FinishedAt.IsZero() {
				m.PassDuration.Observe(res.Duration().Seconds())
				m.LastPass.Set(float64(res.FinishedAt.Unix()))
			}
		},
	}
}
