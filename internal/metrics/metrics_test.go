package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mangabot/internal/reminder"
	"mangabot/internal/schedule"
)

func TestHooksRecordPass(t *testing.T) {
	t.Parallel()
	m := New(prometheus.NewRegistry())
	h := m.Hooks()

	weekly := schedule.Item{ID: 1, Cadence: schedule.Weekly(schedule.Monday)}
	interval := schedule.Item{ID: 2, Cadence: schedule.Interval(3, nil)}
	h.OnSent(weekly)
	h.OnSent(weekly)
	h.OnFailed(interval, errors.New("boom"))
	h.OnMalformed(4)

	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	h.OnPass(reminder.Result{Trigger: "cron", StartedAt: start, FinishedAt: start.Add(time.Second), Failed: 1}, nil)
	h.OnPass(reminder.Result{Trigger: "http"}, errors.New("store down"))

	if got := testutil.ToFloat64(m.RemindersSent.WithLabelValues("weekly")); got != 2 {
		t.Fatalf("sent weekly=%v", got)
	}
	if got := testutil.ToFloat64(m.RemindersFailed.WithLabelValues("interval")); got != 1 {
		t.Fatalf("failed interval=%v", got)
	}
	if got := testutil.ToFloat64(m.Malformed); got != 4 {
		t.Fatalf("malformed=%v", got)
	}
	if got := testutil.ToFloat64(m.Passes.WithLabelValues("cron", "partial")); got != 1 {
		t.Fatalf("cron partial=%v", got)
	}
	if got := testutil.ToFloat64(m.Passes.WithLabelValues("http", "error")); got != 1 {
		t.Fatalf("http error=%v", got)
	}
	if got := testutil.ToFloat64(m.LastPass); got != float64(start.Add(time.Second).Unix()) {
		t.Fatalf("last pass=%v", got)
	}
	if n := testutil.CollectAndCount(m.PassDuration); n != 1 {
		t.Fatalf("histogram series=%d", n)
	}
}

func TestNewRegistryGathers(t *testing.T) {
	t.Parallel()
	reg, m := NewRegistry()
	m.RemindersSent.WithLabelValues("weekly").Inc()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "reminders_sent_total" {
			found = true
		}
	}
	if !found {
		t.Fatal("reminders_sent_total not gathered")
	}
}
