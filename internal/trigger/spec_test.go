package trigger

import (
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
		cronSpec string
	}{
		{name: "cron", raw: "*/5 * * * *", kind: SpecCron, source: "cron", cronSpec: "*/5 * * * *"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, source: "cron", cronSpec: "0 0 * * *"},
		{name: "descriptor", raw: "@hourly", kind: SpecCron, source: "cron", cronSpec: "@hourly"},
		{name: "duration", raw: "60s", kind: SpecInterval, source: "duration", duration: time.Minute, cronSpec: "@every 1m0s"},
		{name: "prefixed interval", raw: "interval:45s", kind: SpecInterval, source: "duration", duration: 45 * time.Second, cronSpec: "@every 45s"},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute, cronSpec: "@every 1h30m0s"},
		{name: "prefixed every", raw: "Every:00:01", kind: SpecInterval, source: "hhmm", duration: time.Minute, cronSpec: "@every 1m0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Source != tt.source {
				t.Fatalf("Source = %s, want %s", got.Source, tt.source)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
			if got.CronSpec() != tt.cronSpec {
				t.Fatalf("CronSpec = %q, want %q", got.CronSpec(), tt.cronSpec)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "00:75", "500ms", "cron:", "interval:"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", raw)
		}
	}
}

func TestLoadLocation(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"", "local", "  Local "} {
		loc, err := LoadLocation(name)
		if err != nil || loc != time.Local {
			t.Fatalf("LoadLocation(%q) = %v, %v", name, loc, err)
		}
	}
	loc, err := LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	if loc.String() != "Asia/Jakarta" {
		t.Fatalf("loc=%s", loc)
	}
	if _, err := LoadLocation("Mars/Olympus"); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}
