package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timeouts holds every duration setting, parsed and defaulted. A zero
// SchedulerPass or HTTPWrite means unbounded.
type Timeouts struct {
	TelegramPoll  time.Duration
	SchedulerPass time.Duration
	NotifierSend  time.Duration
	StorageBusy   time.Duration
	HTTPRead      time.Duration
	HTTPWrite     time.Duration
	HTTPIdle      time.Duration
}

type timeoutField struct {
	key string
	raw func(c *Config) string
	def time.Duration
	dst func(t *Timeouts) *time.Duration
}

// timeoutFields is ordered so errors come out in file order.
var timeoutFields = []timeoutField{
	{"telegram.poll_timeout", func(c *Config) string { return c.Telegram.PollTimeout }, 10 * time.Second,
		func(t *Timeouts) *time.Duration { return &t.TelegramPoll }},
	{"scheduler.pass_timeout", func(c *Config) string { return c.Scheduler.PassTimeout }, 0,
		func(t *Timeouts) *time.Duration { return &t.SchedulerPass }},
	{"notifier.send_timeout", func(c *Config) string { return c.Notifier.SendTimeout }, 10 * time.Second,
		func(t *Timeouts) *time.Duration { return &t.NotifierSend }},
	{"storage.busy_timeout", func(c *Config) string { return c.Storage.BusyTimeout }, time.Second,
		func(t *Timeouts) *time.Duration { return &t.StorageBusy }},
	{"http.read_timeout", func(c *Config) string { return c.HTTP.ReadTimeout }, 10 * time.Second,
		func(t *Timeouts) *time.Duration { return &t.HTTPRead }},
	// unbounded by default so /debug/pprof/profile and long passes finish
	{"http.write_timeout", func(c *Config) string { return c.HTTP.WriteTimeout }, 0,
		func(t *Timeouts) *time.Duration { return &t.HTTPWrite }},
	{"http.idle_timeout", func(c *Config) string { return c.HTTP.IdleTimeout }, 60 * time.Second,
		func(t *Timeouts) *time.Duration { return &t.HTTPIdle }},
}

// Timeouts parses the duration settings. Empty or zero picks the default.
// Every bad field is reported, not just the first.
func (c *Config) Timeouts() (Timeouts, error) {
	var (
		out  Timeouts
		errs []error
	)
	for _, f := range timeoutFields {
		d, err := parseTimeout(f.key, f.raw(c))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if d == 0 {
			d = f.def
		}
		*f.dst(&out) = d
	}
	return out, errors.Join(errs...)
}

// parseTimeout accepts Go durations ("90s", "1m30s") and bare seconds ("90").
func parseTimeout(key, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		n, nerr := strconv.Atoi(s)
		if nerr != nil {
			return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
		}
		d = time.Duration(n) * time.Second
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", key)
	}
	return d, nil
}
