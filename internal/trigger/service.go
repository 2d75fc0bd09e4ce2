package trigger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mangabot/internal/reminder"
	logx "mangabot/pkg/logx"
)

const DefaultInterval = "60s"

// Config controls the periodic trigger.
type Config struct {
	Enabled     bool
	Interval    string // see ParseSchedule
	Timezone    string // IANA zone; empty = local
	RunOnStart  bool
	PassTimeout time.Duration
}

// Runner is the dispatcher as seen by the trigger.
type Runner interface {
	TryRunOnce(ctx context.Context) (reminder.Result, error)
}

// Service fires a reminder pass on a fixed schedule. A tick that finds a
// pass still running is skipped, never queued.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	runner Runner
	parser cron.Parser

	base    context.Context
	c       *cron.Cron
	loc     *time.Location
	spec    string
	entryID cron.EntryID
	wg      sync.WaitGroup

	stats stats
}

type stats struct {
	runs     uint64
	skipped  uint64
	failures uint64
	lastAt   time.Time
	last     reminder.Result
	lastErr  string
}

// Snapshot is a point-in-time view for /health and /today.
type Snapshot struct {
	Enabled  bool            `json:"enabled"`
	Running  bool            `json:"running"`
	Timezone string          `json:"timezone"`
	Spec     string          `json:"spec"`
	Next     time.Time       `json:"next,omitzero"`
	Prev     time.Time       `json:"prev,omitzero"`
	Runs     uint64          `json:"runs"`
	Skipped  uint64          `json:"skipped"`
	Failures uint64          `json:"failures"`
	LastAt   time.Time       `json:"last_at,omitzero"`
	Last     reminder.Result `json:"last"`
	LastErr  string          `json:"last_error,omitempty"`
}

func New(cfg Config, runner Runner, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		runner: runner,
		log:    log.With(logx.String("comp", "trigger")),
		// SecondOptional allows both 5-field and 6-field cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Start registers the schedule and, with RunOnStart, fires one pass right
// away. Start on a running or disabled service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.base = ctx
	if !s.cfg.Enabled {
		return nil
	}
	if err := s.startLocked(); err != nil {
		return err
	}
	if s.cfg.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.fire("start")
		}()
	}
	return nil
}

func (s *Service) startLocked() error {
	ps, err := ParseSchedule(defaultString(s.cfg.Interval, DefaultInterval))
	if err != nil {
		return err
	}
	loc, err := LoadLocation(s.cfg.Timezone)
	if err != nil {
		return err
	}
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id, err := c.AddFunc(ps.CronSpec(), func() { s.fire("cron") })
	if err != nil {
		return err
	}
	c.Start()
	s.c, s.loc, s.spec, s.entryID = c, loc, ps.CronSpec(), id

	args := []logx.Field{logx.String("spec", s.spec), logx.String("tz", loc.String())}
	if e := c.Entry(id); !e.Next.IsZero() {
		args = append(args, logx.Time("next", e.Next))
	}
	s.log.Info("trigger started", args...)
	return nil
}

// Stop halts the schedule and waits for an in-flight pass, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.base = nil
	s.mu.Unlock()
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("trigger stopped")
}

// Apply swaps the config, re-registering the schedule when the interval,
// timezone or enabled flag changed.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	changed := old.Enabled != cfg.Enabled ||
		strings.TrimSpace(old.Interval) != strings.TrimSpace(cfg.Interval) ||
		strings.TrimSpace(old.Timezone) != strings.TrimSpace(cfg.Timezone)
	if s.base == nil || !changed {
		s.mu.Unlock()
		return nil
	}
	c := s.c
	s.c = nil
	s.mu.Unlock()

	// Stop outside the lock: a running pass reports back through fire.
	if c != nil {
		<-c.Stop().Done()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base == nil || s.c != nil {
		return nil
	}
	if !s.cfg.Enabled {
		s.log.Info("trigger disabled")
		return nil
	}
	return s.startLocked()
}

func (s *Service) fire(label string) {
	s.mu.Lock()
	base := s.base
	timeout := s.cfg.PassTimeout
	s.mu.Unlock()
	if base == nil || base.Err() != nil {
		return
	}

	ctx := reminder.WithTrigger(base, label)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	res, err := s.runner.TryRunOnce(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(err, reminder.ErrPassInProgress) {
		s.stats.skipped++
		s.log.Debug("tick skipped; pass in progress", logx.String("trigger", label))
		return
	}
	s.stats.runs++
	s.stats.lastAt = res.FinishedAt
	s.stats.last = res
	s.stats.lastErr = ""
	if err != nil {
		// The dispatcher already logged it; keep ticking.
		s.stats.failures++
		s.stats.lastErr = err.Error()
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Running:  s.c != nil,
		Spec:     s.spec,
		Runs:     s.stats.runs,
		Skipped:  s.stats.skipped,
		Failures: s.stats.failures,
		LastAt:   s.stats.lastAt,
		Last:     s.stats.last,
		LastErr:  s.stats.lastErr,
	}
	if s.loc != nil {
		snap.Timezone = s.loc.String()
	}
	if s.c != nil {
		e := s.c.Entry(s.entryID)
		snap.Next, snap.Prev = e.Next, e.Prev
	}
	return snap
}

// cronLogger routes robfig/cron's logging through logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}

func defaultString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
