package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mangabot/internal/eventbus"
	"mangabot/internal/schedule"
	logx "mangabot/pkg/logx"
)

// ErrPassInProgress is returned by TryRunOnce when another pass holds the
// dispatcher.
var ErrPassInProgress = errors.New("reminder pass already in progress")

// Store is the part of the item store a pass needs. FindDueCandidates
// returns every item whose status is not Done.
type Store interface {
	FindDueCandidates(ctx context.Context) ([]schedule.Item, error)
	Update(ctx context.Context, id int64, p schedule.Patch) error
}

// Notifier delivers one rendered reminder. A nil error means delivered.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Result summarizes one pass.
type Result struct {
	RunID      string    `json:"run_id"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Attempted  int       `json:"attempted"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Malformed  int       `json:"malformed"`
	Upcoming   int       `json:"upcoming"`
}

func (r Result) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Hooks observe a pass. Any field may be nil.
type Hooks struct {
	OnSent      func(it schedule.Item)
	OnFailed    func(it schedule.Item, err error)
	OnPass      func(res Result, err error)
	OnMalformed func(n int)
}

// Dispatcher runs reminder passes. Passes never overlap.
type Dispatcher struct {
	store       Store
	notifier    Notifier
	clock       schedule.Clock
	log         logx.Logger
	render      Renderer
	hooks       Hooks
	bus         eventbus.Bus
	saveTimeout time.Duration

	sem chan struct{}

	mu      sync.Mutex
	last    LastPass
	hasLast bool
}

// LastPass is the outcome of the most recent pass.
type LastPass struct {
	Result Result
	Err    error
}

type Option func(*Dispatcher)

func WithClock(c schedule.Clock) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.clock = c
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

func WithRenderer(r Renderer) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.render = r
		}
	}
}

func WithHooks(h Hooks) Option {
	return func(d *Dispatcher) { d.hooks = h }
}

func WithBus(b eventbus.Bus) Option {
	return func(d *Dispatcher) { d.bus = b }
}

func New(store Store, notifier Notifier, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:       store,
		notifier:    notifier,
		clock:       schedule.SystemClock{},
		log:         logx.Nop(),
		render:      MarkdownRenderer{},
		saveTimeout: 10 * time.Second,
		sem:         make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(d)
	}
	d.log = d.log.With(logx.String("comp", "reminder"))
	return d
}

type triggerKey struct{}

// WithTrigger labels passes started with ctx ("cron", "http", "telegram",
// "cli").
func WithTrigger(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, triggerKey{}, label)
}

// TriggerFrom returns the label set by WithTrigger, or "manual".
func TriggerFrom(ctx context.Context) string {
	if v, ok := ctx.Value(triggerKey{}).(string); ok && v != "" {
		return v
	}
	return "manual"
}

// RunOnce runs one pass, waiting for a running pass to finish first.
//
// Send failures are counted and skipped, as are items deleted before their
// write. Any other store failure ends the pass and
// is returned together with the partial result; items already sent and
// advanced stay that way.
func (d *Dispatcher) RunOnce(ctx context.Context) (Result, error) {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	defer func() { <-d.sem }()
	return d.run(ctx)
}

// TryRunOnce is RunOnce without waiting.
func (d *Dispatcher) TryRunOnce(ctx context.Context) (Result, error) {
	select {
	case d.sem <- struct{}{}:
	default:
		return Result{}, ErrPassInProgress
	}
	defer func() { <-d.sem }()
	return d.run(ctx)
}

// Preview evaluates the current candidates without sending or writing.
func (d *Dispatcher) Preview(ctx context.Context) (schedule.Evaluation, error) {
	items, err := d.store.FindDueCandidates(ctx)
	if err != nil {
		return schedule.Evaluation{}, fmt.Errorf("fetch candidates: %w", err)
	}
	return schedule.Evaluate(d.clock.Now(), items), nil
}

// SetRenderer swaps the message renderer; the next pass uses it.
func (d *Dispatcher) SetRenderer(r Renderer) {
	if r == nil {
		return
	}
	d.mu.Lock()
	d.render = r
	d.mu.Unlock()
}

func (d *Dispatcher) renderer() Renderer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.render
}

// Last returns the most recent pass, if any ran.
func (d *Dispatcher) Last() (LastPass, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.hasLast
}

func (d *Dispatcher) run(ctx context.Context) (res Result, err error) {
	res = Result{
		RunID:     uuid.NewString(),
		Trigger:   TriggerFrom(ctx),
		StartedAt: d.clock.Now(),
	}
	log := d.log.With(logx.String("run_id", res.RunID), logx.String("trigger", res.Trigger))
	defer func() {
		res.FinishedAt = d.clock.Now()
		d.finish(log, res, err)
	}()

	items, err := d.store.FindDueCandidates(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch candidates: %w", err)
	}

	now := d.clock.Now()
	ev := schedule.Evaluate(now, items)
	res.Malformed = len(ev.Malformed)
	res.Upcoming = len(ev.Upcoming)
	for _, m := range ev.Malformed {
		log.Warn("skipping malformed item", logx.Int64("item_id", m.Item.ID), logx.String("title", m.Item.Title), logx.Err(m.Err))
	}
	if d.hooks.OnMalformed != nil {
		d.hooks.OnMalformed(len(ev.Malformed))
	}

	if len(ev.Due) == 0 {
		logUpcoming(log, ev)
		return res, nil
	}

	render := d.renderer()

	for _, it := range ev.Due {
		// Between items is the only place a pass stops early.
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempted++
		if err := d.notifier.Send(ctx, render.Render(it)); err != nil {
			res.Failed++
			log.Warn("reminder send failed", logx.Int64("item_id", it.ID), logx.String("title", it.Title), logx.Err(err))
			if d.hooks.OnFailed != nil {
				d.hooks.OnFailed(it, err)
			}
			d.publish(eventbus.ReminderFailed, it.ID)
			continue
		}
		res.Sent++
		if d.hooks.OnSent != nil {
			d.hooks.OnSent(it)
		}
		d.publish(eventbus.ReminderSent, it.ID)

		if err := d.advance(ctx, it, now); err != nil {
			if errors.Is(err, schedule.ErrItemNotFound) {
				// Deleted while the pass ran; nothing left to advance.
				log.Warn("sent item no longer stored", logx.Int64("item_id", it.ID), logx.String("title", it.Title))
				continue
			}
			return res, err
		}
		log.Info("reminder sent", logx.Int64("item_id", it.ID), logx.String("title", it.Title))
	}
	return res, nil
}

// advance persists the patch for a delivered item. It ignores cancellation
// of ctx so a send is never left without its write.
func (d *Dispatcher) advance(ctx context.Context, it schedule.Item, now time.Time) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.saveTimeout)
	defer cancel()
	if err := d.store.Update(ctx, it.ID, schedule.Advance(it, now)); err != nil {
		return fmt.Errorf("advance item %d: %w", it.ID, err)
	}
	return nil
}

func (d *Dispatcher) finish(log logx.Logger, res Result, err error) {
	d.mu.Lock()
	d.last, d.hasLast = LastPass{Result: res, Err: err}, true
	d.mu.Unlock()

	fields := []logx.Field{
		logx.Int("attempted", res.Attempted),
		logx.Int("sent", res.Sent),
		logx.Int("failed", res.Failed),
		logx.Duration("took", res.Duration()),
	}
	switch {
	case err != nil:
		log.Error("reminder pass failed", append(fields, logx.Err(err))...)
	case res.Attempted > 0:
		log.Info("reminder pass finished", fields...)
	default:
		log.Debug("reminder pass finished", fields...)
	}
	if d.hooks.OnPass != nil {
		d.hooks.OnPass(res, err)
	}
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: eventbus.PassFinished, Time: res.FinishedAt, Data: res})
	}
}

func (d *Dispatcher) publish(typ string, id int64) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, Time: d.clock.Now(), Data: id})
}

func logUpcoming(log logx.Logger, ev schedule.Evaluation) {
	next, ok := ev.Next()
	if !ok {
		log.Debug("no more schedule for today")
		return
	}
	log.Debug("next reminder queued",
		logx.Int64("item_id", next.Item.ID),
		logx.String("title", next.Item.Title),
		logx.Int("in_mins", int(next.In/time.Minute)),
	)
}
