package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mangabot/internal/commands"
	"mangabot/internal/config"
	"mangabot/internal/eventbus"
	"mangabot/internal/httpapi"
	"mangabot/internal/instance"
	"mangabot/internal/metrics"
	"mangabot/internal/notifier"
	"mangabot/internal/reminder"
	rtsup "mangabot/internal/runtime/supervisor"
	"mangabot/internal/storage"
	"mangabot/internal/transport"
	telegram "mangabot/internal/transport/telegram/adapter"
	"mangabot/internal/transport/telegram/router"
	"mangabot/internal/trigger"
	logx "mangabot/pkg/logx"
	"mangabot/pkg/systemd"
)

// App is the long-running bot: Telegram transport, reminder dispatcher,
// periodic trigger, HTTP API and config hot reload.
type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	lock  *instance.Lock
	store storage.Store
	clock *zoneClock

	adapter *telegram.Adapter
	notif   *notifier.Service
	disp    *reminder.Dispatcher
	trig    *trigger.Service
	http    *httpapi.Service
	cmdm    *router.CommandManager

	reg     *prometheus.Registry
	metrics *metrics.Metrics
	sd      *systemd.Notifier

	updates   chan transport.Update
	startedAt time.Time
}

// New loads the config, takes the instance lock and wires every component.
// Nothing runs until Start.
func New(ctx context.Context, cfgPath string) (a *App, err error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	adCfg, err := mapAdapterConfig(cfg)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(adCfg, logx.NewConsole("INFO"))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	logSvc, root := logx.New(mapLogConfig(cfg), ad)
	log := root.With(logx.String("comp", "app"))
	defer func() {
		if err != nil {
			_ = logSvc.Close()
		}
	}()

	lock, err := instance.Acquire(cfg.Lock.Path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = lock.Release()
		}
	}()

	clock := newZoneClock(location(cfg))
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	sc.Clock = clock
	store, err := storage.Open(ctx, sc, root)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	defer func() {
		if err != nil {
			_ = store.Close()
		}
	}()
	log.Info("storage enabled", logx.String("driver", sc.Driver))

	bus := eventbus.New()
	reg, m := metrics.NewRegistry()

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	if ncfg.Target.IsZero() {
		log.Warn("telegram.chat_id is not set; reminders will fail until it is configured")
	}
	notif := notifier.New(ncfg, ad, root, bus)

	disp := reminder.New(store, notif,
		reminder.WithClock(clock),
		reminder.WithLogger(root),
		reminder.WithRenderer(reminder.RendererFor(ncfg.ParseMode)),
		reminder.WithHooks(m.Hooks()),
		reminder.WithBus(bus),
	)

	tcfg, err := mapTriggerConfig(cfg)
	if err != nil {
		return nil, err
	}
	trig := trigger.New(tcfg, disp, root)

	cmdm := router.NewCommandManager(root, ad, cfg.Telegram.OwnerUserIDs)
	cmdm.SetRegistry(commands.Reminders(disp, store))

	a = &App{
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		lock:      lock,
		store:     store,
		clock:     clock,
		adapter:   ad,
		notif:     notif,
		disp:      disp,
		trig:      trig,
		cmdm:      cmdm,
		reg:       reg,
		metrics:   m,
		sd:        systemd.New(cfg.Systemd.Enabled, root),
		updates:   make(chan transport.Update, 256),
		startedAt: time.Now(),
	}

	hcfg, err := mapHTTPConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.http = httpapi.New(hcfg, httpapi.Deps{
		Dispatcher: disp,
		Items:      store,
		Gatherer:   reg,
		Health:     a.health,
	}, root)
	return a, nil
}

// Dispatcher exposes the reminder dispatcher (CLI and tests).
func (a *App) Dispatcher() *reminder.Dispatcher { return a.disp }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	// Mapping errors the struct validator cannot see (sqlite without a path).
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		var errs []error
		for _, fn := range []func(*config.Config) error{
			func(c *config.Config) error { _, err := mapNotifierConfig(c); return err },
			func(c *config.Config) error { _, err := mapTriggerConfig(c); return err },
			func(c *config.Config) error { _, err := mapHTTPConfig(c); return err },
			func(c *config.Config) error { _, err := mapStorageConfig(c); return err },
		} {
			errs = append(errs, fn(cfg))
		}
		return errors.Join(errs...)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	if err := a.trig.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("trigger: %w", err)
	}
	a.http.Start(a.sup.Context())

	// Debug-level event log; the metrics hooks already count deliveries.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, sub) })
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if a.cfgm.Get().Systemd.Watchdog {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			a.sd.Watchdog(c, func() bool { return a.sup.Err() == nil })
		})
	}
	a.sd.Ready()
	a.log.Info("app started", logx.String("lock", a.lock.Path()))
	return nil
}

// Stop shuts components down in dependency order. Each step is bounded so a
// stuck component cannot stall the whole stop.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.release()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	a.step(ctx, "trigger", 3*time.Second, func(c context.Context) error { a.trig.Stop(c); return nil })
	a.step(ctx, "http", 2*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	// Finally, wait for supervised goroutines (config watch/reload, command dispatcher, etc.)
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	a.release()
	return nil
}

func (a *App) release() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	if err := a.lock.Release(); err != nil {
		a.log.Warn("instance lock release failed", logx.Err(err))
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

// step runs fn with an upper bound that never extends the caller's deadline.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", limit))

	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < limit {
			limit = max(rem, 0)
		}
	}
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		// fn must honor stepCtx; if it doesn't, report when it finally returns.
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			a.log.Warn("stop step finished after deadline",
				logx.String("name", name),
				logx.Err(err),
				logx.Duration("took", time.Since(start)),
			)
		}()
	}
}

// healthHistory caps the deliveries shown by /health.
const healthHistory = 10

func recentDeliveries(h []notifier.HistoryItem, n int) []notifier.HistoryItem {
	if len(h) > n {
		h = h[len(h)-n:]
	}
	return h
}

func (a *App) health() map[string]any {
	out := map[string]any{
		"uptime_seconds": int64(time.Since(a.startedAt).Seconds()),
		"timezone":       a.clock.Location().String(),
		"trigger":        a.trig.Snapshot(),
	}
	if last, ok := a.disp.Last(); ok {
		lp := map[string]any{"result": last.Result}
		if last.Err != nil {
			lp["error"] = last.Err.Error()
		}
		out["last_pass"] = lp
	}
	out["notifier"] = map[string]any{
		"enabled": a.notif.Enabled(),
		"recent":  recentDeliveries(a.notif.History(), healthHistory),
	}
	sups := map[string]rtsup.Snapshot{}
	if a.sup != nil {
		sups["app"] = a.sup.Snapshot()
		if err := a.sup.Err(); err != nil {
			out["status"] = "degraded"
		}
	}
	for name, s := range map[string]*rtsup.Supervisor{
		"telegram.adapter": a.adapter.Supervisor(),
		"commands":         a.cmdm.Supervisor(),
		"http":             a.http.Supervisor(),
	} {
		if s != nil {
			sups[name] = s.Snapshot()
		}
	}
	out["supervisors"] = sups
	return out
}
