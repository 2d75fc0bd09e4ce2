package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mangabot/internal/config"
	"mangabot/internal/instance"
	"mangabot/internal/notifier"
	"mangabot/internal/reminder"
	"mangabot/internal/storage"
	telegram "mangabot/internal/transport/telegram/adapter"
	logx "mangabot/pkg/logx"
)

// Oneshot is the CLI's view of the app: the store and, when asked for, a
// dispatcher that sends through Telegram. No polling, trigger or HTTP.
type Oneshot struct {
	Config     *config.Config
	Log        logx.Logger
	Store      storage.Store
	Dispatcher *reminder.Dispatcher

	logs *logx.Service
	lock *instance.Lock
}

// OneshotOptions selects what OpenOneshot wires.
type OneshotOptions struct {
	// Send wires the Telegram notifier. Without it the dispatcher can only
	// Preview; RunOnce would fail every send.
	Send bool
	// Lock takes the instance lock so a pass cannot race the daemon.
	Lock bool
	// ReadOnly callers skip the lock that single-process stores (file,
	// memory) otherwise need for writes.
	ReadOnly bool
}

// sharedDriver reports stores that tolerate a second writer process.
func sharedDriver(driver string) bool {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "pg":
		return true
	}
	return false
}

func OpenOneshot(ctx context.Context, cfgPath string, opt OneshotOptions) (_ *Oneshot, err error) {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return nil, err
	}

	var ad *telegram.Adapter
	if opt.Send {
		adCfg, err := mapAdapterConfig(cfg)
		if err != nil {
			return nil, err
		}
		if ad, err = telegram.New(adCfg, logx.Nop()); err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
	}
	logCfg := mapLogConfig(cfg)
	logCfg.Telegram.Enabled = false
	logSvc, root := logx.New(logCfg, nil)

	o := &Oneshot{Config: cfg, Log: root.With(logx.String("comp", "cli")), logs: logSvc}
	defer func() {
		if err != nil {
			_ = o.Close()
		}
	}()

	if opt.Lock || (!opt.ReadOnly && !sharedDriver(cfg.Storage.Driver)) {
		if o.lock, err = instance.Acquire(cfg.Lock.Path); err != nil {
			if errors.Is(err, instance.ErrLocked) {
				return nil, fmt.Errorf("%w (is the daemon running?)", err)
			}
			return nil, err
		}
	}

	clock := newZoneClock(location(cfg))
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	sc.Clock = clock
	if o.Store, err = storage.Open(ctx, sc, root); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	var n reminder.Notifier = offline{}
	if ad != nil {
		n = notifier.New(ncfg, ad, root, nil)
	}
	o.Dispatcher = reminder.New(o.Store, n,
		reminder.WithClock(clock),
		reminder.WithLogger(root),
		reminder.WithRenderer(reminder.RendererFor(ncfg.ParseMode)),
	)
	return o, nil
}

func (o *Oneshot) Close() error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.Store != nil {
		errs = append(errs, o.Store.Close())
	}
	if o.lock != nil {
		errs = append(errs, o.lock.Release())
	}
	if o.logs != nil {
		errs = append(errs, o.logs.Close())
	}
	return errors.Join(errs...)
}

// offline fails every send; used when the CLI did not wire Telegram.
type offline struct{}

func (offline) Send(context.Context, string) error { return notifier.ErrDisabled }
