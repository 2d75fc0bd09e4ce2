package app

import (
	"context"
	"strings"
	"time"

	"mangabot/internal/config"
	"mangabot/internal/eventbus"
	"mangabot/internal/reminder"
	logx "mangabot/pkg/logx"
)

// reloadLoop applies published configs. Components that cannot change at
// runtime (store, lock, bot token) only get a warning.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	// Track last applied config to generate a safe diff summary for logx.
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			newCfg = drainLatest(sub, newCfg)
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func drainLatest(sub chan *config.Config, cur *config.Config) *config.Config {
	for {
		select {
		case newer := <-sub:
			if newer != nil {
				cur = newer
			}
		default:
			return cur
		}
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	a.sd.Reloading()
	defer a.sd.Ready()

	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.log.Debug("config change summary", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)

	if rs := config.RestartRequired(sections); len(rs) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.Strings("sections", rs))
	}
	if oldCfg != nil && oldCfg.Telegram.Token != newCfg.Telegram.Token {
		a.log.Warn("telegram.token changed; restart required for changes to take effect")
	}

	// logging first so the lines below go to the new sinks
	a.logs.Apply(mapLogConfig(newCfg))
	a.clock.Set(location(newCfg))
	a.cmdm.SetOwners(newCfg.Telegram.OwnerUserIDs)

	if ncfg, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		if a.notif.Enabled() != ncfg.Enabled {
			a.log.Info("notifier toggled via config", logx.Bool("enabled", ncfg.Enabled))
		}
		a.notif.Apply(ncfg)
		a.disp.SetRenderer(reminder.RendererFor(ncfg.ParseMode))
	}

	if tcfg, err := mapTriggerConfig(newCfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else if err := a.trig.Apply(tcfg); err != nil {
		a.log.Warn("scheduler reconfigure failed", logx.Err(err))
	}

	if hcfg, err := mapHTTPConfig(newCfg); err != nil {
		a.log.Warn("invalid http config; keeping previous", logx.Err(err))
	} else {
		a.http.Apply(ctx, hcfg)
	}

	publishReload(a.bus, sections)
	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
}

// publishReload tells subscribers which config sections changed.
func publishReload(bus eventbus.Bus, sections []string) {
	if bus == nil {
		return
	}
	bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Time: time.Now(), Data: sections})
}
