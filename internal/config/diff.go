package config

import (
	"reflect"
	"strings"

	logx "mangabot/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and
// safe structured attrs for logging. Secrets (bot token, HTTP token, DSN)
// are reported only as "set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	// Telegram (never log token)
	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.ChatID != nt.ChatID ||
		ot.ThreadID != nt.ThreadID ||
		ot.GroupLog != nt.GroupLog ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) ||
		ot.Token != nt.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int64("telegram.chat_id", nt.ChatID),
			logx.Int("telegram.thread_id", nt.ThreadID),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", nt.GroupLog != 0),
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
		)
	}

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Scheduler (trigger)
	if oldCfg.SchedulerEnabled() != newCfg.SchedulerEnabled() ||
		oldCfg.RunOnStart() != newCfg.RunOnStart() ||
		strings.TrimSpace(oldCfg.Scheduler.Interval) != strings.TrimSpace(newCfg.Scheduler.Interval) ||
		strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) ||
		strings.TrimSpace(oldCfg.Scheduler.PassTimeout) != strings.TrimSpace(newCfg.Scheduler.PassTimeout) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.SchedulerEnabled()),
			logx.String("scheduler.interval", strings.TrimSpace(newCfg.Scheduler.Interval)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.pass_timeout", strings.TrimSpace(newCfg.Scheduler.PassTimeout)),
		)
	}

	// Notifier
	on, nn := oldCfg.Notifier, newCfg.Notifier
	if oldCfg.NotifierEnabled() != newCfg.NotifierEnabled() ||
		on.RatePerSec != nn.RatePerSec ||
		strings.TrimSpace(on.SendTimeout) != strings.TrimSpace(nn.SendTimeout) ||
		on.ParseMode != nn.ParseMode ||
		on.DisablePreview != nn.DisablePreview ||
		on.HistorySize != nn.HistorySize {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newCfg.NotifierEnabled()),
			logx.Int("notifier.rate_per_sec", nn.RatePerSec),
			logx.String("notifier.send_timeout", strings.TrimSpace(nn.SendTimeout)),
			logx.String("notifier.parse_mode", nn.ParseMode),
		)
	}

	// Storage (never log DSN)
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}

	// HTTP (never log token)
	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)),
			logx.Bool("http.token_set", strings.TrimSpace(newCfg.HTTP.Token) != ""),
			logx.Bool("http.allow_insecure", newCfg.HTTP.AllowInsecure),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
		)
	}

	if oldCfg.Lock != newCfg.Lock {
		changed = append(changed, "lock")
		attrs = append(attrs, logx.String("lock.path", newCfg.Lock.Path))
	}
	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs,
			logx.Bool("systemd.enabled", newCfg.Systemd.Enabled),
			logx.Bool("systemd.watchdog", newCfg.Systemd.Watchdog),
		)
	}

	return changed, attrs
}

// RestartRequired reports sections whose changes only take effect after a
// restart.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "storage", "lock", "systemd":
			out = append(out, s)
		}
	}
	return out
}
