package app

import (
	"fmt"
	"strings"
	"time"

	"mangabot/internal/config"
	"mangabot/internal/httpapi"
	"mangabot/internal/notifier"
	"mangabot/internal/storage"
	"mangabot/internal/transport"
	telegram "mangabot/internal/transport/telegram/adapter"
	"mangabot/internal/trigger"
	logx "mangabot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	to, err := cfg.Timeouts()
	if err != nil {
		return storage.Config{}, err
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "sqlite" || driver == "sqlite3" {
		if strings.TrimSpace(sc.Path) == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: to.StorageBusy,
		MaxConns:    sc.MaxConns,
		MinConns:    sc.MinConns,
	}, nil
}

func mapAdapterConfig(cfg *config.Config) (telegram.Config, error) {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return telegram.Config{}, fmt.Errorf("telegram.token is required (or set %s)", config.EnvTelegramToken)
	}
	to, err := cfg.Timeouts()
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: to.TelegramPoll}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	to, err := cfg.Timeouts()
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:        cfg.NotifierEnabled(),
		Target:         transport.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.ThreadID},
		ParseMode:      parseMode(nc.ParseMode),
		DisablePreview: nc.DisablePreview,
		RatePerSec:     nc.RatePerSec,
		SendTimeout:    to.NotifierSend,
		HistorySize:    nc.HistorySize,
	}, nil
}

// parseMode returns the Bot API spelling of a case-insensitive parse mode.
func parseMode(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdownv2":
		return "MarkdownV2"
	case "html":
		return "HTML"
	default:
		return "Markdown"
	}
}

func mapTriggerConfig(cfg *config.Config) (trigger.Config, error) {
	to, err := cfg.Timeouts()
	if err != nil {
		return trigger.Config{}, err
	}
	return trigger.Config{
		Enabled:     cfg.SchedulerEnabled(),
		Interval:    cfg.Scheduler.Interval,
		Timezone:    cfg.Scheduler.Timezone,
		RunOnStart:  cfg.RunOnStart(),
		PassTimeout: to.SchedulerPass,
	}, nil
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	hc := cfg.HTTP
	to, err := cfg.Timeouts()
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{
		Enabled:       hc.Enabled,
		Addr:          strings.TrimSpace(hc.Addr),
		Token:         strings.TrimSpace(hc.Token),
		AllowInsecure: hc.AllowInsecure,
		Pprof:         hc.Pprof,
		ReadTimeout:   to.HTTPRead,
		WriteTimeout:  to.HTTPWrite,
		IdleTimeout:   to.HTTPIdle,
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Telegram.GroupLog,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func location(cfg *config.Config) *time.Location { return cfg.Location() }
