package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"mangabot/internal/trigger"
)

const (
	DefaultStoragePath = "./mangabot"
	DefaultLockPath    = "./mangabot.lock"
)

// Environment overrides. Secrets are usually injected this way instead of
// being written to the config file.
const (
	EnvTelegramToken  = "MANGABOT_TELEGRAM_TOKEN"
	EnvTelegramChatID = "MANGABOT_TELEGRAM_CHAT_ID"
	EnvDatabaseURL    = "MANGABOT_DATABASE_URL"
	EnvHTTPToken      = "MANGABOT_HTTP_TOKEN"
)

// ApplyDefaults fills omitted values. It never overwrites a set value.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Scheduler.Interval) == "" {
		c.Scheduler.Interval = trigger.DefaultInterval
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "file"
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "file":
			c.Storage.Path = DefaultStoragePath
		case "sqlite", "sqlite3":
			c.Storage.Path = DefaultStoragePath + ".db"
		}
	}
	if strings.TrimSpace(c.Lock.Path) == "" {
		c.Lock.Path = DefaultLockPath
	}
}

// ApplyEnv overlays the MANGABOT_* environment variables. A malformed chat
// id is reported instead of silently ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvTelegramToken); ok && strings.TrimSpace(v) != "" {
		c.Telegram.Token = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvTelegramChatID); ok && strings.TrimSpace(v) != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid chat id %q", EnvTelegramChatID, v)
		}
		c.Telegram.ChatID = id
	}
	if v, ok := lookup(EnvDatabaseURL); ok && strings.TrimSpace(v) != "" {
		c.Storage.DSN = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvHTTPToken); ok && strings.TrimSpace(v) != "" {
		c.HTTP.Token = strings.TrimSpace(v)
	}
	return nil
}

// Validate rejects configs that would fail at runtime. It is also the
// reload gate, so a bad edit keeps the previous config live.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	_, err := c.Timeouts()
	add(err)

	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err))
		}
	}
	if c.SchedulerEnabled() {
		if _, err := trigger.ParseSchedule(c.Scheduler.Interval); err != nil {
			add(fmt.Errorf("scheduler.interval: %w", err))
		}
	}

	if c.Notifier.RatePerSec < 0 {
		add(errors.New("notifier.rate_per_sec must be >= 0"))
	}
	if c.Notifier.HistorySize < 0 {
		add(errors.New("notifier.history_size must be >= 0"))
	}
	switch strings.ToLower(strings.TrimSpace(c.Notifier.ParseMode)) {
	case "", "markdown", "markdownv2", "html":
	default:
		add(fmt.Errorf("notifier.parse_mode: unsupported %q", c.Notifier.ParseMode))
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "memory", "mem", "sqlite", "sqlite3":
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add(fmt.Errorf("storage.dsn is required for driver %q (or set %s)", c.Storage.Driver, EnvDatabaseURL))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown %q", c.Storage.Driver))
	}
	if c.Storage.MaxConns < 0 || c.Storage.MinConns < 0 {
		add(errors.New("storage.max_conns/min_conns must be >= 0"))
	}

	if c.HTTP.Enabled {
		if addr := strings.TrimSpace(c.HTTP.Addr); addr != "" {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				add(fmt.Errorf("http.addr: invalid %q: %w", addr, err))
			}
		}
	}

	for i, id := range c.Telegram.OwnerUserIDs {
		if id <= 0 {
			add(fmt.Errorf("telegram.owner_user_ids[%d]: invalid user id %d", i, id))
		}
	}
	if c.Logging.Telegram.RatePerSec < 0 {
		add(errors.New("logging.telegram.rate_per_sec must be >= 0"))
	}
	return errors.Join(errs...)
}

// Location resolves scheduler.timezone, falling back to local time for an
// invalid name (Validate reports it).
func (c *Config) Location() *time.Location {
	loc, err := trigger.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
