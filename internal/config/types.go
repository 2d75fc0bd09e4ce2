package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("500ms", "10s", "1m") or bare seconds; see Config.Timeouts.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  NotifierConfig  `json:"notifier"`
	Storage   StorageConfig   `json:"storage"`
	HTTP      HTTPConfig      `json:"http"`
	Lock      LockConfig      `json:"lock"`
	Systemd   SystemdConfig   `json:"systemd"`
}

// TelegramConfig controls the bot transport and the reminder target.
//
// ChatID/ThreadID is where reminders go. GroupLog is the chat that receives
// mirrored warnings when logging.telegram is enabled.
type TelegramConfig struct {
	Token        string  `json:"token"`
	ChatID       int64   `json:"chat_id"`
	ThreadID     int     `json:"thread_id,omitempty"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     int64   `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SchedulerConfig controls the periodic trigger.
//
// Enabled and RunOnStart are pointers so an omitted key defaults to true
// while an explicit false is kept.
type SchedulerConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
	// Interval accepts a Go duration ("60s"), HH:MM ("00:01") or a cron
	// expression ("*/5 * * * *", "@every 1m").
	Interval    string `json:"interval,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	RunOnStart  *bool  `json:"run_on_start,omitempty"`
	PassTimeout string `json:"pass_timeout,omitempty"`
}

// NotifierConfig controls reminder delivery.
type NotifierConfig struct {
	Enabled        *bool  `json:"enabled,omitempty"`
	RatePerSec     int    `json:"rate_per_sec,omitempty"`
	SendTimeout    string `json:"send_timeout,omitempty"`
	ParseMode      string `json:"parse_mode,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// StorageConfig selects the item store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./mangabot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`          // postgres (do not log)
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
	MaxConns    int32  `json:"max_conns,omitempty"`    // postgres
	MinConns    int32  `json:"min_conns,omitempty"`    // postgres
}

// HTTPConfig controls the API server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8080").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type HTTPConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type LockConfig struct {
	Path string `json:"path,omitempty"`
}

// SystemdConfig controls sd_notify readiness and watchdog pings. Both are
// no-ops when the process is not started by systemd.
type SystemdConfig struct {
	Enabled  bool `json:"enabled"`
	Watchdog bool `json:"watchdog,omitempty"`
}

// SchedulerEnabled reports scheduler.enabled (default true).
func (c *Config) SchedulerEnabled() bool { return boolOr(c.Scheduler.Enabled, true) }

// RunOnStart reports scheduler.run_on_start (default true).
func (c *Config) RunOnStart() bool { return boolOr(c.Scheduler.RunOnStart, true) }

// NotifierEnabled reports notifier.enabled (default true).
func (c *Config) NotifierEnabled() bool { return boolOr(c.Notifier.Enabled, true) }

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
