package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func noEnv(string) (string, bool) { return "", false }

func writeConfig(t *testing.T, name, body string) *ConfigManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := NewConfigManager(path)
	m.SetEnvLookup(noEnv)
	return m
}

func TestParseFormats(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		file string
		body string
	}{
		{"json", "config.json", `{"telegram":{"token":"t","chat_id":-100123,"owner_user_ids":[42]},"scheduler":{"interval":"30s","timezone":"Asia/Jakarta"}}`},
		{"yaml", "config.yaml", "telegram:\n  token: t\n  chat_id: -100123\n  owner_user_ids: [42]\nscheduler:\n  interval: 30s\n  timezone: Asia/Jakarta\n"},
		{"toml", "config.toml", "[telegram]\ntoken = \"t\"\nchat_id = -100123\nowner_user_ids = [42]\n\n[scheduler]\ninterval = \"30s\"\ntimezone = \"Asia/Jakarta\"\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := writeConfig(t, tc.file, tc.body).Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.Telegram.Token != "t" || cfg.Telegram.ChatID != -100123 {
				t.Fatalf("telegram=%+v", cfg.Telegram)
			}
			if len(cfg.Telegram.OwnerUserIDs) != 1 || cfg.Telegram.OwnerUserIDs[0] != 42 {
				t.Fatalf("owners=%v", cfg.Telegram.OwnerUserIDs)
			}
			if cfg.Scheduler.Interval != "30s" || cfg.Scheduler.Timezone != "Asia/Jakarta" {
				t.Fatalf("scheduler=%+v", cfg.Scheduler)
			}
		})
	}
}

func TestParseRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, file, body string
	}{
		{"unknown json", "c.json", `{"telegram":{"token":"t"},"plugins":{}}`},
		{"unknown yaml", "c.yaml", "scheduler:\n  workers: 4\n"},
		{"unknown toml", "c.toml", "[task_engine]\nworkers = 2\n"},
		{"trailing", "c.json", `{"telegram":{}} {"telegram":{}}`},
		{"bad yaml", "c.yml", "telegram: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := writeConfig(t, tc.file, tc.body).Parse(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := writeConfig(t, "c.json", `{}`).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.SchedulerEnabled() || !cfg.RunOnStart() || !cfg.NotifierEnabled() {
		t.Fatalf("expected scheduler/run_on_start/notifier on by default")
	}
	if cfg.Scheduler.Interval != "60s" {
		t.Fatalf("interval=%q", cfg.Scheduler.Interval)
	}
	if cfg.Storage.Driver != "file" || cfg.Storage.Path != DefaultStoragePath {
		t.Fatalf("storage=%+v", cfg.Storage)
	}
	if cfg.Lock.Path != DefaultLockPath || cfg.Logging.Level != "info" {
		t.Fatalf("lock=%q level=%q", cfg.Lock.Path, cfg.Logging.Level)
	}

	off, err := writeConfig(t, "c.yaml", "scheduler:\n  enabled: false\n  run_on_start: false\n").Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if off.SchedulerEnabled() || off.RunOnStart() {
		t.Fatal("explicit false must be kept")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		EnvTelegramToken:  "from-env",
		EnvTelegramChatID: "-42",
		EnvDatabaseURL:    "postgres://u:p@localhost/manga",
		EnvHTTPToken:      "secret",
	}
	m := writeConfig(t, "c.json", `{"telegram":{"token":"file"},"storage":{"driver":"postgres"}}`)
	m.SetEnvLookup(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" || cfg.Telegram.ChatID != -42 {
		t.Fatalf("telegram=%+v", cfg.Telegram)
	}
	if cfg.Storage.DSN != env[EnvDatabaseURL] || cfg.HTTP.Token != "secret" {
		t.Fatalf("dsn=%q http.token=%q", cfg.Storage.DSN, cfg.HTTP.Token)
	}

	env[EnvTelegramChatID] = "not-a-number"
	if _, err := m.Parse(); err == nil || !strings.Contains(err.Error(), EnvTelegramChatID) {
		t.Fatalf("err=%v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, "scheduler.timezone"},
		{"interval", func(c *Config) { c.Scheduler.Interval = "sometimes" }, "scheduler.interval"},
		{"duration", func(c *Config) { c.Notifier.SendTimeout = "soon" }, "notifier.send_timeout"},
		{"negative duration", func(c *Config) { c.HTTP.ReadTimeout = "-1s" }, "http.read_timeout"},
		{"driver", func(c *Config) { c.Storage.Driver = "mongo" }, "storage.driver"},
		{"postgres dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.dsn"},
		{"http addr", func(c *Config) { c.HTTP.Enabled = true; c.HTTP.Addr = "8080" }, "http.addr"},
		{"parse mode", func(c *Config) { c.Notifier.ParseMode = "rtf" }, "notifier.parse_mode"},
		{"owner", func(c *Config) { c.Telegram.OwnerUserIDs = []int64{0} }, "owner_user_ids"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{}
			cfg.ApplyDefaults()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestDisabledSchedulerSkipsIntervalCheck(t *testing.T) {
	t.Parallel()
	off := false
	cfg := &Config{Scheduler: SchedulerConfig{Enabled: &off, Interval: "whenever"}}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	t.Parallel()
	old := &Config{Telegram: TelegramConfig{Token: "old-token"}, HTTP: HTTPConfig{Token: "a"}, Storage: StorageConfig{Driver: "postgres", DSN: "postgres://x"}}
	nw := &Config{Telegram: TelegramConfig{Token: "new-token"}, HTTP: HTTPConfig{Token: "b"}, Storage: StorageConfig{Driver: "postgres", DSN: "postgres://y"}}
	sections, attrs := SummarizeConfigChange(old, nw)
	if strings.Join(sections, ",") != "telegram,storage,http" {
		t.Fatalf("sections=%v", sections)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
	if got := RestartRequired(sections); len(got) != 1 || got[0] != "storage" {
		t.Fatalf("restart=%v", got)
	}

	same, _ := SummarizeConfigChange(nw, nw)
	if len(same) != 0 {
		t.Fatalf("no-op change reported %v", same)
	}
}

func TestTimeoutsDefaultsAndErrors(t *testing.T) {
	t.Parallel()
	var c Config
	to, err := c.Timeouts()
	if err != nil {
		t.Fatalf("Timeouts: %v", err)
	}
	if to.TelegramPoll != 10*time.Second || to.StorageBusy != time.Second || to.HTTPIdle != time.Minute {
		t.Fatalf("defaults=%+v", to)
	}
	if to.SchedulerPass != 0 || to.HTTPWrite != 0 {
		t.Fatalf("unbounded defaults=%+v", to)
	}

	c.Notifier.SendTimeout = "45"
	c.HTTP.WriteTimeout = "1m30s"
	if to, err = c.Timeouts(); err != nil || to.NotifierSend != 45*time.Second || to.HTTPWrite != 90*time.Second {
		t.Fatalf("timeouts=%+v err=%v", to, err)
	}

	c.Telegram.PollTimeout = "-2s"
	c.HTTP.IdleTimeout = "soon"
	_, err = c.Timeouts()
	if err == nil {
		t.Fatal("expected errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "telegram.poll_timeout") || !strings.Contains(msg, "http.idle_timeout") {
		t.Fatalf("err=%v", err)
	}
	if strings.Index(msg, "telegram.poll_timeout") > strings.Index(msg, "http.idle_timeout") {
		t.Fatalf("errors out of order: %v", err)
	}
}

func TestWatchPublishesValidChangesOnly(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "c.json", `{"scheduler":{"interval":"60s"}}`)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(4)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	time.Sleep(100 * time.Millisecond)

	write := func(body string) {
		if err := os.WriteFile(m.Path(), []byte(body), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write(`{"scheduler":{"interval":"nope"}}`)
	select {
	case cfg := <-ch:
		t.Fatalf("invalid config published: %+v", cfg.Scheduler)
	case <-time.After(600 * time.Millisecond):
	}

	write(`{"scheduler":{"interval":"30s"}}`)
	select {
	case cfg := <-ch:
		if cfg.Scheduler.Interval != "30s" {
			t.Fatalf("interval=%q", cfg.Scheduler.Interval)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("reload not published")
	}
	if m.Get().Scheduler.Interval != "30s" {
		t.Fatal("reload not committed")
	}
	cancel()
	<-done
}

func TestLoadRunsValidatorHook(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "c.yaml", "storage:\n  driver: sqlite\n")
	m.SetValidator(func(_ context.Context, cfg *Config) error {
		if cfg.Storage.Path != DefaultStoragePath+".db" {
			return nil
		}
		return errors.New("refusing default sqlite path")
	})
	if _, err := m.Load(); err == nil || !strings.Contains(err.Error(), "refusing default sqlite path") {
		t.Fatalf("err=%v", err)
	}
	if m.Get() != nil {
		t.Fatal("rejected config committed")
	}
}

func TestSlowSubscriberGetsNewest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)
	first, second := &Config{}, &Config{}
	m.publish(first)
	m.publish(second)
	if got := <-ch; got != second {
		t.Fatal("slow subscriber should hold the newest config")
	}
}
