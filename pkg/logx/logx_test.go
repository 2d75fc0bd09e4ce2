package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"mangabot/internal/transport"
)

type captureSender struct {
	mu   sync.Mutex
	sent []string
	to   []transport.ChatTarget
}

func (c *captureSender) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	c.to = append(c.to, to)
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func TestFormatTelegramJSON(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","time":"x","message":"send failed","item_id":7,"caller":"a.go:1"}` + "\n")
	got := formatTelegramJSON(line)
	want := "[WARN] send failed\n- caller=a.go:1\n- item_id=7"
	if got != want {
		t.Fatalf("formatTelegramJSON=%q want %q", got, want)
	}

	if got := formatTelegramJSON([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("non-json line=%q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	if got := truncate(strings.Repeat("a", 20), 12); got != "aaaaaaaaa..." {
		t.Fatalf("truncate=%q", got)
	}
	if got := truncate("short", 12); got != "short" {
		t.Fatalf("truncate=%q", got)
	}
}

func TestWriterLoggerFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("component", "reminder"))
	log.Info("pass finished", Int("sent", 2), Err(nil))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if m["component"] != "reminder" || m["sent"] != float64(2) || m["message"] != "pass finished" {
		t.Fatalf("unexpected line: %v", m)
	}
	if _, ok := m["err"]; ok {
		t.Fatal("nil error should not be logged")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	l.Error("dropped")
	if Nop().IsZero() {
		t.Fatal("Nop should not be zero")
	}
}

func TestValidLevel(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "debug", "INFO", "warning", "error", "trace"} {
		if !ValidLevel(s) {
			t.Fatalf("ValidLevel(%q)=false", s)
		}
	}
	if ValidLevel("loud") {
		t.Fatal("ValidLevel(loud)=true")
	}
}

func TestServiceTelegramSinkRespectsMinLevel(t *testing.T) {
	t.Parallel()
	snd := &captureSender{}
	svc, log := New(Config{
		Level: "debug",
		Telegram: TelegramConfig{
			Enabled:    true,
			ChatID:     -100,
			ThreadID:   3,
			MinLevel:   "error",
			RatePerSec: 10,
		},
	}, snd)
	defer svc.Close()

	log.Warn("below threshold")
	log.Error("boom", String("item", "x"))

	deadline := time.Now().Add(2 * time.Second)
	for snd.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Give a stray warn a chance to show up before asserting.
	time.Sleep(20 * time.Millisecond)

	snd.mu.Lock()
	defer snd.mu.Unlock()
	if len(snd.sent) != 1 {
		t.Fatalf("sent %d messages, want 1: %q", len(snd.sent), snd.sent)
	}
	if !strings.HasPrefix(snd.sent[0], "[ERROR] boom") {
		t.Fatalf("message=%q", snd.sent[0])
	}
	if snd.to[0] != (transport.ChatTarget{ChatID: -100, ThreadID: 3}) {
		t.Fatalf("target=%+v", snd.to[0])
	}
}
