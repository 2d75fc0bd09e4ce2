package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mangabot/internal/eventbus"
	"mangabot/internal/transport"
	logx "mangabot/pkg/logx"
)

var (
	ErrDisabled = errors.New("notifier disabled")
	ErrNoTarget = errors.New("notifier has no target chat")
)

const (
	defaultParseMode   = "Markdown"
	defaultHistorySize = 100
)

// Config controls delivery.
type Config struct {
	Enabled        bool
	Target         transport.ChatTarget
	ParseMode      string
	DisablePreview bool
	RatePerSec     int
	SendTimeout    time.Duration
	HistorySize    int
}

type HistoryItem struct {
	At    time.Time `json:"at"`
	Text  string    `json:"text"`
	Error string    `json:"error,omitempty"`
}

// NotificationEvent is published on the bus for every delivery attempt.
type NotificationEvent struct {
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}

// Service implements reminder.Notifier over a transport.Sender.
// It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	log    logx.Logger
	sender transport.Sender
	bus    eventbus.Bus

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender transport.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log.With(logx.String("comp", "notifier")), bus: bus}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps the config. In-flight sends keep the previous snapshot.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.ParseMode == "" {
		cfg.ParseMode = defaultParseMode
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	// Keep the bucket across reloads when the rate is unchanged so a reload
	// mid-pass does not grant a fresh burst.
	if s.limiter == nil || s.cfg.RatePerSec != cfg.RatePerSec {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	s.cfg = cfg
}

// Send delivers text to the configured chat. A nil error means Telegram
// accepted the message.
func (s *Service) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	if !cfg.Enabled || s.sender == nil {
		return ErrDisabled
	}
	if cfg.Target.IsZero() {
		return ErrNoTarget
	}
	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	_, err := s.sender.SendText(callCtx, cfg.Target, text, &transport.SendOptions{
		ParseMode:      cfg.ParseMode,
		DisablePreview: cfg.DisablePreview,
	})

	now := time.Now()
	ev := NotificationEvent{ChatID: cfg.Target.ChatID, ThreadID: cfg.Target.ThreadID, At: now}
	typ := "notifier.sent"
	if err != nil {
		ev.Error = err.Error()
		typ = "notifier.failed"
		s.log.Debug("send failed", logx.Int64("chat_id", cfg.Target.ChatID), logx.Err(err))
	}
	s.appendHistory(HistoryItem{At: now, Text: text, Error: ev.Error}, cfg.HistorySize)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
	}
	return err
}

// History returns recent deliveries, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(h HistoryItem, size int) {
	s.hmu.Lock()
	s.history = append(s.history, h)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}
