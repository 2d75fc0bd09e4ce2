package router

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"mangabot/internal/transport"
	logx "mangabot/pkg/logx"
)

type captureSender struct {
	mu    sync.Mutex
	texts []string
	menu  []transport.BotCommand
}

func (c *captureSender) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (c *captureSender) UpdateMenuCommands(_ context.Context, cmds []transport.BotCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.menu = cmds
	return nil
}

func (c *captureSender) snapshot() ([]string, []transport.BotCommand) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...), append([]transport.BotCommand(nil), c.menu...)
}

func msg(from int64, text string) transport.Update {
	return transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{ChatID: 10, FromID: from, Text: text}}
}

func TestRouteOwnerGate(t *testing.T) {
	t.Parallel()
	snd := &captureSender{}
	m := NewCommandManager(logx.Nop(), snd, []int64{1})
	var got *Request
	m.SetRegistry([]Command{{
		Route:   "items",
		Aliases: []string{"ls"},
		Handle: func(_ context.Context, req *Request) error {
			got = req
			return nil
		},
	}})

	if job := m.route(context.Background(), msg(2, "/items")); job != nil {
		t.Fatal("non-owner must not get a job")
	}
	texts, _ := snd.snapshot()
	if len(texts) != 1 || texts[0] != "unauthorized" {
		t.Fatalf("texts=%q", texts)
	}

	job := m.route(context.Background(), msg(1, "/LS@mangabot extra --all"))
	if job == nil {
		t.Fatal("owner alias should route")
	}
	job()
	if got == nil || got.Command != "items" || !got.BoolFlags["all"] {
		t.Fatalf("req=%+v", got)
	}
}

func TestRouteUnknownAndPlainText(t *testing.T) {
	t.Parallel()
	snd := &captureSender{}
	m := NewCommandManager(logx.Nop(), snd, []int64{1})
	m.SetRegistry(nil)

	if job := m.route(context.Background(), msg(1, "hello there")); job != nil {
		t.Fatal("plain text must be ignored")
	}
	if job := m.route(context.Background(), msg(1, "/nope")); job != nil {
		t.Fatal("unknown command must not route")
	}
	texts, _ := snd.snapshot()
	if len(texts) != 1 || !strings.Contains(texts[0], "unknown command") {
		t.Fatalf("texts=%q", texts)
	}
}

func TestHandlerErrorIsReplied(t *testing.T) {
	t.Parallel()
	snd := &captureSender{}
	m := NewCommandManager(logx.Nop(), snd, []int64{1})
	m.SetRegistry([]Command{{
		Route:  "notify",
		Handle: func(context.Context, *Request) error { return errors.New("store down") },
	}})
	m.route(context.Background(), msg(1, "/notify"))()

	texts, _ := snd.snapshot()
	if len(texts) != 1 || texts[0] != "❌ store down" {
		t.Fatalf("texts=%q", texts)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	t.Parallel()
	snd := &captureSender{}
	m := NewCommandManager(logx.Nop(), snd, []int64{1})
	m.SetRegistry([]Command{{
		Route:  "boom",
		Handle: func(context.Context, *Request) error { panic("kaboom") },
	}})
	m.route(context.Background(), msg(1, "/boom"))()

	texts, _ := snd.snapshot()
	if len(texts) != 1 || !strings.Contains(texts[0], "panic: kaboom") {
		t.Fatalf("texts=%q", texts)
	}
}

func TestDispatchLoopRunsCommandsAndPushesMenu(t *testing.T) {
	t.Parallel()
	snd := &captureSender{}
	m := NewCommandManager(logx.Nop(), snd, []int64{1})
	m.SetRegistry([]Command{{
		Route:       "today",
		Description: "Today's schedule",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, "nothing due")
		},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan transport.Update, 1)
	done := make(chan struct{})
	go func() {
		_ = m.DispatchLoop(ctx, updates)
		close(done)
	}()
	updates <- msg(1, "/today")

	deadline := time.Now().Add(2 * time.Second)
	for {
		texts, menu := snd.snapshot()
		if len(texts) == 1 && len(menu) == 2 {
			if texts[0] != "nothing due" {
				t.Fatalf("texts=%q", texts)
			}
			if menu[0].Command != "help" || menu[1].Command != "today" || !strings.HasPrefix(menu[1].Description, "🔒") {
				t.Fatalf("menu=%+v", menu)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout: texts=%q menu=%+v", texts, menu)
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if m.Supervisor() != nil {
		t.Fatal("supervisor should be cleared after stop")
	}
}

func TestHelpText(t *testing.T) {
	t.Parallel()
	m := NewCommandManager(logx.Nop(), &captureSender{}, nil)
	m.SetRegistry([]Command{{Route: "notify", Description: "Send due reminders now", Usage: "/notify", Handle: func(context.Context, *Request) error { return nil }}})

	top := m.helpText(nil)
	if !strings.Contains(top, "/help") || !strings.Contains(top, "/notify - Send due reminders now") {
		t.Fatalf("top=%q", top)
	}
	one := m.helpText([]string{"/notify"})
	if !strings.Contains(one, "owner only") || !strings.Contains(one, "`/notify`") {
		t.Fatalf("one=%q", one)
	}
	if !strings.Contains(m.helpText([]string{"zzz"}), "Unknown command") {
		t.Fatal("expected unknown")
	}
}

func TestTokenizeAndFlags(t *testing.T) {
	t.Parallel()
	toks := tokenizeCommandLine(`/items add "Blue Lock" --day=wed -t 09:00 -ab`)
	want := []string{"/items", "add", "Blue Lock", "--day=wed", "-t", "09:00", "-ab"}
	if !reflect.DeepEqual(toks, want) {
		t.Fatalf("tokens=%q", toks)
	}
	pos, flags, bools := parseFlags(toks[1:])
	if !reflect.DeepEqual(pos, []string{"add", "Blue Lock"}) {
		t.Fatalf("pos=%q", pos)
	}
	if flags["day"] != "wed" || flags["t"] != "09:00" || !bools["a"] || !bools["b"] {
		t.Fatalf("flags=%v bools=%v", flags, bools)
	}
}

func TestSanitizeCommand(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"Notify":       "notify",
		"set-cadence":  "set_cadence",
		"items  all":   "items_all",
		"9lives":       "cmd_9lives",
		"--":           "",
		"émoji✨today": "mojitoday",
	}
	for in, want := range tests {
		if got := sanitizeCommand(in); got != want {
			t.Fatalf("sanitizeCommand(%q)=%q want %q", in, got, want)
		}
	}
}
