package router

import (
	"context"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "mangabot/internal/runtime/supervisor"
	"mangabot/internal/transport"
	logx "mangabot/pkg/logx"
)

type Access int

const (
	AccessOwnerOnly Access = iota
	AccessEveryone
)

// Command is one slash command. Route is the command word without the
// slash, e.g. "notify".
type Command struct {
	Route       string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // 0 uses the manager default
	Handle      HandlerFunc
}

// Request is a parsed command invocation.
type Request struct {
	Update    transport.Update
	Chat      transport.ChatTarget
	FromID    int64
	Command   string
	Args      []string // positionals after flags are removed
	RawArgs   []string
	Flags     map[string]string
	BoolFlags map[string]bool
	ReqID     string

	Sender transport.Sender
	Logger logx.Logger
}

// Reply sends Markdown text back to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Sender.SendText(ctx, r.Chat, text, &transport.SendOptions{ParseMode: "Markdown", DisablePreview: true})
	return err
}

const defaultTimeout = 30 * time.Second

// CommandManager routes incoming messages to commands on a bounded worker
// pool.
type CommandManager struct {
	mu     sync.RWMutex
	byName map[string]Command // route and aliases
	cmds   []Command          // registration order, help included
	owners []int64

	log    logx.Logger
	sender transport.Sender

	runMu sync.Mutex
	sup   *rtsup.Supervisor
}

func NewCommandManager(log logx.Logger, sender transport.Sender, owners []int64) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &CommandManager{
		byName: map[string]Command{},
		log:    log.With(logx.String("comp", "telegram.router")),
		sender: sender,
	}
	m.SetOwners(owners)
	return m
}

// Supervisor is nil unless DispatchLoop is running. Exposed for /health.
func (m *CommandManager) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.sup
}

// SetOwners replaces the owner list. Safe during hot reload.
func (m *CommandManager) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

func (m *CommandManager) isOwner(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.owners {
		if o == id {
			return true
		}
	}
	return false
}

// SetRegistry installs cmds plus the built-in /help and refreshes the
// Telegram menu when the loop is running.
func (m *CommandManager) SetRegistry(cmds []Command) {
	cmds = append(append([]Command(nil), cmds...), Command{
		Route:       "help",
		Aliases:     []string{"start"},
		Description: "List commands",
		Usage:       "/help [command]",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText(req.Args))
		},
	})

	byName := make(map[string]Command, len(cmds)*2)
	kept := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Route))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Route = name
		byName[name] = c
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" {
				continue
			}
			if _, taken := byName[a]; !taken {
				byName[a] = c
			}
		}
		kept = append(kept, c)
	}

	m.mu.Lock()
	m.byName = byName
	m.cmds = kept
	m.mu.Unlock()

	if sup := m.Supervisor(); sup != nil {
		m.pushMenu(sup)
	}
}

func (m *CommandManager) pushMenu(sup *rtsup.Supervisor) {
	up, ok := m.sender.(transport.CommandMenuUpdater)
	if !ok {
		return
	}
	m.mu.RLock()
	menu := buildMenu(m.cmds)
	m.mu.RUnlock()
	sup.Go("telegram.menu.update", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := up.UpdateMenuCommands(ctx, menu); err != nil {
			m.log.Warn("menu update failed", logx.Err(err))
		}
		return nil
	})
}

// DispatchLoop reads updates until ctx ends or updates is closed.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	workers := max(runtime.NumCPU(), 2)
	jobs := make(chan func(), 64)

	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log),
		rtsup.WithCancelOnError(false),
	)
	m.runMu.Lock()
	m.sup = sup
	m.runMu.Unlock()
	m.pushMenu(sup)

	for i := range workers {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					job()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
		)
	}
	m.log.Info("command dispatcher started", logx.Int("workers", workers))

	defer func() {
		close(jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.runMu.Lock()
		m.sup = nil
		m.runMu.Unlock()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if job := m.route(ctx, up); job != nil {
				select {
				case jobs <- job:
				default:
					m.reply(ctx, up, "busy, try again")
				}
			}
		}
	}
}

// route resolves an update to a ready-to-run job, or nil.
func (m *CommandManager) route(ctx context.Context, up transport.Update) func() {
	if up.Kind != transport.UpdateMessage || up.Message == nil {
		return nil
	}
	msg := up.Message
	parts := tokenizeCommandLine(msg.Text)
	if len(parts) == 0 || !strings.HasPrefix(parts[0], "/") {
		return nil
	}
	word := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}

	m.mu.RLock()
	cmd, ok := m.byName[word]
	m.mu.RUnlock()
	if !ok {
		m.reply(ctx, up, "unknown command, try /help")
		return nil
	}
	if cmd.Access == AccessOwnerOnly && !m.isOwner(msg.FromID) {
		m.reply(ctx, up, "unauthorized")
		return nil
	}

	raw := parts[1:]
	pos, flags, bools := parseFlags(raw)
	rid := newReqID()
	req := &Request{
		Update:    up,
		Chat:      transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:    msg.FromID,
		Command:   cmd.Route,
		Args:      pos,
		RawArgs:   raw,
		Flags:     flags,
		BoolFlags: bools,
		ReqID:     rid,
		Sender:    m.sender,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Route),
		),
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	final := Chain(cmd.Handle,
		MWReplyError(),
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(timeout),
	)
	return func() { _ = final(ctx, req) }
}

func (m *CommandManager) reply(ctx context.Context, up transport.Update, text string) {
	to := transport.ChatTarget{ChatID: up.Message.ChatID, ThreadID: up.Message.ThreadID}
	if _, err := m.sender.SendText(ctx, to, text, nil); err != nil {
		m.log.Debug("reply failed", logx.Err(err))
	}
}
