// Package systemd speaks the sd_notify protocol: readiness, shutdown and
// watchdog keep-alives. Every call is a no-op outside a systemd unit.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "mangabot/pkg/logx"
)

type Notifier struct {
	enabled bool
	log     logx.Logger
}

func New(enabled bool, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{enabled: enabled, log: log.With(logx.String("comp", "systemd"))}
}

func (n *Notifier) Ready() { n.notify(daemon.SdNotifyReady) }

func (n *Notifier) Stopping() { n.notify(daemon.SdNotifyStopping) }

func (n *Notifier) Reloading() { n.notify(daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(msg string) { n.notify("STATUS=" + msg) }

func (n *Notifier) notify(state string) {
	if n == nil || !n.enabled {
		return
	}
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Debug("sd_notify", logx.String("state", state))
	}
}

// WatchdogInterval is half of WATCHDOG_USEC, or 0 when the unit has no
// watchdog.
func (n *Notifier) WatchdogInterval() time.Duration {
	if n == nil || !n.enabled {
		return 0
	}
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// Watchdog pings until ctx ends. alive gates each ping; a nil alive always
// pings. Returns at once when no watchdog is configured.
func (n *Notifier) Watchdog(ctx context.Context, alive func() bool) {
	every := n.WatchdogInterval()
	if every <= 0 {
		return
	}
	n.log.Info("watchdog enabled", logx.Duration("every", every))
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if alive != nil && !alive() {
				n.log.Warn("watchdog ping withheld; unhealthy")
				continue
			}
			n.notify(daemon.SdNotifyWatchdog)
		}
	}
}
