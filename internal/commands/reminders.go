// Package commands holds the Telegram operator commands.
package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mangabot/internal/reminder"
	"mangabot/internal/schedule"
	"mangabot/internal/storage"
	"mangabot/internal/transport/telegram/router"
)

type Dispatcher interface {
	RunOnce(ctx context.Context) (reminder.Result, error)
	Preview(ctx context.Context) (schedule.Evaluation, error)
}

type ItemLister interface {
	List(ctx context.Context, f storage.ListFilter) ([]schedule.Item, error)
}

// Reminders returns /notify, /today and /items. All are owner only.
func Reminders(d Dispatcher, items ItemLister) []router.Command {
	return []router.Command{
		{
			Route:       "notify",
			Aliases:     []string{"send"},
			Description: "Send due reminders now",
			Usage:       "/notify",
			Timeout:     2 * time.Minute,
			Handle: func(ctx context.Context, req *router.Request) error {
				res, err := d.RunOnce(reminder.WithTrigger(ctx, "telegram"))
				if err != nil {
					return fmt.Errorf("notify failed: %w", err)
				}
				return req.Reply(ctx, formatResult(res))
			},
		},
		{
			Route:       "today",
			Description: "Show today's due, upcoming and sent reminders",
			Usage:       "/today",
			Handle: func(ctx context.Context, req *router.Request) error {
				ev, err := d.Preview(ctx)
				if err != nil {
					return err
				}
				all, err := items.List(ctx, storage.ListFilter{})
				if err != nil {
					return err
				}
				return req.Reply(ctx, formatToday(ev, all))
			},
		},
		{
			Route:       "items",
			Aliases:     []string{"list"},
			Description: "List tracked titles",
			Usage:       "/items [--all]",
			Handle: func(ctx context.Context, req *router.Request) error {
				list, err := items.List(ctx, storage.ListFilter{IncludeDone: req.BoolFlags["all"]})
				if err != nil {
					return err
				}
				return req.Reply(ctx, formatItems(list))
			},
		},
	}
}

func formatResult(res reminder.Result) string {
	if res.Attempted == 0 {
		return "✅ Nothing due right now."
	}
	s := fmt.Sprintf("✅ Sent %d of %d reminder(s).", res.Sent, res.Attempted)
	if res.Failed > 0 {
		s += fmt.Sprintf("\n⚠️ %d failed; they stay due for the next pass.", res.Failed)
	}
	return s
}

func formatToday(ev schedule.Evaluation, items []schedule.Item) string {
	var sent []schedule.Item
	for _, it := range items {
		if schedule.AlreadyNotifiedToday(it, ev.Now) {
			sent = append(sent, it)
		}
	}
	if len(ev.Due) == 0 && len(ev.Upcoming) == 0 && len(sent) == 0 {
		return "🗓 Nothing scheduled for today."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🗓 *Today* (%s %s)", ev.Now.Weekday(), ev.Now.Format("15:04"))
	if len(ev.Due) > 0 {
		fmt.Fprintf(&b, "\n\n*Due now* (%d)", len(ev.Due))
		for _, it := range ev.Due {
			b.WriteString("\n• " + reminder.EscapeMarkdown(it.Title) + " @ " + releaseLabel(it))
		}
	}
	if len(ev.Upcoming) > 0 {
		b.WriteString("\n\n*Later today*")
		for _, u := range ev.Upcoming {
			fmt.Fprintf(&b, "\n• %s @ %s (in %d min)", reminder.EscapeMarkdown(u.Item.Title), releaseLabel(u.Item), int(u.In/time.Minute))
		}
	}
	if len(sent) > 0 {
		b.WriteString("\n\n*Already sent*")
		for _, it := range sent {
			fmt.Fprintf(&b, "\n• %s (%s)", reminder.EscapeMarkdown(it.Title), it.LastNotifiedAt.In(ev.Now.Location()).Format("15:04"))
		}
	}
	return b.String()
}

func formatItems(items []schedule.Item) string {
	if len(items) == 0 {
		return "📚 No titles tracked."
	}
	var b strings.Builder
	b.WriteString("📚 *Titles* (" + strconv.Itoa(len(items)) + ")")
	for _, it := range items {
		fmt.Fprintf(&b, "\n`#%d` %s - %s @ %s", it.ID, reminder.EscapeMarkdown(it.Title), it.Cadence.Describe(), releaseLabel(it))
		if it.Status != schedule.StatusWaiting {
			b.WriteString(" [" + string(it.Status) + "]")
		}
	}
	return b.String()
}

func releaseLabel(it schedule.Item) string {
	if it.ReleaseTime == nil {
		return "anytime"
	}
	return it.ReleaseTime.String()
}
