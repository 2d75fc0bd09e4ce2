package commands

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mangabot/internal/reminder"
	"mangabot/internal/schedule"
	"mangabot/internal/storage"
	"mangabot/internal/transport"
	"mangabot/internal/transport/telegram/router"
)

type fakeDispatcher struct {
	res     reminder.Result
	err     error
	ev      schedule.Evaluation
	trigger string
}

func (f *fakeDispatcher) RunOnce(ctx context.Context) (reminder.Result, error) {
	f.trigger = reminder.TriggerFrom(ctx)
	return f.res, f.err
}

func (f *fakeDispatcher) Preview(context.Context) (schedule.Evaluation, error) { return f.ev, nil }

type fakeItems struct {
	items  []schedule.Item
	filter storage.ListFilter
}

func (f *fakeItems) List(_ context.Context, lf storage.ListFilter) ([]schedule.Item, error) {
	f.filter = lf
	return f.items, nil
}

type captureSender struct{ texts []string }

func (c *captureSender) SendText(_ context.Context, _ transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	c.texts = append(c.texts, text)
	return transport.MessageRef{}, nil
}

func find(t *testing.T, cmds []router.Command, route string) router.Command {
	t.Helper()
	for _, c := range cmds {
		if c.Route == route {
			return c
		}
	}
	t.Fatalf("command %q not registered", route)
	return router.Command{}
}

func run(t *testing.T, c router.Command, bools map[string]bool) (string, error) {
	t.Helper()
	snd := &captureSender{}
	err := c.Handle(context.Background(), &router.Request{Sender: snd, BoolFlags: bools})
	if err != nil {
		return "", err
	}
	if len(snd.texts) != 1 {
		t.Fatalf("replies=%q", snd.texts)
	}
	return snd.texts[0], nil
}

func TestCommandsAreOwnerOnly(t *testing.T) {
	t.Parallel()
	for _, c := range Reminders(&fakeDispatcher{}, &fakeItems{}) {
		if c.Access != router.AccessOwnerOnly {
			t.Fatalf("%s is not owner only", c.Route)
		}
	}
}

func TestNotifyReportsCounts(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		res  reminder.Result
		want []string
	}{
		{name: "nothing", res: reminder.Result{}, want: []string{"Nothing due"}},
		{name: "all sent", res: reminder.Result{Attempted: 2, Sent: 2}, want: []string{"Sent 2 of 2"}},
		{name: "partial", res: reminder.Result{Attempted: 3, Sent: 1, Failed: 2}, want: []string{"Sent 1 of 3", "2 failed"}},
	}
	for _, tt := range tests {
		d := &fakeDispatcher{res: tt.res}
		got, err := run(t, find(t, Reminders(d, &fakeItems{}), "notify"), nil)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		for _, w := range tt.want {
			if !strings.Contains(got, w) {
				t.Fatalf("%s: reply %q missing %q", tt.name, got, w)
			}
		}
		if d.trigger != "telegram" {
			t.Fatalf("trigger=%q", d.trigger)
		}
	}
}

func TestNotifyFailureIsReturned(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{err: errors.New("load items: timeout")}
	if _, err := run(t, find(t, Reminders(d, &fakeItems{}), "notify"), nil); err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("err=%v", err)
	}
}

func TestTodayGroupsItems(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("ICT", 7*3600)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, loc) // Monday
	earlier := now.Add(-2 * time.Hour)

	due := schedule.Item{ID: 1, Title: "One_Piece", Cadence: schedule.Weekly(schedule.Monday), ReleaseTime: schedule.MustTimeOfDay("09:00"), Status: schedule.StatusWaiting}
	later := schedule.Item{ID: 2, Title: "Frieren", Cadence: schedule.Weekly(schedule.Monday), ReleaseTime: schedule.MustTimeOfDay("10:30"), Status: schedule.StatusWaiting}
	sent := schedule.Item{ID: 3, Title: "Dandadan", Cadence: schedule.Weekly(schedule.Monday), Status: schedule.StatusWaiting, LastNotifiedAt: &earlier}
	all := []schedule.Item{due, later, sent}

	d := &fakeDispatcher{ev: schedule.Evaluate(now, all)}
	got, err := run(t, find(t, Reminders(d, &fakeItems{items: all}), "today"), nil)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	for _, w := range []string{"*Due now* (1)", `One\_Piece @ 09:00`, "Frieren @ 10:30 (in 30 min)", "Dandadan (08:00)"} {
		if !strings.Contains(got, w) {
			t.Fatalf("reply missing %q:\n%s", w, got)
		}
	}
}

func TestTodayEmpty(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{ev: schedule.Evaluation{Now: time.Now()}}
	got, _ := run(t, find(t, Reminders(d, &fakeItems{}), "today"), nil)
	if !strings.Contains(got, "Nothing scheduled") {
		t.Fatalf("reply=%q", got)
	}
}

func TestItemsHonoursAllFlag(t *testing.T) {
	t.Parallel()
	items := &fakeItems{items: []schedule.Item{
		{ID: 7, Title: "Blue Lock", Cadence: schedule.Weekly(schedule.Wednesday), Status: schedule.StatusWaiting},
		{ID: 9, Title: "Kagurabachi", Cadence: schedule.Interval(7, nil), ReleaseTime: schedule.MustTimeOfDay("18:00"), Status: schedule.StatusDone},
	}}
	got, err := run(t, find(t, Reminders(&fakeDispatcher{}, items), "items"), map[string]bool{"all": true})
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if !items.filter.IncludeDone {
		t.Fatal("--all should include done items")
	}
	for _, w := range []string{"(2)", "`#7` Blue Lock - Wednesday @ anytime", "`#9` Kagurabachi - every 7 days @ 18:00 [DONE]"} {
		if !strings.Contains(got, w) {
			t.Fatalf("reply missing %q:\n%s", w, got)
		}
	}
}
