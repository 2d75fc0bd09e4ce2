package schedule

import (
	"reflect"
	"testing"
	"time"
)

var ict = time.FixedZone("ICT", 7*3600)

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, ict)
}

func ptr[T any](v T) *T { return &v }

func ids(items []Item) []int64 {
	out := make([]int64, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestWeekdayOf(t *testing.T) {
	t.Parallel()
	// 2024-01-01 was a Monday.
	for i, want := range []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday} {
		got := WeekdayOf(at(2024, time.January, 1+i, 12, 0))
		if got != want {
			t.Fatalf("WeekdayOf(day %d) = %v, want %v", 1+i, got, want)
		}
	}
}

func TestParseWeekday(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Weekday
		err  bool
	}{
		{in: "Tuesday", want: Tuesday},
		{in: "TUESDAY", want: Tuesday},
		{in: " sun ", want: Sunday},
		{in: "Everyday", want: Everyday},
		{in: "daily", want: Everyday},
		{in: "someday", err: true},
		{in: "", err: true},
	}
	for _, tt := range tests {
		got, err := ParseWeekday(tt.in)
		if tt.err {
			if err == nil {
				t.Fatalf("ParseWeekday(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseWeekday(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseWeekday(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()
	got, err := ParseTimeOfDay("18:05")
	if err != nil {
		t.Fatalf("ParseTimeOfDay error: %v", err)
	}
	if got.Minutes() != 18*60+5 || got.String() != "18:05" {
		t.Fatalf("unexpected result: %+v", got)
	}
	for _, bad := range []string{"24:00", "12:60", "1200", "ab:cd", "12:5"} {
		if _, err := ParseTimeOfDay(bad); err == nil {
			t.Fatalf("ParseTimeOfDay(%q) expected error", bad)
		}
	}
}

func TestWeekdayGate(t *testing.T) {
	t.Parallel()
	it := Item{ID: 1, Cadence: Weekly(Tuesday), Status: StatusWaiting}
	every := Item{ID: 2, Cadence: Weekly(Everyday), Status: StatusWaiting}
	for d := 1; d <= 7; d++ {
		now := at(2024, time.January, d, 9, 0)
		got := MatchesCalendarSlot(it, now)
		if want := WeekdayOf(now) == Tuesday; got != want {
			t.Fatalf("Tuesday item on %s: got %v, want %v", now.Weekday(), got, want)
		}
		if !MatchesCalendarSlot(every, now) {
			t.Fatalf("Everyday item should match %s", now.Weekday())
		}
	}
}

func TestTimeGate(t *testing.T) {
	t.Parallel()
	it := Item{ID: 1, Cadence: Weekly(Tuesday), ReleaseTime: MustTimeOfDay("18:00"), Status: StatusWaiting}
	if due := DueSet(at(2024, time.January, 2, 17, 59), []Item{it}); len(due) != 0 {
		t.Fatalf("due at 17:59: %v", ids(due))
	}
	if due := DueSet(at(2024, time.January, 2, 18, 0), []Item{it}); len(due) != 1 {
		t.Fatalf("not due at 18:00")
	}
	if due := DueSet(at(2024, time.January, 2, 23, 59), []Item{it}); len(due) != 1 {
		t.Fatalf("not due at 23:59")
	}
}

func TestNoReleaseTimeIsReadyAtMidnight(t *testing.T) {
	t.Parallel()
	it := Item{ID: 1, Cadence: Weekly(Everyday), Status: StatusWaiting}
	if due := DueSet(at(2024, time.January, 2, 0, 0), []Item{it}); len(due) != 1 {
		t.Fatal("item without release time should be due at midnight")
	}
}

func TestAtMostOncePerDay(t *testing.T) {
	t.Parallel()
	it := Item{ID: 1, Cadence: Weekly(Everyday), ReleaseTime: MustTimeOfDay("08:00"), Status: StatusWaiting}
	first := at(2024, time.January, 2, 8, 1)
	if due := DueSet(first, []Item{it}); len(due) != 1 {
		t.Fatal("expected item due on first pass")
	}
	it = Advance(it, first).Apply(it)
	for _, now := range []time.Time{
		at(2024, time.January, 2, 8, 2),
		at(2024, time.January, 2, 15, 0),
		at(2024, time.January, 2, 23, 59),
	} {
		if due := DueSet(now, []Item{it}); len(due) != 0 {
			t.Fatalf("item due again at %s", now)
		}
	}
	if due := DueSet(at(2024, time.January, 3, 8, 0), []Item{it}); len(due) != 1 {
		t.Fatal("expected item due again next day")
	}
}

func TestAlreadyNotifiedUsesLocalDate(t *testing.T) {
	t.Parallel()
	// 23:30 UTC on Jan 1 is 06:30 ICT on Jan 2.
	last := time.Date(2024, time.January, 1, 23, 30, 0, 0, time.UTC)
	it := Item{ID: 1, Cadence: Weekly(Everyday), LastNotifiedAt: &last}
	if !AlreadyNotifiedToday(it, at(2024, time.January, 2, 10, 0)) {
		t.Fatal("expected notification to count for Jan 2 local time")
	}
	if AlreadyNotifiedToday(it, at(2024, time.January, 3, 10, 0)) {
		t.Fatal("notification should not count for Jan 3")
	}
}

func TestIntervalAdvanceIsDriftFree(t *testing.T) {
	t.Parallel()
	due := at(2024, time.January, 1, 0, 0)
	it := Item{ID: 1, Cadence: Interval(7, &due), Status: StatusWaiting}

	now := at(2024, time.January, 4, 10, 0)
	if got := DueSet(now, []Item{it}); len(got) != 1 {
		t.Fatal("overdue interval item should be due")
	}
	p := Advance(it, now)
	if p.NextDue == nil {
		t.Fatal("expected NextDue in patch")
	}
	want := at(2024, time.January, 8, 0, 0)
	if !p.NextDue.Equal(want) {
		t.Fatalf("NextDue = %s, want %s", p.NextDue, want)
	}
	if !p.LastNotifiedAt.Equal(now) {
		t.Fatalf("LastNotifiedAt = %s, want %s", p.LastNotifiedAt, now)
	}

	it = p.Apply(it)
	for d := 5; d <= 7; d++ {
		if got := DueSet(at(2024, time.January, d, 10, 0), []Item{it}); len(got) != 0 {
			t.Fatalf("interval item due on Jan %d before next due date", d)
		}
	}
	if got := DueSet(at(2024, time.January, 8, 10, 0), []Item{it}); len(got) != 1 {
		t.Fatal("interval item should be due on Jan 8")
	}
}

func TestWeeklyAdvanceOnlyTouchesLastNotified(t *testing.T) {
	t.Parallel()
	it := Item{ID: 1, Cadence: Weekly(Friday)}
	now := at(2024, time.January, 5, 20, 0)
	p := Advance(it, now)
	if p.NextDue != nil {
		t.Fatalf("weekly patch should not set NextDue: %v", p.NextDue)
	}
	got := p.Apply(it)
	if got.Cadence != it.Cadence {
		t.Fatalf("cadence changed: %+v", got.Cadence)
	}
}

func TestApplyKeepsLastNotifiedMonotonic(t *testing.T) {
	t.Parallel()
	later := at(2024, time.January, 5, 20, 0)
	it := Item{ID: 1, Cadence: Weekly(Friday), LastNotifiedAt: &later}
	got := Patch{LastNotifiedAt: at(2024, time.January, 4, 20, 0)}.Apply(it)
	if !got.LastNotifiedAt.Equal(later) {
		t.Fatalf("LastNotifiedAt moved backwards to %s", got.LastNotifiedAt)
	}
}

func TestMalformedIntervalExcluded(t *testing.T) {
	t.Parallel()
	items := []Item{
		{ID: 1, Cadence: Interval(3, nil), Status: StatusWaiting},
		{ID: 2, Cadence: Cadence{Kind: CadenceInterval, EveryDays: 0, NextDue: ptr(at(2024, time.January, 1, 0, 0))}},
		{ID: 3, Cadence: Weekly(WeekdayUnknown)},
	}
	for d := 1; d <= 14; d++ {
		ev := Evaluate(at(2024, time.January, d, 12, 0), items)
		if len(ev.Due) != 0 {
			t.Fatalf("malformed items due on Jan %d: %v", d, ids(ev.Due))
		}
		if len(ev.Malformed) != 3 {
			t.Fatalf("Malformed = %d, want 3", len(ev.Malformed))
		}
	}
	if err := items[0].Cadence.Validate(); err != ErrIntervalNextDue {
		t.Fatalf("Validate = %v, want ErrIntervalNextDue", err)
	}
}

func TestDoneItemsIgnored(t *testing.T) {
	t.Parallel()
	it := Item{ID: 1, Cadence: Weekly(Everyday), Status: StatusDone}
	if due := DueSet(at(2024, time.January, 2, 12, 0), []Item{it}); len(due) != 0 {
		t.Fatal("done item should never be due")
	}
}

func TestDueOrdering(t *testing.T) {
	t.Parallel()
	// Sunday 2024-01-07.
	now := at(2024, time.January, 7, 22, 0)
	d1 := at(2024, time.January, 6, 0, 0)
	d2 := at(2024, time.January, 7, 0, 0)
	items := []Item{
		{ID: 10, Cadence: Interval(3, &d2), ReleaseTime: MustTimeOfDay("01:00")},
		{ID: 11, Cadence: Weekly(Everyday), ReleaseTime: MustTimeOfDay("09:00")},
		{ID: 12, Cadence: Weekly(Sunday), ReleaseTime: MustTimeOfDay("21:00")},
		{ID: 13, Cadence: Interval(2, &d1)},
		{ID: 14, Cadence: Weekly(Sunday)},
		{ID: 15, Cadence: Weekly(Everyday), ReleaseTime: MustTimeOfDay("07:30")},
		{ID: 16, Cadence: Weekly(Monday)},
	}
	got := ids(DueSet(now, items))
	want := []int64{14, 12, 15, 11, 13, 10}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	t.Parallel()
	due := at(2024, time.January, 1, 0, 0)
	items := []Item{
		{ID: 3, Cadence: Weekly(Everyday), ReleaseTime: MustTimeOfDay("10:00")},
		{ID: 1, Cadence: Interval(1, &due)},
		{ID: 2, Cadence: Weekly(Tuesday)},
		{ID: 4, Cadence: Weekly(Everyday), ReleaseTime: MustTimeOfDay("10:00")},
	}
	snapshot := append([]Item(nil), items...)
	now := at(2024, time.January, 2, 11, 0)
	a := Evaluate(now, items)
	b := Evaluate(now, items)
	if !reflect.DeepEqual(ids(a.Due), ids(b.Due)) {
		t.Fatalf("different outputs: %v vs %v", ids(a.Due), ids(b.Due))
	}
	if !reflect.DeepEqual(items, snapshot) {
		t.Fatal("Evaluate mutated its input")
	}
}

func TestUpcoming(t *testing.T) {
	t.Parallel()
	now := at(2024, time.January, 2, 17, 30)
	items := []Item{
		{ID: 1, Title: "late", Cadence: Weekly(Tuesday), ReleaseTime: MustTimeOfDay("21:00")},
		{ID: 2, Title: "soon", Cadence: Weekly(Everyday), ReleaseTime: MustTimeOfDay("18:00")},
		{ID: 3, Title: "other day", Cadence: Weekly(Friday), ReleaseTime: MustTimeOfDay("18:00")},
	}
	ev := Evaluate(now.Add(15*time.Second), items)
	next, ok := ev.Next()
	if !ok {
		t.Fatal("expected an upcoming item")
	}
	if next.Item.ID != 2 {
		t.Fatalf("next = %d, want 2", next.Item.ID)
	}
	if next.In != 30*time.Minute {
		t.Fatalf("In = %s, want 30m", next.In)
	}
	if len(ev.Upcoming) != 2 {
		t.Fatalf("Upcoming = %d, want 2", len(ev.Upcoming))
	}
}

func TestCadenceConstructorsClearOtherKind(t *testing.T) {
	t.Parallel()
	due := at(2024, time.January, 1, 0, 0)
	c := Interval(5, &due)
	if c.Day != WeekdayUnknown {
		t.Fatalf("interval cadence carries a day: %v", c.Day)
	}
	w := Weekly(Monday)
	if w.EveryDays != 0 || w.NextDue != nil {
		t.Fatalf("weekly cadence carries interval fields: %+v", w)
	}
	if got := c.Describe(); got != "every 5 days" {
		t.Fatalf("Describe = %q", got)
	}
}
