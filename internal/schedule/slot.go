package schedule

import "time"

// MatchesCalendarSlot reports whether the item is eligible on now's calendar day,
// ignoring time of day and dedup.
//
// Interval items stay eligible while overdue: any due date on or before today
// matches. An interval item without a due date never matches.
func MatchesCalendarSlot(it Item, now time.Time) bool {
	c := it.Cadence
	switch c.Kind {
	case CadenceWeekly:
		if c.Day == Everyday {
			return true
		}
		return c.Day.Valid() && c.Day == WeekdayOf(now)
	case CadenceInterval:
		if c.NextDue == nil || c.EveryDays <= 0 {
			return false
		}
		return !dateOf(c.NextDue.In(now.Location())).After(dateOf(now))
	default:
		return false
	}
}

// IsTimeReady reports whether now has reached the release time of day.
// No release time means ready at any time once the day matches.
func IsTimeReady(release *TimeOfDay, now time.Time) bool {
	if release == nil {
		return true
	}
	return now.Hour()*60+now.Minute() >= release.Minutes()
}

// AlreadyNotifiedToday reports whether the item was notified on now's local
// calendar date.
func AlreadyNotifiedToday(it Item, now time.Time) bool {
	if it.LastNotifiedAt == nil {
		return false
	}
	return SameDate(it.LastNotifiedAt.In(now.Location()), now)
}

// SameDate compares calendar dates in the location of each value.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
