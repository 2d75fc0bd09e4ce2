package schedule

import (
	"sort"
	"time"
)

// Evaluation is the outcome of one due-set computation.
type Evaluation struct {
	Now time.Time

	// Due is ordered for presentation; see sortDue.
	Due []Item

	// Malformed items can never be due (bad cadence). Callers log them.
	Malformed []Malformed

	// Upcoming lists items that match today but whose release time has not
	// arrived yet, earliest first.
	Upcoming []Upcoming
}

type Malformed struct {
	Item Item
	Err  error
}

type Upcoming struct {
	Item Item
	At   time.Time
	// In is the time left until At, rounded up to whole minutes.
	In time.Duration
}

// Next returns the earliest upcoming item.
func (e Evaluation) Next() (Upcoming, bool) {
	if len(e.Upcoming) == 0 {
		return Upcoming{}, false
	}
	return e.Upcoming[0], true
}

// DueSet returns only the due items of Evaluate.
func DueSet(now time.Time, items []Item) []Item {
	return Evaluate(now, items).Due
}

// Evaluate computes which items are due at now. It has no side effects and
// returns identical results for identical inputs. Callers pass candidates
// with Done items already removed; any that slip through are ignored.
func Evaluate(now time.Time, items []Item) Evaluation {
	ev := Evaluation{Now: now}
	for _, it := range items {
		if it.Status == StatusDone {
			continue
		}
		if err := it.Cadence.Validate(); err != nil {
			ev.Malformed = append(ev.Malformed, Malformed{Item: it, Err: err})
			continue
		}
		if !MatchesCalendarSlot(it, now) || AlreadyNotifiedToday(it, now) {
			continue
		}
		if IsTimeReady(it.ReleaseTime, now) {
			ev.Due = append(ev.Due, it)
			continue
		}
		at := it.ReleaseTime.On(now)
		ev.Upcoming = append(ev.Upcoming, Upcoming{Item: it, At: at, In: ceilMinute(at.Sub(now))})
	}
	sortDue(ev.Due)
	sort.SliceStable(ev.Upcoming, func(i, j int) bool {
		a, b := ev.Upcoming[i], ev.Upcoming[j]
		if !a.At.Equal(b.At) {
			return a.At.Before(b.At)
		}
		return a.Item.ID < b.Item.ID
	})
	return ev
}

// sortDue orders weekly items by weekday group (Monday..Sunday, Everyday)
// then release time, followed by interval items ordered by due date then
// release time. ID breaks remaining ties.
func sortDue(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		ai, bi := a.Cadence.IsInterval(), b.Cadence.IsInterval()
		if ai != bi {
			return !ai
		}
		if !ai {
			if ao, bo := a.Cadence.Day.Order(), b.Cadence.Day.Order(); ao != bo {
				return ao < bo
			}
		} else {
			an, bn := *a.Cadence.NextDue, *b.Cadence.NextDue
			if !an.Equal(bn) {
				return an.Before(bn)
			}
		}
		if am, bm := releaseMinutes(a), releaseMinutes(b); am != bm {
			return am < bm
		}
		return a.ID < b.ID
	})
}

func releaseMinutes(it Item) int {
	if it.ReleaseTime == nil {
		return 0
	}
	return it.ReleaseTime.Minutes()
}

func ceilMinute(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	if r := d % time.Minute; r != 0 {
		d += time.Minute - r
	}
	return d
}
