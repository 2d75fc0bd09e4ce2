package schedule

import "time"

// Patch is the scheduler-owned part of an item: the only fields a pass writes.
type Patch struct {
	LastNotifiedAt time.Time
	// NextDue is set for interval items only.
	NextDue *time.Time
}

// Advance computes the state change after a successful notification at now.
//
// Interval items move forward exactly EveryDays calendar days from their
// previous due date, so a late pass does not shift the cycle.
func Advance(it Item, now time.Time) Patch {
	p := Patch{LastNotifiedAt: now}
	c := it.Cadence
	if c.Kind == CadenceInterval && c.NextDue != nil && c.EveryDays > 0 {
		// Calendar days in now's location, so DST shifts keep the local date.
		next := c.NextDue.In(now.Location()).AddDate(0, 0, c.EveryDays)
		p.NextDue = &next
	}
	return p
}

// Apply returns it with p applied. LastNotifiedAt never moves backwards.
func (p Patch) Apply(it Item) Item {
	if it.LastNotifiedAt == nil || !p.LastNotifiedAt.Before(*it.LastNotifiedAt) {
		t := p.LastNotifiedAt
		it.LastNotifiedAt = &t
	}
	if p.NextDue != nil && it.Cadence.Kind == CadenceInterval {
		t := *p.NextDue
		it.Cadence.NextDue = &t
	}
	return it
}
