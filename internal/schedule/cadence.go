package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a 24h wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24h). A single-digit hour is accepted.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(mm) != 2 || len(hh) == 0 || len(hh) > 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// MustTimeOfDay is ParseTimeOfDay for literals.
func MustTimeOfDay(s string) *TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return &t
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// On returns the instant t falls on during the calendar day of day.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}

type CadenceKind int

const (
	CadenceWeekly CadenceKind = iota
	CadenceInterval
)

func (k CadenceKind) String() string {
	switch k {
	case CadenceWeekly:
		return "weekly"
	case CadenceInterval:
		return "interval"
	default:
		return "unknown"
	}
}

// Cadence decides on which calendar days an item is eligible.
//
// Exactly one kind is active. Weekly uses Day; Interval uses EveryDays and
// NextDue. The constructors zero the fields of the inactive kind.
type Cadence struct {
	Kind      CadenceKind
	Day       Weekday
	EveryDays int
	NextDue   *time.Time
}

var (
	ErrUnknownDay      = errors.New("weekly cadence requires a known weekday")
	ErrIntervalDays    = errors.New("interval cadence requires every_days > 0")
	ErrIntervalNextDue = errors.New("interval cadence has no next due date")
)

func Weekly(day Weekday) Cadence {
	return Cadence{Kind: CadenceWeekly, Day: day}
}

func Interval(everyDays int, nextDue *time.Time) Cadence {
	c := Cadence{Kind: CadenceInterval, EveryDays: everyDays}
	if nextDue != nil {
		t := *nextDue
		c.NextDue = &t
	}
	return c
}

func (c Cadence) IsInterval() bool { return c.Kind == CadenceInterval }

// Validate reports a cadence that can never be evaluated correctly.
// A missing NextDue is reported as ErrIntervalNextDue.
func (c Cadence) Validate() error {
	switch c.Kind {
	case CadenceWeekly:
		if !c.Day.Valid() {
			return ErrUnknownDay
		}
	case CadenceInterval:
		if c.EveryDays <= 0 {
			return ErrIntervalDays
		}
		if c.NextDue == nil {
			return ErrIntervalNextDue
		}
	default:
		return fmt.Errorf("unknown cadence kind %d", c.Kind)
	}
	return nil
}

// Describe renders the cadence for humans: "Tuesday", "Everyday", "every 7 days".
func (c Cadence) Describe() string {
	if c.Kind == CadenceInterval {
		if c.EveryDays == 1 {
			return "every day"
		}
		return fmt.Sprintf("every %d days", c.EveryDays)
	}
	return c.Day.String()
}
