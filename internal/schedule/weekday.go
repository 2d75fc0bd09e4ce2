package schedule

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Weekday names a weekly release slot. It is independent of time.Weekday so
// the Everyday sentinel and the Monday-first grouping order live in one type.
type Weekday int

const (
	WeekdayUnknown Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
	Everyday
)

var weekdayNames = [...]string{
	WeekdayUnknown: "",
	Monday:         "Monday",
	Tuesday:        "Tuesday",
	Wednesday:      "Wednesday",
	Thursday:       "Thursday",
	Friday:         "Friday",
	Saturday:       "Saturday",
	Sunday:         "Sunday",
	Everyday:       "Everyday",
}

// fromStd maps time.Weekday (Sunday=0) onto the Monday-first enum.
var fromStd = [...]Weekday{
	time.Sunday:    Sunday,
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Friday,
	time.Saturday:  Saturday,
}

var weekdayFold = cases.Fold()

// weekdayAliases is keyed by case-folded input.
var weekdayAliases = map[string]Weekday{
	"monday": Monday, "mon": Monday,
	"tuesday": Tuesday, "tue": Tuesday, "tues": Tuesday,
	"wednesday": Wednesday, "wed": Wednesday,
	"thursday": Thursday, "thu": Thursday, "thurs": Thursday,
	"friday": Friday, "fri": Friday,
	"saturday": Saturday, "sat": Saturday,
	"sunday": Sunday, "sun": Sunday,
	"everyday": Everyday, "every day": Everyday, "daily": Everyday,
}

// WeekdayOf returns the weekday of t in t's own location.
func WeekdayOf(t time.Time) Weekday {
	return fromStd[t.Weekday()]
}

// ParseWeekday accepts full names, short names and the everyday sentinel in
// any letter case.
func ParseWeekday(s string) (Weekday, error) {
	key := weekdayFold.String(strings.TrimSpace(s))
	if d, ok := weekdayAliases[key]; ok {
		return d, nil
	}
	return WeekdayUnknown, fmt.Errorf("unknown weekday %q", s)
}

func (d Weekday) Valid() bool { return d >= Monday && d <= Everyday }

func (d Weekday) String() string {
	if !d.Valid() {
		return "Unknown"
	}
	return weekdayNames[d]
}

// Order is the grouping rank used when presenting a due set:
// Monday..Sunday first, Everyday last.
func (d Weekday) Order() int {
	if !d.Valid() {
		return int(Everyday)
	}
	return int(d) - 1
}

func (d Weekday) MarshalText() ([]byte, error) {
	if d == WeekdayUnknown {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

func (d *Weekday) UnmarshalText(b []byte) error {
	if len(strings.TrimSpace(string(b))) == 0 {
		*d = WeekdayUnknown
		return nil
	}
	v, err := ParseWeekday(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
