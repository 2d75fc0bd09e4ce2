package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"mangabot/internal/schedule"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = schedule.ErrItemNotFound
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON snapshot on disk (default)
//   - "memory": same format, in-memory filesystem (tests, dry runs)
//   - "sqlite": SQLite database file
//   - "postgres": PostgreSQL via DSN
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
	MaxConns    int32         // postgres only
	MinConns    int32         // postgres only

	// Clock stamps created/updated times and the first due date of new
	// interval items. Defaults to the local wall clock.
	Clock schedule.Clock
}

// NewItem is the input of Store.Create.
//
// Cadence defaults to weekly (the zero Kind); the day must still be set.
// An interval cadence without NextDue starts due immediately.
type NewItem struct {
	Title       string
	Link        string
	Creator     string
	ImageURL    string
	Cadence     schedule.Cadence
	ReleaseTime *schedule.TimeOfDay
}

type ListFilter struct {
	IncludeDone bool
}

func clockOf(cfg Config) schedule.Clock {
	if cfg.Clock == nil {
		return schedule.SystemClock{}
	}
	return cfg.Clock
}

// prepareNew validates n and returns the item to persist (without ID).
func prepareNew(n NewItem, now time.Time) (schedule.Item, error) {
	title := strings.TrimSpace(n.Title)
	if title == "" {
		return schedule.Item{}, errors.New("title is required")
	}
	c := n.Cadence
	if c.Kind == schedule.CadenceInterval {
		if c.NextDue == nil {
			c = schedule.Interval(c.EveryDays, &now)
		} else {
			c = schedule.Interval(c.EveryDays, c.NextDue)
		}
	} else {
		c = schedule.Weekly(c.Day)
	}
	if err := c.Validate(); err != nil {
		return schedule.Item{}, err
	}
	return schedule.Item{
		Title:       title,
		Link:        strings.TrimSpace(n.Link),
		Creator:     strings.TrimSpace(n.Creator),
		ImageURL:    strings.TrimSpace(n.ImageURL),
		Cadence:     c,
		ReleaseTime: n.ReleaseTime,
		Status:      schedule.StatusWaiting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// applyCadence switches it to c. Switching kinds clears the other kind's
// fields; an interval without NextDue starts EveryDays from now.
func applyCadence(it schedule.Item, c schedule.Cadence, release *schedule.TimeOfDay, now time.Time) (schedule.Item, error) {
	if c.Kind == schedule.CadenceInterval {
		if c.NextDue == nil {
			next := now.AddDate(0, 0, c.EveryDays)
			c = schedule.Interval(c.EveryDays, &next)
		} else {
			c = schedule.Interval(c.EveryDays, c.NextDue)
		}
	} else {
		c = schedule.Weekly(c.Day)
	}
	if err := c.Validate(); err != nil {
		return it, err
	}
	it.Cadence = c
	if release != nil {
		r := *release
		it.ReleaseTime = &r
	}
	it.UpdatedAt = now
	return it, nil
}

// applyStatus sets st. Resetting an interval item that lost its due date
// restarts the cycle at now.
func applyStatus(it schedule.Item, st schedule.Status, now time.Time) (schedule.Item, error) {
	if !st.Valid() {
		return it, fmt.Errorf("invalid status %q", st)
	}
	it.Status = st
	if st == schedule.StatusWaiting && it.Cadence.Kind == schedule.CadenceInterval && it.Cadence.NextDue == nil {
		it.Cadence = schedule.Interval(it.Cadence.EveryDays, &now)
	}
	it.UpdatedAt = now
	return it, nil
}
