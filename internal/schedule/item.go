package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrItemNotFound is returned by stores for an unknown item id.
var ErrItemNotFound = errors.New("item not found")

// Status is managed by the external update path; the scheduler only skips Done.
type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusInProgress Status = "PENDING"
	StatusDone       Status = "DONE"
)

// ParseStatus accepts the stored form and a few friendly spellings.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "waiting", "wait", "reset":
		return StatusWaiting, nil
	case "pending", "in_progress", "inprogress", "in-progress", "reading":
		return StatusInProgress, nil
	case "done", "finished":
		return StatusDone, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

func (s Status) Valid() bool {
	return s == StatusWaiting || s == StatusInProgress || s == StatusDone
}

// Item is one tracked release.
type Item struct {
	ID       int64
	Title    string
	Link     string
	Creator  string
	ImageURL string

	Cadence     Cadence
	ReleaseTime *TimeOfDay

	LastNotifiedAt *time.Time
	Status         Status

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clock supplies "now" to everything that makes time-based decisions.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in Location (local time when nil).
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }
