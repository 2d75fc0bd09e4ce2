package storage

import (
	"time"

	"mangabot/internal/schedule"
)

// record is the on-disk JSON form of an item (file and memory drivers).
// Field names match the SQL columns.
type record struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Link            string     `json:"link,omitempty"`
	Creator         string     `json:"creator,omitempty"`
	ImageURL        string     `json:"image_url,omitempty"`
	ReleaseDay      string     `json:"release_day,omitempty"`
	ReleaseInterval int        `json:"release_interval,omitempty"`
	NextReleaseDate *time.Time `json:"next_release_date,omitempty"`
	ReleaseTime     string     `json:"release_time,omitempty"`
	LastNotifiedAt  *time.Time `json:"last_notified_at,omitempty"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toRecord(it schedule.Item) record {
	r := record{
		ID:             it.ID,
		Title:          it.Title,
		Link:           it.Link,
		Creator:        it.Creator,
		ImageURL:       it.ImageURL,
		LastNotifiedAt: it.LastNotifiedAt,
		Status:         string(it.Status),
		CreatedAt:      it.CreatedAt,
		UpdatedAt:      it.UpdatedAt,
	}
	if it.Cadence.Kind == schedule.CadenceInterval {
		r.ReleaseInterval = it.Cadence.EveryDays
		r.NextReleaseDate = it.Cadence.NextDue
	} else {
		r.ReleaseDay = it.Cadence.Day.String()
	}
	if it.ReleaseTime != nil {
		r.ReleaseTime = it.ReleaseTime.String()
	}
	return r
}

// item converts back. Unparseable day or time values load as malformed
// cadence / no release time rather than failing the whole store; the
// evaluator reports malformed items.
func (r record) item() schedule.Item {
	it := schedule.Item{
		ID:             r.ID,
		Title:          r.Title,
		Link:           r.Link,
		Creator:        r.Creator,
		ImageURL:       r.ImageURL,
		LastNotifiedAt: r.LastNotifiedAt,
		Status:         schedule.Status(r.Status),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if it.Status == "" {
		it.Status = schedule.StatusWaiting
	}
	it.Cadence = cadenceFromColumns(r.ReleaseDay, r.ReleaseInterval, r.NextReleaseDate)
	if r.ReleaseTime != "" {
		if t, err := schedule.ParseTimeOfDay(r.ReleaseTime); err == nil {
			it.ReleaseTime = &t
		}
	}
	return it
}

// cadenceFromColumns maps the (release_day, release_interval, next_release_date)
// column triple onto a Cadence. A positive interval wins over a day.
func cadenceFromColumns(day string, interval int, next *time.Time) schedule.Cadence {
	if interval > 0 {
		return schedule.Interval(interval, next)
	}
	d, _ := schedule.ParseWeekday(day)
	return schedule.Weekly(d)
}
