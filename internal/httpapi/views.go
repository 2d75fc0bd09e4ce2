package httpapi

import (
	"time"

	"mangabot/internal/schedule"
)

// ItemView is the JSON shape of an item.
type ItemView struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Link           string     `json:"link,omitempty"`
	Creator        string     `json:"creator,omitempty"`
	ImageURL       string     `json:"image_url,omitempty"`
	Cadence        string     `json:"cadence"`
	Day            string     `json:"day,omitempty"`
	EveryDays      int        `json:"every_days,omitempty"`
	NextDue        *time.Time `json:"next_due,omitempty"`
	Schedule       string     `json:"schedule"`
	ReleaseTime    string     `json:"release_time,omitempty"`
	Status         string     `json:"status"`
	LastNotifiedAt *time.Time `json:"last_notified_at,omitempty"`
}

func NewItemView(it schedule.Item) ItemView {
	v := ItemView{
		ID:             it.ID,
		Title:          it.Title,
		Link:           it.Link,
		Creator:        it.Creator,
		ImageURL:       it.ImageURL,
		Cadence:        it.Cadence.Kind.String(),
		Schedule:       it.Cadence.Describe(),
		Status:         string(it.Status),
		LastNotifiedAt: it.LastNotifiedAt,
	}
	if it.Cadence.IsInterval() {
		v.EveryDays = it.Cadence.EveryDays
		v.NextDue = it.Cadence.NextDue
	} else {
		v.Day = it.Cadence.Day.String()
	}
	if it.ReleaseTime != nil {
		v.ReleaseTime = it.ReleaseTime.String()
	}
	return v
}

func itemViews(items []schedule.Item) []ItemView {
	out := make([]ItemView, 0, len(items))
	for _, it := range items {
		out = append(out, NewItemView(it))
	}
	return out
}

// EvaluationView is the JSON shape of a dry-run evaluation.
type EvaluationView struct {
	Now       time.Time       `json:"now"`
	Due       []ItemView      `json:"due"`
	Upcoming  []UpcomingView  `json:"upcoming"`
	Malformed []MalformedView `json:"malformed,omitempty"`
}

type UpcomingView struct {
	Item      ItemView  `json:"item"`
	At        time.Time `json:"at"`
	InMinutes int       `json:"in_minutes"`
}

type MalformedView struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Error string `json:"error"`
}

func NewEvaluationView(ev schedule.Evaluation) EvaluationView {
	v := EvaluationView{
		Now:      ev.Now,
		Due:      itemViews(ev.Due),
		Upcoming: make([]UpcomingView, 0, len(ev.Upcoming)),
	}
	for _, u := range ev.Upcoming {
		v.Upcoming = append(v.Upcoming, UpcomingView{Item: NewItemView(u.Item), At: u.At, InMinutes: int(u.In / time.Minute)})
	}
	for _, m := range ev.Malformed {
		v.Malformed = append(v.Malformed, MalformedView{ID: m.Item.ID, Title: m.Item.Title, Error: m.Err.Error()})
	}
	return v
}
