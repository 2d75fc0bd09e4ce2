package app

import (
	"sync/atomic"
	"time"
)

// zoneClock is a schedule.Clock whose location follows config reloads.
type zoneClock struct {
	loc atomic.Pointer[time.Location]
}

func newZoneClock(loc *time.Location) *zoneClock {
	c := &zoneClock{}
	c.Set(loc)
	return c
}

func (c *zoneClock) Set(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	c.loc.Store(loc)
}

func (c *zoneClock) Location() *time.Location { return c.loc.Load() }

func (c *zoneClock) Now() time.Time { return time.Now().In(c.loc.Load()) }
