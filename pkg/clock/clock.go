// Package clock keeps an approximate wall clock driven by a free running
// millisecond counter and raises the periodic flush and daily resync events.
package clock

import (
	"fmt"
	"time"
)

// DefaultFlushEvery is the default flush cadence in minutes.
const DefaultFlushEvery = 5

// Clock counts whole seconds from a millisecond counter and rolls them into
// minutes, hours and days. Local drift is never corrected incrementally; the
// clock is replaced wholesale by Set after the daily resync request.
//
// Clock is not safe for concurrent use.
type Clock struct {
	Seconds int
	Minutes int
	Hours   int
	Day     int
	Month   time.Month
	Year    int

	flushEvery int
	lastMillis uint32
	started    bool

	flushDue  bool
	resyncDue bool
}

// New creates a clock showing start that raises a flush every flushEvery
// minutes.
func New(start time.Time, flushEvery int) *Clock {
	if flushEvery <= 0 {
		flushEvery = DefaultFlushEvery
	}
	c := &Clock{flushEvery: flushEvery}
	c.setFields(start)
	return c
}

// Update advances the clock to millis. Every whole second elapsed since the
// last second boundary is applied one at a time, so minute boundaries are not
// skipped after the caller was blocked for a while. The counter may wrap.
// A counter that steps backwards was restarted; the clock keeps its time and
// re-anchors on the new value.
// It reports whether at least one minute boundary was crossed.
func (c *Clock) Update(millis uint32) bool {
	if !c.started || Restarted(c.lastMillis, millis) {
		c.started = true
		c.lastMillis = millis
		return false
	}

	var minute bool
	for millis-c.lastMillis >= 1000 {
		c.lastMillis += 1000
		if c.tick() {
			minute = true
		}
	}
	return minute
}

// Restarted reports whether the millisecond counter stepped backwards from
// last to now instead of moving forward or wrapping.
func Restarted(last, now uint32) bool {
	return int32(now-last) < 0
}

// tick advances one second and reports a minute boundary.
func (c *Clock) tick() bool {
	var minute bool

	c.Seconds++
	if c.Seconds >= 60 {
		c.Seconds = 0
		c.Minutes++
		minute = true
	}
	if c.Minutes >= 60 {
		c.Minutes = 0
		c.Hours++
	}
	if c.Hours >= 24 {
		c.Hours = 0
		next := time.Date(c.Year, c.Month, c.Day+1, 0, 0, 0, 0, time.UTC)
		c.Year, c.Month, c.Day = next.Date()
		c.resyncDue = true
	}

	if minute && c.Minutes%c.flushEvery == 0 {
		c.flushDue = true
	}
	return minute
}

// TakeFlush reports whether a flush is due and clears the flag. The flag is
// sticky until taken and is raised again only on the next qualifying minute
// boundary.
func (c *Clock) TakeFlush() bool {
	due := c.flushDue
	c.flushDue = false
	return due
}

// FlushDue reports whether a flush is pending without clearing it.
func (c *Clock) FlushDue() bool {
	return c.flushDue
}

// TakeResync reports whether a resync against the external time source was
// requested and clears the request.
func (c *Clock) TakeResync() bool {
	due := c.resyncDue
	c.resyncDue = false
	return due
}

// Set replaces the clock with t and restarts second counting at millis.
// Pending flush and resync flags are left alone.
func (c *Clock) Set(t time.Time, millis uint32) {
	c.setFields(t)
	c.started = true
	c.lastMillis = millis
}

func (c *Clock) setFields(t time.Time) {
	t = t.UTC()
	c.Year, c.Month, c.Day = t.Date()
	c.Hours, c.Minutes, c.Seconds = t.Clock()
}

// Time returns the clock as a UTC time.
func (c *Clock) Time() time.Time {
	return time.Date(c.Year, c.Month, c.Day, c.Hours, c.Minutes, c.Seconds, 0, time.UTC)
}

// String returns the clock as "YY-MM-DD HH:MM:SS".
func (c *Clock) String() string {
	return fmt.Sprintf("%02d-%02d-%02d %02d:%02d:%02d",
		c.Year%100, int(c.Month), c.Day, c.Hours, c.Minutes, c.Seconds)
}
