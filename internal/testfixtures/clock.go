// Package testfixtures provides deterministic helpers shared by tests.
package testfixtures

import (
	"sort"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

// ReferenceTime is Monday 2024-01-15 10:00 UTC.
func ReferenceTime() time.Time {
	return time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)
}

// At returns the reference day at hh:mm.
func At(hour, minute int) time.Time {
	y, m, d := ReferenceTime().Date()
	return time.Date(y, m, d, hour, minute, 0, 0, time.UTC)
}

// Clock provides a controllable time source for tests.
// Timers registered with AfterFunc fire synchronously from Advance or Set,
// in deadline order, outside the clock's lock.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	nextID  int
	timers  map[int]*fakeTimer
}

type fakeTimer struct {
	clock    *Clock
	id       int
	deadline time.Time
	fn       func()
}

// Stop cancels the timer. It reports whether the timer was still pending.
func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if _, ok := t.clock.timers[t.id]; !ok {
		return false
	}
	delete(t.clock.timers, t.id)
	return true
}

// NewClock returns a clock initialised to the supplied time. When start is the
// zero value, ReferenceTime is used.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start, timers: make(map[int]*fakeTimer)}
}

// Now returns the current instant tracked by the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc schedules f to run once the clock reaches now+d.
// A non-positive d fires on the next Advance or Set.
func (c *Clock) AfterFunc(d time.Duration, f func()) domain.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	t := &fakeTimer{clock: c, id: c.nextID, deadline: c.current.Add(d), fn: f}
	c.timers[t.id] = t
	return t
}

// Pending returns the number of timers that have not fired or been stopped.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Set moves the clock to t and fires any timers now due.
func (c *Clock) Set(t time.Time) {
	c.advanceTo(t)
}

// Advance moves the clock forward by the provided duration, firing due
// timers along the way, and returns the updated time.
func (c *Clock) Advance(d time.Duration) time.Time {
	target := c.Now().Add(d)
	c.advanceTo(target)
	return target
}

func (c *Clock) advanceTo(target time.Time) {
	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.current = target
			c.mu.Unlock()
			return
		}
		delete(c.timers, next.id)
		if next.deadline.After(c.current) {
			c.current = next.deadline
		}
		c.mu.Unlock()

		next.fn()
	}
}

func (c *Clock) nextDueLocked(target time.Time) *fakeTimer {
	due := make([]*fakeTimer, 0, len(c.timers))
	for _, t := range c.timers {
		if !t.deadline.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].id < due[j].id
		}
		return due[i].deadline.Before(due[j].deadline)
	})
	return due[0]
}

// Ensure Clock implements domain.Clock.
var _ domain.Clock = (*Clock)(nil)
