package engine

import (
	"container/heap"
	"time"
)

// PseudoClock is the session's virtual clock.
//
// Time only moves when the driver advances it. The clock also owns the
// session's timer queue: advancing past a timer's deadline runs it, in
// deadline order and then creation order.
//
// INVARIANTS:
//   - Current() never decreases
//   - Timers run at most once, never before their deadline
//
// Thread-safety: none. A PseudoClock belongs to exactly one Session and is
// driven from the session's goroutine.
type PseudoClock struct {
	now    int64 // ms since epoch
	timers timerQueue
	onDue  func(*timer)
}

// NewPseudoClock creates a clock at the epoch (0 ms).
func NewPseudoClock() *PseudoClock {
	return &PseudoClock{}
}

// NewPseudoClockAt creates a clock at a specific instant.
// Used on restore to resume from the persisted clock position.
func NewPseudoClockAt(ms int64) *PseudoClock {
	return &PseudoClock{now: ms}
}

// Current returns the current logical instant in milliseconds since epoch.
func (c *PseudoClock) Current() int64 {
	return c.now
}

// CurrentTime returns the current logical instant as a UTC time.Time.
func (c *PseudoClock) CurrentTime() time.Time {
	return time.UnixMilli(c.now).UTC()
}

// Advance moves the clock forward by deltaMS milliseconds and runs every
// timer that became due. Zero or negative deltas are a no-op.
// Returns the clock position after the call.
func (c *PseudoClock) Advance(deltaMS int64) int64 {
	if deltaMS <= 0 {
		return c.now
	}
	c.now += deltaMS
	c.runDue()
	return c.now
}

// AdvanceTime is the checked variant of Advance. A negative duration is a
// CONTRACT error; the clock never rewinds.
func (c *PseudoClock) AdvanceTime(d time.Duration) (int64, error) {
	if d < 0 {
		return c.now, Errorf(ErrCodeContract, "advance", "negative clock advance %s", d)
	}
	return c.Advance(d.Milliseconds()), nil
}

// schedule queues a timer.
func (c *PseudoClock) schedule(t *timer) {
	heap.Push(&c.timers, t)
}

// runDue runs every pending timer whose deadline is <= now.
func (c *PseudoClock) runDue() {
	for c.timers.Len() > 0 {
		next := c.timers[0]
		if next.deadline > c.now {
			return
		}
		heap.Pop(&c.timers)
		if next.cancelled || c.onDue == nil {
			continue
		}
		c.onDue(next)
	}
}

// pending returns live timers in run order.
func (c *PseudoClock) pending() []*timer {
	out := make([]*timer, 0, len(c.timers))
	for _, t := range c.timers {
		if !t.cancelled {
			out = append(out, t)
		}
	}
	sortTimers(out)
	return out
}

// reset drops every timer and detaches the callback.
func (c *PseudoClock) reset() {
	c.timers = nil
	c.onDue = nil
}
