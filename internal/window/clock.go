// Package window computes trading window boundaries from timestamps.
//
// Boundaries are derived arithmetically from the timestamp rather than
// tracked incrementally, so any instant maps to exactly one window even
// after gaps in the input (backtest seeking, live feed outages).
package window

import (
	"fmt"
	"time"
)

// Window is a fixed-length recurring interval during which at most one
// position may be opened. End is exclusive: a timestamp equal to End
// belongs to the next window.
type Window struct {
	ID    string
	Start time.Time
	End   time.Time
}

// Clock derives windows of a fixed duration. The zero value is unusable;
// construct with NewClock.
type Clock struct {
	duration time.Duration
}

// NewClock returns a Clock for the given window duration. The duration
// must be positive and divide one hour so windows stay aligned to the
// minute-of-hour grid.
func NewClock(duration time.Duration) (Clock, error) {
	if duration <= 0 {
		return Clock{}, fmt.Errorf("window duration must be positive, got %v", duration)
	}
	if time.Hour%duration != 0 {
		return Clock{}, fmt.Errorf("window duration %v must divide one hour", duration)
	}
	return Clock{duration: duration}, nil
}

// Duration returns the configured window length.
func (c Clock) Duration() time.Duration {
	return c.duration
}

// WindowOf returns the window containing t.
func (c Clock) WindowOf(t time.Time) Window {
	start := t.UTC().Truncate(c.duration)
	return Window{
		ID:    start.Format("20060102_1504"),
		Start: start,
		End:   start.Add(c.duration),
	}
}

// IDOf returns the identifier of the window containing t. IDs are stable
// and sort chronologically.
func (c Clock) IDOf(t time.Time) string {
	return c.WindowOf(t).ID
}

// Remaining returns the time left until the window containing t expires,
// never negative.
func (c Clock) Remaining(t time.Time) time.Duration {
	rem := c.WindowOf(t).End.Sub(t.UTC())
	if rem < 0 {
		return 0
	}
	return rem
}

// EntryEligible reports whether t falls inside the entry window: at least
// min and at most max remaining until expiry, bounds inclusive.
func (c Clock) EntryEligible(t time.Time, min, max time.Duration) bool {
	rem := c.Remaining(t)
	return min <= rem && rem <= max
}
