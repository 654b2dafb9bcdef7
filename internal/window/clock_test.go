package window

import (
	"testing"
	"time"
)

func mustClock(t *testing.T, d time.Duration) Clock {
	t.Helper()
	c, err := NewClock(d)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewClock_RejectsBadDurations(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Minute, 7 * time.Minute, 25 * time.Minute} {
		if _, err := NewClock(d); err == nil {
			t.Errorf("expected error for duration %v", d)
		}
	}
}

func TestWindowOf_Boundaries(t *testing.T) {
	c := mustClock(t, 15*time.Minute)

	ts := time.Date(2024, 9, 1, 10, 37, 42, 0, time.UTC)
	w := c.WindowOf(ts)

	wantStart := time.Date(2024, 9, 1, 10, 30, 0, 0, time.UTC)
	if !w.Start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", w.Start, wantStart)
	}
	if !w.End.Equal(wantStart.Add(15 * time.Minute)) {
		t.Errorf("end = %v, want %v", w.End, wantStart.Add(15*time.Minute))
	}
	if w.ID != "20240901_1030" {
		t.Errorf("id = %q, want %q", w.ID, "20240901_1030")
	}
}

func TestIDOf_SameWindowSameID(t *testing.T) {
	c := mustClock(t, 15*time.Minute)

	t1 := time.Date(2024, 9, 1, 10, 30, 0, 0, time.UTC)
	t2 := time.Date(2024, 9, 1, 10, 44, 59, 0, time.UTC)
	if c.IDOf(t1) != c.IDOf(t2) {
		t.Errorf("ids differ within one window: %q vs %q", c.IDOf(t1), c.IDOf(t2))
	}

	t3 := t1.Add(15 * time.Minute)
	if c.IDOf(t1) == c.IDOf(t3) {
		t.Errorf("ids equal across adjacent windows: %q", c.IDOf(t1))
	}
}

func TestIDOf_Sortable(t *testing.T) {
	c := mustClock(t, 15*time.Minute)

	earlier := c.IDOf(time.Date(2024, 9, 1, 23, 45, 0, 0, time.UTC))
	later := c.IDOf(time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC))
	if !(earlier < later) {
		t.Errorf("ids not sortable: %q should precede %q", earlier, later)
	}
}

func TestRemaining(t *testing.T) {
	c := mustClock(t, 15*time.Minute)

	ts := time.Date(2024, 9, 1, 10, 40, 0, 0, time.UTC)
	if got := c.Remaining(ts); got != 5*time.Minute {
		t.Errorf("remaining = %v, want 5m", got)
	}

	// A window boundary belongs to the next window, so a full duration remains.
	boundary := time.Date(2024, 9, 1, 10, 45, 0, 0, time.UTC)
	if got := c.Remaining(boundary); got != 15*time.Minute {
		t.Errorf("remaining at boundary = %v, want 15m", got)
	}
}

func TestEntryEligible_InclusiveBounds(t *testing.T) {
	c := mustClock(t, 15*time.Minute)
	min, max := 90*time.Second, 300*time.Second

	end := time.Date(2024, 9, 1, 10, 45, 0, 0, time.UTC)

	cases := []struct {
		name      string
		remaining time.Duration
		want      bool
	}{
		{"exactly max remaining", 300 * time.Second, true},
		{"exactly min remaining", 90 * time.Second, true},
		{"just above max", 301 * time.Second, false},
		{"just below min", 89 * time.Second, false},
		{"mid window", 200 * time.Second, true},
	}

	for _, tc := range cases {
		ts := end.Add(-tc.remaining)
		if got := c.EntryEligible(ts, min, max); got != tc.want {
			t.Errorf("%s: eligible = %v, want %v", tc.name, got, tc.want)
		}
	}
}
