package timeutil

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func drain(tk Ticker) (time.Time, bool) {
	select {
	case v := <-tk.C():
		return v, true
	default:
		return time.Time{}, false
	}
}

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	start := c.Now()
	if d := c.Since(start.Add(-time.Second)); d < time.Second {
		t.Errorf("Since = %v, want >= 1s", d)
	}

	tk := c.NewTicker(5 * time.Millisecond)
	defer tk.Stop()
	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("wall ticker never fired")
	}
}

func TestMockClock_SetAndAdvance(t *testing.T) {
	c := NewMockClock(epoch)
	if got := c.Now(); !got.Equal(epoch) {
		t.Fatalf("Now = %v, want %v", got, epoch)
	}

	c.Advance(1500 * time.Millisecond)
	if got := c.Since(epoch); got != 1500*time.Millisecond {
		t.Errorf("Since = %v, want 1.5s", got)
	}

	c.Set(epoch.Add(-time.Minute))
	if got := c.Since(epoch); got != -time.Minute {
		t.Errorf("Since after Set = %v, want -1m", got)
	}
}

func TestMockClock_TickSchedule(t *testing.T) {
	c := NewMockClock(epoch)
	tk := c.NewTicker(100 * time.Millisecond)

	steps := []struct {
		advance time.Duration
		fires   bool
	}{
		{0, false},
		{60 * time.Millisecond, false},
		{40 * time.Millisecond, true},
		{99 * time.Millisecond, false},
		{1 * time.Millisecond, true},
		// A long jump fires once and reschedules from the new time.
		{time.Second, true},
		{50 * time.Millisecond, false},
		{50 * time.Millisecond, true},
	}
	for i, s := range steps {
		c.Advance(s.advance)
		got, fired := drain(tk)
		if fired != s.fires {
			t.Fatalf("step %d: fired = %v, want %v", i, fired, s.fires)
		}
		if fired && !got.Equal(c.Now()) {
			t.Errorf("step %d: tick stamped %v, want %v", i, got, c.Now())
		}
	}
}

func TestMockClock_UnreadTicksAreDropped(t *testing.T) {
	c := NewMockClock(epoch)
	tk := c.NewTicker(time.Second)

	for range 3 {
		c.Advance(time.Second)
	}
	first, ok := drain(tk)
	if !ok {
		t.Fatal("expected a buffered tick")
	}
	if want := epoch.Add(time.Second); !first.Equal(want) {
		t.Errorf("buffered tick = %v, want the first one at %v", first, want)
	}
	if _, ok := drain(tk); ok {
		t.Error("more than one tick was buffered")
	}
}

func TestMockClock_SetDoesNotFire(t *testing.T) {
	c := NewMockClock(epoch)
	tk := c.NewTicker(time.Second)

	c.Set(epoch.Add(time.Hour))
	if _, ok := drain(tk); ok {
		t.Fatal("Set fired a ticker")
	}
	c.Advance(0)
	if _, ok := drain(tk); !ok {
		t.Error("overdue ticker did not fire on the next Advance")
	}
}

func TestMockClock_Stop(t *testing.T) {
	c := NewMockClock(epoch)
	a := c.NewTicker(time.Second)
	b := c.NewTicker(time.Second)
	if n := c.ActiveTickers(); n != 2 {
		t.Fatalf("ActiveTickers = %d, want 2", n)
	}

	a.Stop()
	a.Stop()
	if n := c.ActiveTickers(); n != 1 {
		t.Errorf("ActiveTickers = %d, want 1", n)
	}

	c.Advance(time.Second)
	if _, ok := drain(a); ok {
		t.Error("stopped ticker fired")
	}
	if _, ok := drain(b); !ok {
		t.Error("live ticker did not fire")
	}
}
