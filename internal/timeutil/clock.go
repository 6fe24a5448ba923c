// Package timeutil lets the control loop run against a real or a manually
// stepped clock.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the subset of the time package the control loop depends on.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// NewTicker returns a Ticker that delivers the current time every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker is the part of *time.Ticker the loop uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return wallTicker{time.NewTicker(d)}
}

type wallTicker struct{ t *time.Ticker }

func (w wallTicker) C() <-chan time.Time { return w.t.C }
func (w wallTicker) Stop()               { w.t.Stop() }

// MockClock only moves when a test calls Set or Advance. Its tickers fire
// from inside Advance, so a test that advances by one interval and then waits
// for the loop's side effect sees exactly one tick.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers map[*mockTicker]struct{}
}

// NewMockClock returns a MockClock reading start.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start, tickers: make(map[*mockTicker]struct{})}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Set jumps to t. Tickers are not fired, even if t passes their due time;
// they fire on the next Advance.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d. Each live ticker that has come due
// sends at most one tick, stamped with the new time, and is rescheduled one
// period after it.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for t := range c.tickers {
		if c.now.Before(t.due) {
			continue
		}
		select {
		case t.ch <- c.now:
		default:
		}
		t.due = c.now.Add(t.period)
	}
}

// NewTicker returns a ticker first due d from now.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTicker{
		clock:  c,
		ch:     make(chan time.Time, 1),
		period: d,
		due:    c.now.Add(d),
	}
	c.tickers[t] = struct{}{}
	return t
}

// ActiveTickers reports how many tickers are live. Tests poll it to know the
// loop goroutine has started.
func (c *MockClock) ActiveTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// mockTicker keeps one buffered tick and drops the rest, like time.Ticker.
// Its schedule is guarded by the owning clock's mutex.
type mockTicker struct {
	clock  *MockClock
	ch     chan time.Time
	period time.Duration
	due    time.Time
}

func (t *mockTicker) C() <-chan time.Time { return t.ch }

func (t *mockTicker) Stop() {
	t.clock.mu.Lock()
	delete(t.clock.tickers, t)
	t.clock.mu.Unlock()
}
