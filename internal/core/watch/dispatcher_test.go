package watch

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives dispatcher timers manually so debounce behavior is
// tested without wall-clock sleeps.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c        *fakeClock
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, deadline: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward, firing due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.fired || t.stopped || t.deadline.After(target) {
				continue
			}
			if next == nil || t.deadline.Before(next.deadline) {
				next = t
			}
		}
		if next == nil {
			break
		}
		c.now = next.deadline
		next.fired = true
		fn := next.fn
		c.mu.Unlock()
		fn()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

func TestDispatcherCollapsesBurst(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()

	var mu sync.Mutex
	var fires []time.Time
	d := NewDispatcher[string](500*time.Millisecond, clock, func(key string) {
		mu.Lock()
		defer mu.Unlock()
		require.Equal(t, "S", key)
		fires = append(fires, clock.Now())
	})

	// Three change events at t=0ms, 100ms, 200ms.
	d.Trigger("S")
	clock.Advance(100 * time.Millisecond)
	d.Trigger("S")
	clock.Advance(100 * time.Millisecond)
	d.Trigger("S")

	// Nothing may fire before the quiet window elapses.
	clock.Advance(499 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, fires)
	mu.Unlock()

	clock.Advance(time.Second)
	mu.Lock()
	require.Len(t, fires, 1)
	elapsed := fires[0].Sub(start)
	assert.GreaterOrEqual(t, elapsed, 700*time.Millisecond)
	mu.Unlock()
}

func TestDispatcherIndependentKeys(t *testing.T) {
	clock := newFakeClock()

	var mu sync.Mutex
	var keys []string
	d := NewDispatcher[string](100*time.Millisecond, clock, func(key string) {
		mu.Lock()
		defer mu.Unlock()
		keys = append(keys, key)
	})

	d.Trigger("a")
	d.Trigger("b")
	clock.Advance(200 * time.Millisecond)

	mu.Lock()
	sort.Strings(keys)
	assert.Equal(t, []string{"a", "b"}, keys)
	mu.Unlock()
}

func TestDispatcherCancelAll(t *testing.T) {
	clock := newFakeClock()

	fired := 0
	d := NewDispatcher[string](100*time.Millisecond, clock, func(string) { fired++ })

	d.Trigger("a")
	d.Trigger("b")
	assert.Equal(t, 2, d.PendingCount())

	d.CancelAll()
	clock.Advance(time.Second)
	assert.Zero(t, fired)
	assert.Zero(t, d.PendingCount())

	// Still usable after CancelAll.
	d.Trigger("c")
	clock.Advance(time.Second)
	assert.Equal(t, 1, fired)
}

func TestDispatcherRetrigerAfterFire(t *testing.T) {
	clock := newFakeClock()

	fired := 0
	d := NewDispatcher[string](100*time.Millisecond, clock, func(string) { fired++ })

	d.Trigger("s")
	clock.Advance(150 * time.Millisecond)
	d.Trigger("s")
	clock.Advance(150 * time.Millisecond)

	assert.Equal(t, 2, fired)
}
