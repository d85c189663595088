package watch

import (
	"sync"
	"time"
)

// Dispatcher debounces triggers per key: a burst of Trigger calls for the
// same key collapses into exactly one fire call, scheduled one quiet window
// after the last trigger. Different keys debounce independently.
type Dispatcher[K comparable] struct {
	window time.Duration
	clock  Clock
	fire   func(K)

	mu      sync.Mutex
	pending map[K]*pendingTimer
	gen     uint64
}

type pendingTimer struct {
	timer Timer
	gen   uint64
}

// NewDispatcher creates a dispatcher that calls fire(key) once per burst.
func NewDispatcher[K comparable](window time.Duration, clock Clock, fire func(K)) *Dispatcher[K] {
	return &Dispatcher[K]{
		window:  window,
		clock:   clock,
		fire:    fire,
		pending: make(map[K]*pendingTimer),
	}
}

// Trigger starts or restarts the quiet window for key.
func (d *Dispatcher[K]) Trigger(key K) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pending[key]; ok {
		p.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending[key] = &pendingTimer{
		timer: d.clock.AfterFunc(d.window, func() { d.expire(key, gen) }),
		gen:   gen,
	}
}

// expire fires the callback for key unless the timer was superseded by a
// later Trigger or cancelled. The generation check closes the race between
// a firing timer and a concurrent reset.
func (d *Dispatcher[K]) expire(key K, gen uint64) {
	d.mu.Lock()
	p, ok := d.pending[key]
	if !ok || p.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	d.fire(key)
}

// CancelAll stops every pending timer without firing it. The dispatcher
// remains usable afterwards.
func (d *Dispatcher[K]) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, key)
	}
}

// PendingCount returns the number of keys with an unexpired quiet window.
func (d *Dispatcher[K]) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
