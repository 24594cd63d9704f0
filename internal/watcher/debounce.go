package watcher

import (
	"sync"
	"time"
)

// debouncer coalesces rapid events for the same path into one.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	pending map[string]*pendingEvent
	fire    func(Event)
	stopped bool
}

// pendingEvent tracks a debounced event.
type pendingEvent struct {
	event Event
	timer *time.Timer
}

func newDebouncer(delay time.Duration, fire func(Event)) *debouncer {
	return &debouncer{
		delay:   delay,
		pending: make(map[string]*pendingEvent),
		fire:    fire,
	}
}

// add schedules event, merging it with an event already pending for the
// same path and restarting its timer.
func (d *debouncer) add(event Event) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.delay <= 0 {
		d.mu.Unlock()
		d.fire(event)
		return
	}

	if p, ok := d.pending[event.Path]; ok {
		p.event.Op |= event.Op
		p.event.Timestamp = event.Timestamp
		p.timer.Reset(d.delay)
		d.mu.Unlock()
		return
	}

	path := event.Path
	p := &pendingEvent{event: event}
	p.timer = time.AfterFunc(d.delay, func() {
		d.fireEvent(path)
	})
	d.pending[path] = p
	d.mu.Unlock()
}

// fireEvent delivers the pending event for path.
func (d *debouncer) fireEvent(path string) {
	d.mu.Lock()
	p, ok := d.pending[path]
	if !ok || d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.pending, path)
	d.mu.Unlock()

	d.fire(p.event)
}

// flush delivers every pending event immediately.
func (d *debouncer) flush() {
	d.mu.Lock()
	paths := make([]string, 0, len(d.pending))
	for path, p := range d.pending {
		p.timer.Stop()
		paths = append(paths, path)
	}
	d.mu.Unlock()

	for _, path := range paths {
		d.fireEvent(path)
	}
}

// stop drops every pending event. Later adds are ignored.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for path, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, path)
	}
}

func (d *debouncer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
