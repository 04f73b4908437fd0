package watcher

import (
	"sync"
	"time"
)

// EventType classifies a file change.
type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "CREATE"
	case EventModify:
		return "MODIFY"
	case EventDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a debounced change to one vault file. Path is vault-relative
// with forward slashes.
type FileEvent struct {
	Path      string
	EventType EventType
	Timestamp time.Time
}

// Debouncer coalesces rapid events for the same path, emitting one event per
// path once it has stayed quiet for the configured delay. Editors commonly
// write a save as several create/write/rename operations in quick succession.
type Debouncer struct {
	delay  time.Duration
	events map[string]*pendingEvent
	mu     sync.Mutex
	output chan FileEvent
	stopCh chan struct{}
}

type pendingEvent struct {
	event FileEvent
	timer *time.Timer
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:  delay,
		events: make(map[string]*pendingEvent),
		output: make(chan FileEvent, 100),
		stopCh: make(chan struct{}),
	}
}

// Events returns the channel of debounced events.
func (d *Debouncer) Events() <-chan FileEvent {
	return d.output
}

// Add records an event for path, resetting its quiet-period timer.
func (d *Debouncer) Add(path string, eventType EventType) {
	d.mu.Lock()
	defer d.mu.Unlock()

	select {
	case <-d.stopCh:
		return
	default:
	}

	event := FileEvent{
		Path:      path,
		EventType: eventType,
		Timestamp: time.Now(),
	}

	if pending, exists := d.events[path]; exists {
		pending.timer.Stop()

		// Coalescing rules: a delete always wins (the file is gone), and a
		// create followed by modifies stays a create.
		switch {
		case eventType == EventDelete:
			pending.event.EventType = EventDelete
		case pending.event.EventType == EventCreate && eventType == EventModify:
			// Still a create.
		case pending.event.EventType != EventDelete:
			pending.event.EventType = eventType
		}
		pending.event.Timestamp = event.Timestamp

		pending.timer = time.AfterFunc(d.delay, func() {
			d.emit(path)
		})
		return
	}

	d.events[path] = &pendingEvent{
		event: event,
		timer: time.AfterFunc(d.delay, func() {
			d.emit(path)
		}),
	}
}

// emit sends a pending event to the output channel.
func (d *Debouncer) emit(path string) {
	d.mu.Lock()
	pending, exists := d.events[path]
	if exists {
		delete(d.events, path)
	}
	d.mu.Unlock()

	if exists {
		select {
		case d.output <- pending.event:
		case <-d.stopCh:
		}
	}
}

// Flush immediately emits all pending events.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	paths := make([]string, 0, len(d.events))
	for path, pending := range d.events {
		pending.timer.Stop()
		paths = append(paths, path)
	}
	d.mu.Unlock()

	for _, path := range paths {
		d.emit(path)
	}
}

// Stop drops pending events and closes the output channel.
func (d *Debouncer) Stop() {
	close(d.stopCh)

	d.mu.Lock()
	for _, pending := range d.events {
		pending.timer.Stop()
	}
	d.events = make(map[string]*pendingEvent)
	d.mu.Unlock()

	close(d.output)
}

// PendingCount returns the number of paths awaiting emission.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}
