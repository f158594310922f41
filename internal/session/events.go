package session

import (
	"sync"
	"time"

	"screen-recorder/internal/domain"
)

// EventType classifies messages emitted during a session.
type EventType string

const (
	EventTypeStatus       EventType = "status"
	EventTypeNotification EventType = "notification"
	EventTypeTimer        EventType = "timer"
	EventTypeSaved        EventType = "saved"
	EventTypeCompleted    EventType = "completed"
	EventTypeError        EventType = "error"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq       int64               `json:"seq"`
	Timestamp time.Time           `json:"timestamp"`
	SessionID string              `json:"sessionId,omitempty"`
	Type      EventType           `json:"type"`
	State     domain.SessionState `json:"state,omitempty"`
	Modality  domain.Modality     `json:"modality,omitempty"`
	Level     Level               `json:"level,omitempty"`
	Message   string              `json:"message,omitempty"`
	Path      string              `json:"path,omitempty"`
	Elapsed   string              `json:"elapsed,omitempty"`
}

// EventBus stores recent events, provides incremental reads and fans out
// to subscribers.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event

	subMu  sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		subs:      map[int]func(Event){},
	}
}

// Publish appends one event, assigns sequence and timestamp, and notifies
// subscribers.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}
	b.mu.Unlock()

	b.subMu.RLock()
	subs := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.subMu.RUnlock()
	for _, fn := range subs {
		fn(event)
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Subscribe registers fn for every future event and returns a function
// that removes it.
func (b *EventBus) Subscribe(fn func(Event)) func() {
	b.subMu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.subMu.Unlock()

	return func() {
		b.subMu.Lock()
		delete(b.subs, id)
		b.subMu.Unlock()
	}
}
