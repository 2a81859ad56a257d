package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType classifies a lifecycle transition in the event log.
type EventType string

const (
	EventConnection       EventType = "connection"
	EventDisconnection    EventType = "disconnection"
	EventSubscription     EventType = "subscription"
	EventUnsubscription   EventType = "unsubscription"
	EventError            EventType = "error"
	EventRateLimited      EventType = "rate_limited"
	EventPermissionDenied EventType = "permission_denied"
)

// Event is an immutable audit record of one lifecycle transition.
type Event struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	ConnectionID string    `json:"connectionId,omitempty"`
	UserID       string    `json:"userId,omitempty"`
	Channel      string    `json:"channel,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// EventSink receives a copy of every recorded event, e.g. a Kafka producer.
// Delivery is best effort; sink errors never reach the recording caller.
type EventSink interface {
	Publish(event Event) error
}

// sinkBuffer bounds the events queued for the sink; a stalled sink sheds
// events instead of accumulating goroutines or blocking the caller.
const sinkBuffer = 256

// EventLog is an append-only, size-bounded log of gateway lifecycle events.
// Recording always succeeds and never blocks the operation being logged.
type EventLog struct {
	mu     sync.RWMutex
	max    int
	events []Event
	sink   EventSink
	sinkCh chan Event
}

func NewEventLog(max int, sink EventSink) *EventLog {
	if max <= 0 {
		max = 10000
	}
	l := &EventLog{max: max, sink: sink}
	if sink != nil {
		l.sinkCh = make(chan Event, sinkBuffer)
		go l.drainSink()
	}
	return l
}

func (l *EventLog) drainSink() {
	for event := range l.sinkCh {
		if err := l.sink.Publish(event); err != nil {
			slog.Debug("Event sink publish failed", "eventType", event.Type, "error", err)
		}
	}
}

// Record appends the event, evicting the oldest entries past capacity, and
// queues it for the sink. A full sink buffer drops the event for the sink
// only; the in-memory log always retains it.
func (l *EventLog) Record(event Event, now time.Time) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	if len(l.events) > l.max {
		over := len(l.events) - l.max
		l.events = append(l.events[:0:0], l.events[over:]...)
	}
	l.mu.Unlock()

	if l.sinkCh != nil {
		select {
		case l.sinkCh <- event:
		default:
			slog.Debug("Event sink buffer full, dropping event", "eventType", event.Type)
		}
	}
}

// Recent returns up to limit of the newest events, oldest first.
func (l *EventLog) Recent(limit int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if limit <= 0 || limit > len(l.events) {
		limit = len(l.events)
	}
	out := make([]Event, limit)
	copy(out, l.events[len(l.events)-limit:])
	return out
}

func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
