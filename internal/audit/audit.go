// Package audit keeps a bounded in-memory record of security events.
// Events are read-only after creation and evicted by capacity; durable
// persistence is a collaborator concern, not handled here.
package audit

import (
	"sync"
	"time"
)

// EventType identifies the pipeline stage or lifecycle step that
// produced an event.
type EventType string

const (
	EventConnectionEstablished EventType = "connection_established"
	EventConnectionClosed      EventType = "connection_closed"
	EventMessageProcessed      EventType = "message_processed"
	EventMessageRejected       EventType = "message_rejected"
)

// Event is a single security audit record.
type Event struct {
	Type      EventType              `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	UserID    string                 `json:"user_id"`
	Payload   map[string]interface{} `json:"payload"`
}

// Log is a bounded append-only ring of audit events. When the cap is
// reached the oldest half is dropped, so appends stay amortized O(1).
type Log struct {
	mu     sync.RWMutex
	events []Event
	max    int
}

// NewLog creates an audit log retaining at most max events.
func NewLog(max int) *Log {
	if max < 2 {
		max = 2
	}
	return &Log{
		events: make([]Event, 0, max),
		max:    max,
	}
}

// Append records an event, evicting the oldest entries beyond capacity.
func (l *Log) Append(eventType EventType, userID string, payload map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		UserID:    userID,
		Payload:   payload,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, event)
	if len(l.events) > l.max {
		keep := l.max / 2
		l.events = append(l.events[:0:0], l.events[len(l.events)-keep:]...)
	}
}

// Recent returns up to limit most recent events, newest last.
func (l *Log) Recent(limit int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.events) {
		limit = len(l.events)
	}
	out := make([]Event, limit)
	copy(out, l.events[len(l.events)-limit:])
	return out
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// CountSince counts retained events newer than the given age.
func (l *Log) CountSince(age time.Duration) int {
	cutoff := time.Now().Add(-age)

	l.mu.RLock()
	defer l.mu.RUnlock()

	count := 0
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Timestamp.Before(cutoff) {
			break
		}
		count++
	}
	return count
}
