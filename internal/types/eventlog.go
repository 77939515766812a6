package types

import (
	"sync"
	"time"
)

// LogEntry is one human-readable event of a session.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// EventLog is an append-only, ordered list of log entries. Readers always
// get copies.
type EventLog struct {
	mu      sync.RWMutex
	entries []LogEntry
	now     func() time.Time
}

// NewEventLog creates an empty log.
func NewEventLog() *EventLog {
	return &EventLog{now: time.Now}
}

// Append adds a message and returns the stored entry.
func (l *EventLog) Append(message string) LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	entry := LogEntry{Time: now(), Message: message}
	l.entries = append(l.entries, entry)
	return entry
}

// Entries returns a copy of all entries in order.
func (l *EventLog) Entries() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Messages returns the messages in order.
func (l *EventLog) Messages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Message
	}
	return out
}

// Len returns the number of entries.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
