// Package notify holds the transient messages shown to users: a bounded
// notification buffer drained by a single reader, and a single-slot,
// time-expiring display message for the companion screen.
package notify

import (
	"sync"
	"time"
)

// Severity of a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityAlert   Severity = "alert"
)

// MaxNotifications is the number of notifications kept before the oldest are dropped.
const MaxNotifications = 50

// ParseSeverity maps s onto a known severity, falling back to info.
func ParseSeverity(s string) Severity {
	switch sev := Severity(s); sev {
	case SeverityInfo, SeveritySuccess, SeverityWarning, SeverityAlert:
		return sev
	default:
		return SeverityInfo
	}
}

// Notification is a single transient message.
type Notification struct {
	ID       uint64    `json:"id"`
	Message  string    `json:"message"`
	Severity Severity  `json:"type"`
	Time     time.Time `json:"time"`
}

// Queue is a bounded, time-ordered notification buffer.
type Queue struct {
	mu     sync.Mutex
	items  []Notification
	nextID uint64
	now    func() time.Time
}

// NewQueue creates an empty queue. now defaults to time.Now when nil.
func NewQueue(now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{now: now}
}

// Push appends a notification, trimming the buffer to the newest MaxNotifications.
func (q *Queue) Push(message string, sev Severity) Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	n := Notification{
		ID:       q.nextID,
		Message:  message,
		Severity: ParseSeverity(string(sev)),
		Time:     q.now(),
	}
	q.items = append(q.items, n)
	if over := len(q.items) - MaxNotifications; over > 0 {
		q.items = append([]Notification(nil), q.items[over:]...)
	}
	return n
}

// Drain returns every buffered notification and empties the buffer.
// The result is never nil.
func (q *Queue) Drain() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

// Len reports how many notifications are buffered.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
