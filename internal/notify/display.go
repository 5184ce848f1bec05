package notify

import (
	"math"
	"sync"
	"time"
)

// DefaultDisplaySeconds is used when a message is set without a valid duration.
const DefaultDisplaySeconds = 10

// DisplayMessage is the text currently shown on the companion screen.
type DisplayMessage struct {
	Text      string    `json:"text"`
	Duration  float64   `json:"duration"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Display holds at most one live DisplayMessage.
type Display struct {
	mu  sync.Mutex
	msg *DisplayMessage
	now func() time.Time
}

// NewDisplay creates an empty display slot. now defaults to time.Now when nil.
func NewDisplay(now func() time.Time) *Display {
	if now == nil {
		now = time.Now
	}
	return &Display{now: now}
}

// Set replaces the current message. Non-positive or non-finite durations
// fall back to DefaultDisplaySeconds.
func (d *Display) Set(text string, seconds float64) DisplayMessage {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = DefaultDisplaySeconds
	}
	msg := DisplayMessage{
		Text:      text,
		Duration:  seconds,
		ExpiresAt: d.now().Add(time.Duration(seconds * float64(time.Second))),
	}

	d.mu.Lock()
	d.msg = &msg
	d.mu.Unlock()
	return msg
}

// Get returns the current message, or false once it has expired.
func (d *Display) Get() (DisplayMessage, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.msg == nil {
		return DisplayMessage{}, false
	}
	if d.now().After(d.msg.ExpiresAt) {
		d.msg = nil
		return DisplayMessage{}, false
	}
	return *d.msg, true
}
