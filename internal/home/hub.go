// Package home is the authoritative model of rooms and devices: it applies
// device actions, runs the leave-home and arrive-home scenes, simulates
// washer and dishwasher cycles on an accelerated clock, and owns the
// notification buffer and display slot.
package home

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"home-hub/internal/metrics"
	"home-hub/internal/notify"
	"home-hub/internal/store"
)

// DefaultAcceleration is how many times faster than real time appliance cycles run.
const DefaultAcceleration = 10

// Option configures a Hub.
type Option func(*Hub)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(h *Hub) {
		h.clock = c
	}
}

// WithAcceleration sets the cycle acceleration factor. Values below 1 are ignored.
func WithAcceleration(factor int) Option {
	return func(h *Hub) {
		if factor >= 1 {
			h.accel = factor
		}
	}
}

// Hub is the process-wide home state. Every read-modify-write of a stored
// document happens under mu, so concurrent requests and cycle completions
// never interleave.
type Hub struct {
	store   store.Store
	events  *EventBus
	logger  *slog.Logger
	clock   Clock
	accel   int
	notes   *notify.Queue
	display *notify.Display

	mu     sync.Mutex
	timers *cycleTimers
}

// NewHub creates a hub over st. Events are emitted on events after the
// document lock is released.
func NewHub(st store.Store, events *EventBus, logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		store:  st,
		events: events,
		logger: logger.With("component", "hub"),
		clock:  realClock{},
		accel:  DefaultAcceleration,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.notes = notify.NewQueue(h.clock.Now)
	h.display = notify.NewDisplay(h.clock.Now)
	h.timers = newCycleTimers(h.clock, h.accel, h.completeCycle)
	return h
}

// Events returns the hub's event bus.
func (h *Hub) Events() *EventBus {
	return h.events
}

// Close cancels every pending appliance cycle. Cycles left running in the
// document are re-armed by ResumeCycles on the next start.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timers.cancelAll()
}

// Rooms returns a fresh copy of the room-set.
func (h *Hub) Rooms() (Rooms, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	doc, err := h.loadRooms()
	if err != nil {
		return nil, err
	}
	return doc.Rooms, nil
}

// Seed stores doc as the room-set if none has been stored yet.
// It reports whether the seed was written.
func (h *Hub) Seed(doc *Document) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var existing Document
	err := h.store.Load(store.KeyRooms, &existing)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("load rooms: %w", err)
	}
	if doc.Rooms == nil {
		doc.Rooms = Rooms{}
	}
	if err := h.saveRooms(doc); err != nil {
		return false, err
	}
	h.logger.Info("room-set seeded", "rooms", len(doc.Rooms))
	return true, nil
}

// Notify posts a notification. Unknown severities become info.
func (h *Hub) Notify(message, severity string) (notify.Notification, error) {
	if strings.TrimSpace(message) == "" {
		return notify.Notification{}, missing("message")
	}
	return h.notify(message, notify.ParseSeverity(severity)), nil
}

// Notifications drains the notification buffer.
func (h *Hub) Notifications() []notify.Notification {
	return h.notes.Drain()
}

// SetDisplayMessage replaces the companion-screen message. Non-positive
// durations fall back to notify.DefaultDisplaySeconds.
func (h *Hub) SetDisplayMessage(text string, seconds float64) (notify.DisplayMessage, error) {
	if strings.TrimSpace(text) == "" {
		return notify.DisplayMessage{}, missing("text")
	}
	msg := h.display.Set(text, seconds)
	h.events.Emit(Event{Type: EventDisplayMessage, Data: msg})
	return msg, nil
}

// DisplayMessage returns the live companion-screen message, if any.
func (h *Hub) DisplayMessage() (notify.DisplayMessage, bool) {
	return h.display.Get()
}

func (h *Hub) notify(message string, sev notify.Severity) notify.Notification {
	n := h.notes.Push(message, sev)
	metrics.Notification(string(n.Severity))
	h.events.Emit(Event{Type: EventNotification, Data: n})
	return n
}

// loadRooms reads the room-set; an unset key yields an empty document.
// Callers must hold mu.
func (h *Hub) loadRooms() (*Document, error) {
	var doc Document
	if err := h.store.Load(store.KeyRooms, &doc); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &Document{Rooms: Rooms{}}, nil
		}
		return nil, fmt.Errorf("load rooms: %w", err)
	}
	if doc.Rooms == nil {
		doc.Rooms = Rooms{}
	}
	return &doc, nil
}

// saveRooms persists the whole room-set. Callers must hold mu.
func (h *Hub) saveRooms(doc *Document) error {
	if err := h.store.Save(store.KeyRooms, doc); err != nil {
		return fmt.Errorf("save rooms: %w", err)
	}
	return nil
}
