package home

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Event types
const (
	EventDeviceUpdated  = "device_updated"
	EventSceneApplied   = "scene_applied"
	EventCycleComplete  = "cycle_complete"
	EventNotification   = "notification"
	EventDisplayMessage = "display_message"
	EventFridgeUpdated  = "fridge_updated"
)

// EventTypes lists every type the hub emits.
var EventTypes = []string{
	EventDeviceUpdated,
	EventSceneApplied,
	EventCycleComplete,
	EventNotification,
	EventDisplayMessage,
	EventFridgeUpdated,
}

// Event is one state change. Seq and At are stamped by the bus.
type Event struct {
	Seq  uint64      `json:"seq"`
	Type string      `json:"type"`
	At   time.Time   `json:"at"`
	Data interface{} `json:"data"`
}

// EventHandler receives events on the emitting goroutine.
type EventHandler func(Event)

type subscription struct {
	id    uint64
	types []string // empty matches every type
	fn    EventHandler
}

func (s *subscription) matches(eventType string) bool {
	return len(s.types) == 0 || slices.Contains(s.types, eventType)
}

// EventBus fans hub events out to subscribers in subscription order.
type EventBus struct {
	mu     sync.RWMutex
	subs   []*subscription
	nextID uint64
	seq    uint64
	now    func() time.Time
	logger *slog.Logger
}

// NewEventBus creates an empty bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{now: time.Now, logger: logger}
}

// Subscribe registers fn for the given event types, or for every type when
// none are given. The returned func removes the subscription.
func (eb *EventBus) Subscribe(fn EventHandler, types ...string) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	sub := &subscription{id: eb.nextID, types: types, fn: fn}
	eb.subs = append(eb.subs, sub)

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		eb.subs = slices.DeleteFunc(eb.subs, func(s *subscription) bool { return s.id == sub.id })
	}
}

// Emit stamps event and delivers it synchronously. Handlers must not block.
// A panicking handler is logged and does not stop delivery to the rest.
func (eb *EventBus) Emit(event Event) {
	eb.mu.Lock()
	eb.seq++
	event.Seq = eb.seq
	if event.At.IsZero() {
		event.At = eb.now()
	}
	targets := make([]EventHandler, 0, len(eb.subs))
	for _, s := range eb.subs {
		if s.matches(event.Type) {
			targets = append(targets, s.fn)
		}
	}
	eb.mu.Unlock()

	for _, fn := range targets {
		eb.deliver(fn, event)
	}
}

func (eb *EventBus) deliver(fn EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event handler panic", "type", event.Type, "seq", event.Seq, "panic", r)
		}
	}()
	fn(event)
}

// deviceEvent builds the payload shared by device_updated and cycle_complete.
func deviceEvent(room string, dev Device) map[string]interface{} {
	return map[string]interface{}{
		"room":   room,
		"kind":   dev.Kind(),
		"name":   DisplayName(dev),
		"device": Fields(dev),
	}
}
