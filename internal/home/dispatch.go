package home

import (
	"errors"
	"fmt"
	"time"

	"home-hub/internal/metrics"
)

// Actions understood by the dispatcher. Which ones apply depends on the kind.
const (
	ActionOn     = "on"
	ActionOff    = "off"
	ActionAuto   = "auto"
	ActionLock   = "lock"
	ActionUnlock = "unlock"
	ActionStart  = "start"
	ActionStop   = "stop"
)

// Params are the optional action arguments. Nil fields are absent.
type Params struct {
	Brightness *int     `json:"brightness,omitempty"`
	TargetTemp *float64 `json:"targetTemp,omitempty"`
	Mode       *string  `json:"mode,omitempty"`
	Volume     *float64 `json:"volume,omitempty"`
	Input      *string  `json:"input,omitempty"`
	Course     string   `json:"course,omitempty"`
}

type timerOp int

const (
	timerNone timerOp = iota
	timerArm
	timerCancel
)

// timerEffect is the appliance timer change a transition asks for. It is
// carried out only after the document has been saved.
type timerEffect struct {
	op      timerOp
	minutes int
}

// Apply runs action on the device of the given kind in room, persists the
// room-set and returns the updated device.
func (h *Hub) Apply(room, kind, action string, p Params) (Device, error) {
	_, dev, err := h.apply(kind, action, p, func(Rooms) (string, error) {
		return room, nil
	})
	return dev, err
}

// ApplyAnywhere runs action on the first device of kind found when rooms are
// visited in name order. It returns the room the device was found in.
func (h *Hub) ApplyAnywhere(kind, action string, p Params) (string, Device, error) {
	return h.apply(kind, action, p, func(rooms Rooms) (string, error) {
		for _, name := range rooms.Names() {
			if _, ok := rooms[name][kind]; ok {
				return name, nil
			}
		}
		return "", fmt.Errorf("device %q: %w", kind, ErrDeviceNotFound)
	})
}

func (h *Hub) apply(kind, action string, p Params, locate func(Rooms) (string, error)) (string, Device, error) {
	h.mu.Lock()
	room, dev, err := h.applyLocked(kind, action, p, locate)
	h.mu.Unlock()

	metrics.DeviceAction(kind, action, err, errors.Is(err, ErrNotFound))
	if err != nil {
		return "", nil, err
	}

	h.logger.Debug("device action applied", "room", room, "kind", kind, "action", action, "status", dev.State())
	h.events.Emit(Event{Type: EventDeviceUpdated, Data: deviceEvent(room, dev)})
	return room, dev, nil
}

func (h *Hub) applyLocked(kind, action string, p Params, locate func(Rooms) (string, error)) (string, Device, error) {
	doc, err := h.loadRooms()
	if err != nil {
		return "", nil, err
	}
	room, err := locate(doc.Rooms)
	if err != nil {
		return "", nil, err
	}
	r, ok := doc.Rooms[room]
	if !ok {
		return "", nil, fmt.Errorf("room %q: %w", room, ErrRoomNotFound)
	}
	dev, ok := r[kind]
	if !ok {
		return "", nil, fmt.Errorf("device %q in room %q: %w", kind, room, ErrDeviceNotFound)
	}

	effect := transition(dev, action, p, h.clock.Now())
	if err := h.saveRooms(doc); err != nil {
		return "", nil, err
	}

	switch effect.op {
	case timerArm:
		h.timers.arm(room, kind, effect.minutes)
	case timerCancel:
		h.timers.cancel(room, kind)
	}
	return room, dev, nil
}

// transition mutates dev in place. Actions a kind does not understand leave
// it unchanged.
func transition(dev Device, action string, p Params, now time.Time) timerEffect {
	switch d := dev.(type) {
	case *Light:
		d.apply(action, p)
	case *Aircon:
		d.apply(action, p)
	case *TV:
		d.apply(action, p)
	case *Fan:
		applyOnOff(d, action)
	case *AirPurifier:
		switch action {
		case ActionOn, ActionOff, ActionAuto:
			d.Status = action
		}
	case *DoorLock:
		switch action {
		case ActionLock:
			d.Status = StatusLocked
		case ActionUnlock:
			d.Status = StatusUnlocked
		}
	case *Vacuum:
		switch action {
		case ActionStart:
			d.Status = StatusCleaning
		case ActionStop:
			d.Status = StatusIdle
			t := now.UTC()
			d.LastCleaned = &t
		}
	case *Appliance:
		return d.apply(action, p)
	case *Generic:
		applyOnOff(d, action)
	}
	return timerEffect{}
}

func applyOnOff(dev Device, action string) {
	if action == ActionOn || action == ActionOff {
		dev.setState(action)
	}
}

func (l *Light) apply(action string, p Params) {
	switch action {
	case ActionOn:
		l.Status = StatusOn
		if l.Brightness <= 0 {
			l.Brightness = DefaultBrightness
		}
	case ActionOff:
		l.Status = StatusOff
		l.Brightness = 0
	}
	if p.Brightness != nil && l.Status == StatusOn {
		l.Brightness = clampBrightness(*p.Brightness)
	}
}

func clampBrightness(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func (a *Aircon) apply(action string, p Params) {
	applyOnOff(a, action)
	if p.TargetTemp != nil {
		a.TargetTemp = *p.TargetTemp
	}
	if p.Mode != nil {
		a.Mode = *p.Mode
	}
}

func (t *TV) apply(action string, p Params) {
	applyOnOff(t, action)
	if p.Volume != nil {
		t.Volume = *p.Volume
	}
	if p.Input != nil {
		t.Input = *p.Input
	}
}

func (a *Appliance) apply(action string, p Params) timerEffect {
	switch action {
	case ActionStart:
		course, minutes := CourseMinutes(a.kind, p.Course)
		a.Status = StatusRunning
		a.Course = &course
		a.RemainingMin = minutes
		return timerEffect{op: timerArm, minutes: minutes}
	case ActionStop:
		a.Status = StatusIdle
		a.Course = nil
		a.RemainingMin = 0
		return timerEffect{op: timerCancel}
	}
	return timerEffect{}
}
