package home

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Device kinds.
const (
	KindLight       = "light"
	KindAircon      = "aircon"
	KindTV          = "tv"
	KindFan         = "fan"
	KindAirPurifier = "airpurifier"
	KindDoorLock    = "doorlock"
	KindVacuum      = "vacuum"
	KindWasher      = "washer"
	KindDishwasher  = "dishwasher"
)

// Device status values.
const (
	StatusOn       = "on"
	StatusOff      = "off"
	StatusAuto     = "auto"
	StatusLocked   = "locked"
	StatusUnlocked = "unlocked"
	StatusIdle     = "idle"
	StatusCleaning = "cleaning"
	StatusRunning  = "running"
	StatusDone     = "done"
)

// DefaultBrightness is used when a light is switched on with no usable brightness.
const DefaultBrightness = 80

// Device is one of the concrete device variants below. The set is closed:
// anything that is not a known kind decodes as *Generic.
type Device interface {
	Kind() string
	// Label is the user-facing name, empty when the document has none.
	Label() string
	State() string
	setState(status string)
}

// Base carries the fields every known device kind has.
type Base struct {
	Name   string `json:"name,omitempty"`
	Status string `json:"status"`
}

func (b *Base) Label() string          { return b.Name }
func (b *Base) State() string          { return b.Status }
func (b *Base) setState(status string) { b.Status = status }

// Light is a dimmable light. Brightness is 0-100 and always 0 while off.
type Light struct {
	Base
	Brightness int `json:"brightness"`
}

func (*Light) Kind() string { return KindLight }

type Aircon struct {
	Base
	TargetTemp float64 `json:"targetTemp"`
	Mode       string  `json:"mode,omitempty"`
}

func (*Aircon) Kind() string { return KindAircon }

type TV struct {
	Base
	Volume float64 `json:"volume"`
	Input  string  `json:"input,omitempty"`
}

func (*TV) Kind() string { return KindTV }

type Fan struct {
	Base
}

func (*Fan) Kind() string { return KindFan }

// AirPurifier status is on, off or auto.
type AirPurifier struct {
	Base
}

func (*AirPurifier) Kind() string { return KindAirPurifier }

// DoorLock status is locked or unlocked.
type DoorLock struct {
	Base
}

func (*DoorLock) Kind() string { return KindDoorLock }

// Vacuum status is idle or cleaning.
type Vacuum struct {
	Base
	LastCleaned *time.Time `json:"lastCleaned,omitempty"`
}

func (*Vacuum) Kind() string { return KindVacuum }

// Appliance is a washer or dishwasher. RemainingMin is nonzero only while
// Status is running.
type Appliance struct {
	kind string
	Base
	Course       *string `json:"course"`
	RemainingMin int     `json:"remainingMin"`
}

func (a *Appliance) Kind() string { return a.kind }

// Generic holds a device of an unrecognized kind, keeping every field as stored.
type Generic struct {
	kind   string
	Fields map[string]any
}

func (g *Generic) Kind() string { return g.kind }

func (g *Generic) Label() string {
	s, _ := g.Fields["name"].(string)
	return s
}

func (g *Generic) State() string {
	s, _ := g.Fields["status"].(string)
	return s
}

func (g *Generic) setState(status string) {
	if g.Fields == nil {
		g.Fields = make(map[string]any)
	}
	g.Fields["status"] = status
}

func (g *Generic) MarshalJSON() ([]byte, error) {
	if g.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(g.Fields)
}

func (g *Generic) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &g.Fields)
}

// newDevice returns an empty variant for kind.
func newDevice(kind string) Device {
	switch kind {
	case KindLight:
		return &Light{}
	case KindAircon:
		return &Aircon{}
	case KindTV:
		return &TV{}
	case KindFan:
		return &Fan{}
	case KindAirPurifier:
		return &AirPurifier{}
	case KindDoorLock:
		return &DoorLock{}
	case KindVacuum:
		return &Vacuum{}
	case KindWasher, KindDishwasher:
		return &Appliance{kind: kind}
	default:
		return &Generic{kind: kind}
	}
}

// DisplayName returns the device label, or its kind when unnamed.
func DisplayName(dev Device) string {
	if name := dev.Label(); name != "" {
		return name
	}
	return dev.Kind()
}

// Fields flattens a device into a plain map, as it appears in the document.
func Fields(dev Device) map[string]any {
	data, err := json.Marshal(dev)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

// Room maps device kind to device.
type Room map[string]Device

func (r *Room) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	room := make(Room, len(raw))
	for kind, msg := range raw {
		if string(msg) == "null" {
			continue
		}
		dev := newDevice(kind)
		if err := json.Unmarshal(msg, dev); err != nil {
			return fmt.Errorf("device %q: %w", kind, err)
		}
		room[kind] = dev
	}
	*r = room
	return nil
}

// Rooms maps room name to room.
type Rooms map[string]Room

// Names returns the room names in sorted order.
func (rs Rooms) Names() []string {
	names := make([]string, 0, len(rs))
	for name := range rs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Document is the persisted room-set.
type Document struct {
	Rooms Rooms `json:"rooms"`
}
