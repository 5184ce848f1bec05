//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strings"

	"home-hub/internal/home"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/light/homehub_living_room_light/light/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers   []string `json:"identifiers"`
	Manufacturer  string   `json:"manufacturer,omitempty"`
	Model         string   `json:"model,omitempty"`
	Name          string   `json:"name"`
	SuggestedArea string   `json:"suggested_area,omitempty"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	StateTopic          string   `json:"state_topic"`
	CommandTopic        string   `json:"command_topic,omitempty"`
	AvailabilityTopic   string   `json:"availability_topic"`
	ValueTemplate       string   `json:"value_template,omitempty"`
	UnitOfMeasurement   string   `json:"unit_of_measurement,omitempty"`
	DeviceClass         string   `json:"device_class,omitempty"`
	PayloadOn           string   `json:"payload_on,omitempty"`
	PayloadOff          string   `json:"payload_off,omitempty"`
	StateOn             string   `json:"state_on,omitempty"`
	StateOff            string   `json:"state_off,omitempty"`
	PayloadLock         string   `json:"payload_lock,omitempty"`
	PayloadUnlock       string   `json:"payload_unlock,omitempty"`
	StateLocked         string   `json:"state_locked,omitempty"`
	StateUnlocked       string   `json:"state_unlocked,omitempty"`
	BrightnessScale     int      `json:"brightness_scale,omitempty"`
	SupportedColorModes []string `json:"supported_color_modes,omitempty"`
	Schema              string   `json:"schema,omitempty"`
	Device              haDevice `json:"device"`
}

// topicSegment makes a room name safe for use as one MQTT topic level.
func topicSegment(name string) string {
	name = strings.ToLower(name)
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, name)
}

// roomForSegment finds the room whose topic segment is segment.
func roomForSegment(rooms home.Rooms, segment string) (string, bool) {
	for _, name := range rooms.Names() {
		if topicSegment(name) == segment {
			return name, true
		}
	}
	return "", false
}

func stateTopic(prefix, room, kind string) string {
	return prefix + "/" + topicSegment(room) + "/" + kind
}

// nodeID returns the unique identifier for the HA device registry.
func nodeID(room, kind string) string {
	return "homehub_" + topicSegment(room) + "_" + kind
}

// buildDiscovery generates HA discovery messages for one device.
func buildDiscovery(prefix, room, kind string, dev home.Device) []discoveryMsg {
	avail := prefix + "/bridge/state"
	st := stateTopic(prefix, room, kind)
	cmd := st + "/set"
	id := nodeID(room, kind)

	name := home.DisplayName(dev)
	haDev := haDevice{
		Identifiers:   []string{id},
		Manufacturer:  "home-hub",
		Model:         kind,
		Name:          room + " " + name,
		SuggestedArea: room,
	}

	base := haDiscovery{
		Name:              name,
		StateTopic:        st,
		AvailabilityTopic: avail,
		Device:            haDev,
	}

	switch kind {
	case home.KindLight:
		p := base
		p.UniqueID = id + "_light"
		p.CommandTopic = cmd
		p.Schema = "json"
		p.SupportedColorModes = []string{"brightness"}
		p.BrightnessScale = 100
		return []discoveryMsg{msg("light", id, "light", p)}

	case home.KindDoorLock:
		p := base
		p.UniqueID = id + "_lock"
		p.CommandTopic = cmd
		p.ValueTemplate = "{{ value_json.state }}"
		p.PayloadLock = "lock"
		p.PayloadUnlock = "unlock"
		p.StateLocked = "LOCKED"
		p.StateUnlocked = "UNLOCKED"
		return []discoveryMsg{msg("lock", id, "lock", p)}

	case home.KindWasher, home.KindDishwasher:
		return []discoveryMsg{
			switchMsg(base, id, cmd, home.ActionStart, home.ActionStop),
			sensorMsg(base, id, "status", "Status", "", "{{ value_json.status }}"),
			sensorMsg(base, id, "remaining", "Remaining", "min", "{{ value_json.remainingMin }}"),
		}

	case home.KindVacuum:
		return []discoveryMsg{
			switchMsg(base, id, cmd, home.ActionStart, home.ActionStop),
			sensorMsg(base, id, "status", "Status", "", "{{ value_json.status }}"),
		}

	case home.KindAircon:
		return []discoveryMsg{
			switchMsg(base, id, cmd, home.ActionOn, home.ActionOff),
			sensorMsg(base, id, "target_temp", "Target", "°C", "{{ value_json.targetTemp }}"),
		}

	default:
		return []discoveryMsg{switchMsg(base, id, cmd, home.ActionOn, home.ActionOff)}
	}
}

func msg(component, id, object string, p haDiscovery) discoveryMsg {
	topic := fmt.Sprintf("homeassistant/%s/%s/%s/config", component, id, object)
	return discoveryMsg{Topic: topic, Payload: mustJSON(p)}
}

func switchMsg(base haDiscovery, id, cmd, on, off string) discoveryMsg {
	p := base
	p.UniqueID = id + "_switch"
	p.CommandTopic = cmd
	p.ValueTemplate = "{{ value_json.state }}"
	p.PayloadOn = on
	p.PayloadOff = off
	p.StateOn = "ON"
	p.StateOff = "OFF"
	return msg("switch", id, "switch", p)
}

func sensorMsg(base haDiscovery, id, object, suffix, unit, valueTmpl string) discoveryMsg {
	p := base
	p.Name = base.Name + " " + suffix
	p.UniqueID = id + "_" + object
	p.ValueTemplate = valueTmpl
	p.UnitOfMeasurement = unit
	return msg("sensor", id, object, p)
}
