package home

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadSeedFile reads a room-set from a YAML file shaped like the stored
// document:
//
//	rooms:
//	  living room:
//	    light: {name: Ceiling light, status: off, brightness: 0}
func LoadSeedFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes YAML seed data into a Document. Devices are decoded by
// their kind key just as stored documents are.
func ParseSeed(data []byte) (*Document, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	js, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert seed: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(js, &doc); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if doc.Rooms == nil {
		doc.Rooms = Rooms{}
	}
	return &doc, nil
}

// DefaultDocument is the room-set used when no seed file is configured.
func DefaultDocument() *Document {
	return &Document{Rooms: Rooms{
		LivingRoom: Room{
			KindLight:       &Light{Base: Base{Name: "Living room light", Status: StatusOff}},
			KindTV:          &TV{Base: Base{Name: "TV", Status: StatusOff}, Volume: 20, Input: "HDMI1"},
			KindAircon:      &Aircon{Base: Base{Name: "Air conditioner", Status: StatusOff}, TargetTemp: 24, Mode: "cool"},
			KindAirPurifier: &AirPurifier{Base: Base{Name: "Air purifier", Status: StatusOff}},
		},
		"bedroom": Room{
			KindLight: &Light{Base: Base{Name: "Bedroom light", Status: StatusOff}},
			KindFan:   &Fan{Base: Base{Name: "Fan", Status: StatusOff}},
		},
		"kitchen": Room{
			KindLight:      &Light{Base: Base{Name: "Kitchen light", Status: StatusOff}},
			KindDishwasher: &Appliance{kind: KindDishwasher, Base: Base{Name: "Dishwasher", Status: StatusIdle}},
		},
		"utility room": Room{
			KindWasher: &Appliance{kind: KindWasher, Base: Base{Name: "Washer", Status: StatusIdle}},
			KindVacuum: &Vacuum{Base: Base{Name: "Robot vacuum", Status: StatusIdle}},
		},
		Entryway: Room{
			KindDoorLock: &DoorLock{Base: Base{Name: "Front door", Status: StatusLocked}},
		},
	}}
}
