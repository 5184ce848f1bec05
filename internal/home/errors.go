package home

import (
	"errors"
	"fmt"
)

// ErrNotFound is the root of every lookup failure. Check with errors.Is.
var ErrNotFound = errors.New("not found")

var (
	// ErrRoomNotFound is returned when a room name is not in the document.
	ErrRoomNotFound = fmt.Errorf("room %w", ErrNotFound)

	// ErrDeviceNotFound is returned when a room has no device of the requested kind.
	ErrDeviceNotFound = fmt.Errorf("device %w", ErrNotFound)

	// ErrItemNotFound is returned when a fridge item id does not exist.
	ErrItemNotFound = fmt.Errorf("item %w", ErrNotFound)

	// ErrSceneNotFound is returned for an unknown scene name.
	ErrSceneNotFound = fmt.Errorf("scene %w", ErrNotFound)
)

// ValidationError reports a missing or unusable request field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return e.Field + " is required"
}

func missing(field string) error {
	return &ValidationError{Field: field}
}
