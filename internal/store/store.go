package store

import "errors"

// ErrNotFound is returned when a requested key has never been written.
var ErrNotFound = errors.New("not found")

// Well-known document keys.
const (
	KeyRooms  = "appliances"
	KeyFridge = "fridge"
)

// Store persists whole JSON documents by key. Every Save fully replaces the
// previous document and is durable before it returns.
type Store interface {
	// Load decodes the document stored at key into v.
	// Returns ErrNotFound if the key is unset.
	Load(key string, v any) error
	Save(key string, v any) error
	Close() error
}
