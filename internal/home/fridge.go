package home

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"home-hub/internal/store"
)

// Fridge item defaults.
const (
	DefaultQuantity = "1"
	DefaultCategory = "other"
)

// FridgeItem is one inventory entry.
type FridgeItem struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Quantity string  `json:"quantity"`
	Expiry   *string `json:"expiry"`
	Category string  `json:"category"`
}

// Fridge is the stored inventory document.
type Fridge struct {
	Items       []FridgeItem `json:"items"`
	LastUpdated *time.Time   `json:"lastUpdated,omitempty"`
}

// NewFridgeItem is the input to AddFridgeItem. Empty optional fields take
// their defaults.
type NewFridgeItem struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Expiry   string `json:"expiry"`
	Category string `json:"category"`
}

// Fridge returns the inventory document.
func (h *Hub) Fridge() (*Fridge, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loadFridge()
}

// AddFridgeItem appends an item with id one above the largest existing id.
func (h *Hub) AddFridgeItem(in NewFridgeItem) (FridgeItem, error) {
	if strings.TrimSpace(in.Name) == "" {
		return FridgeItem{}, missing("name")
	}
	item := FridgeItem{
		Name:     in.Name,
		Quantity: in.Quantity,
		Category: in.Category,
	}
	if item.Quantity == "" {
		item.Quantity = DefaultQuantity
	}
	if item.Category == "" {
		item.Category = DefaultCategory
	}
	if in.Expiry != "" {
		exp := in.Expiry
		item.Expiry = &exp
	}

	h.mu.Lock()
	err := h.updateFridgeLocked(func(f *Fridge) error {
		var maxID int64
		for _, it := range f.Items {
			if it.ID > maxID {
				maxID = it.ID
			}
		}
		item.ID = maxID + 1
		f.Items = append(f.Items, item)
		return nil
	})
	h.mu.Unlock()
	if err != nil {
		return FridgeItem{}, err
	}

	h.logger.Debug("fridge item added", "id", item.ID, "name", item.Name)
	h.events.Emit(Event{Type: EventFridgeUpdated, Data: map[string]interface{}{"added": item}})
	return item, nil
}

// RemoveFridgeItem deletes the item with the given id.
func (h *Hub) RemoveFridgeItem(id int64) error {
	h.mu.Lock()
	err := h.updateFridgeLocked(func(f *Fridge) error {
		for i, it := range f.Items {
			if it.ID == id {
				f.Items = append(f.Items[:i], f.Items[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("item %d: %w", id, ErrItemNotFound)
	})
	h.mu.Unlock()
	if err != nil {
		return err
	}

	h.logger.Debug("fridge item removed", "id", id)
	h.events.Emit(Event{Type: EventFridgeUpdated, Data: map[string]interface{}{"removed": id}})
	return nil
}

// updateFridgeLocked loads the inventory, applies fn and saves only if fn
// succeeds. Callers must hold mu.
func (h *Hub) updateFridgeLocked(fn func(*Fridge) error) error {
	f, err := h.loadFridge()
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		return err
	}
	now := h.clock.Now().UTC()
	f.LastUpdated = &now
	if err := h.store.Save(store.KeyFridge, f); err != nil {
		return fmt.Errorf("save fridge: %w", err)
	}
	return nil
}

func (h *Hub) loadFridge() (*Fridge, error) {
	var f Fridge
	if err := h.store.Load(store.KeyFridge, &f); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load fridge: %w", err)
	}
	if f.Items == nil {
		f.Items = []FridgeItem{}
	}
	return &f, nil
}
