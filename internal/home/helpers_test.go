package home

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"home-hub/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeClock fires AfterFunc callbacks only when Advance passes their due time.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	due     time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, due: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs every callback that became due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.due.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].due.Before(due[j].due) })
	for _, t := range due {
		t.f()
	}
}

// memStore is an in-memory store.Store that can be told to fail saves.
type memStore struct {
	mu       sync.Mutex
	docs     map[string][]byte
	failSave error
	saves    int
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string][]byte)}
}

func (m *memStore) Load(key string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[key]
	if !ok {
		return fmt.Errorf("load %s: %w", key, store.ErrNotFound)
	}
	return json.Unmarshal(data, v)
}

func (m *memStore) Save(key string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil {
		return m.failSave
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.docs[key] = data
	m.saves++
	return nil
}

func (m *memStore) Close() error { return nil }

var errDiskFull = errors.New("disk full")

func newTestHub(t *testing.T, doc *Document) (*Hub, *fakeClock, *memStore) {
	t.Helper()
	clock := newFakeClock()
	st := newMemStore()
	h := NewHub(st, NewEventBus(testLogger()), testLogger(), WithClock(clock))
	t.Cleanup(h.Close)
	if doc != nil {
		if _, err := h.Seed(doc); err != nil {
			t.Fatalf("Seed: %v", err)
		}
	}
	return h, clock, st
}

func device(t *testing.T, h *Hub, room, kind string) Device {
	t.Helper()
	rooms, err := h.Rooms()
	if err != nil {
		t.Fatalf("Rooms: %v", err)
	}
	dev, ok := rooms[room][kind]
	if !ok {
		t.Fatalf("no %s in %q", kind, room)
	}
	return dev
}

func intp(v int) *int { return &v }
