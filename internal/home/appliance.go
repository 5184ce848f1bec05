package home

import (
	"fmt"
	"sort"
	"time"

	"home-hub/internal/metrics"
	"home-hub/internal/notify"
)

type courseTable struct {
	fallback string
	minutes  map[string]int
}

// courses lists the display minutes of each washer and dishwasher course.
var courses = map[string]courseTable{
	KindWasher: {
		fallback: "표준",
		minutes:  map[string]int{"표준": 40, "급속": 20, "울": 50},
	},
	KindDishwasher: {
		fallback: "표준",
		minutes:  map[string]int{"표준": 60, "강력": 90},
	},
}

// CourseMinutes resolves a course name for kind, returning the course that
// will actually run and its display minutes. Unknown or empty names run the
// kind's default course.
func CourseMinutes(kind, course string) (string, int) {
	tbl, ok := courses[kind]
	if !ok {
		return course, 0
	}
	if m, ok := tbl.minutes[course]; ok {
		return course, m
	}
	return tbl.fallback, tbl.minutes[tbl.fallback]
}

// CycleDelay converts display minutes to real time at the given acceleration.
func CycleDelay(displayMin, accel int) time.Duration {
	if accel < 1 {
		accel = 1
	}
	return time.Duration(displayMin) * time.Minute / time.Duration(accel)
}

type cycleKey struct {
	room string
	kind string
}

type cycleJob struct {
	id    uint64
	timer Timer
	due   time.Time
}

// cycleTimers is the live-job table: at most one pending completion per
// (room, kind). It is guarded by Hub.mu.
type cycleTimers struct {
	clock  Clock
	accel  int
	jobs   map[cycleKey]*cycleJob
	nextID uint64
	fire   func(key cycleKey, id uint64)
}

func newCycleTimers(clock Clock, accel int, fire func(cycleKey, uint64)) *cycleTimers {
	return &cycleTimers{
		clock: clock,
		accel: accel,
		jobs:  make(map[cycleKey]*cycleJob),
		fire:  fire,
	}
}

// arm replaces any job at (room, kind) with a new one that completes after
// displayMin accelerated minutes.
func (t *cycleTimers) arm(room, kind string, displayMin int) {
	key := cycleKey{room: room, kind: kind}
	t.cancel(room, kind)

	t.nextID++
	id := t.nextID
	delay := CycleDelay(displayMin, t.accel)
	job := &cycleJob{id: id, due: t.clock.Now().Add(delay)}
	job.timer = t.clock.AfterFunc(delay, func() { t.fire(key, id) })
	t.jobs[key] = job

	metrics.CycleEvent(kind, "started")
	metrics.SetActiveCycles(len(t.jobs))
}

// cancel drops the job at (room, kind). Its callback may still be scheduled
// but will fail claim and do nothing.
func (t *cycleTimers) cancel(room, kind string) bool {
	key := cycleKey{room: room, kind: kind}
	job, ok := t.jobs[key]
	if !ok {
		return false
	}
	job.timer.Stop()
	delete(t.jobs, key)

	metrics.CycleEvent(kind, "canceled")
	metrics.SetActiveCycles(len(t.jobs))
	return true
}

func (t *cycleTimers) cancelAll() {
	for key, job := range t.jobs {
		job.timer.Stop()
		delete(t.jobs, key)
	}
	metrics.SetActiveCycles(0)
}

// claim removes and reports whether id is still the live job for key.
func (t *cycleTimers) claim(key cycleKey, id uint64) bool {
	job, ok := t.jobs[key]
	if !ok || job.id != id {
		return false
	}
	delete(t.jobs, key)
	metrics.SetActiveCycles(len(t.jobs))
	return true
}

// PendingCycle describes an armed appliance cycle.
type PendingCycle struct {
	Room string    `json:"room"`
	Kind string    `json:"kind"`
	Due  time.Time `json:"due"`
}

// PendingCycles lists the armed cycles ordered by due time.
func (h *Hub) PendingCycles() []PendingCycle {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]PendingCycle, 0, len(h.timers.jobs))
	for key, job := range h.timers.jobs {
		out = append(out, PendingCycle{Room: key.room, Kind: key.kind, Due: job.due})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Due.Before(out[j].Due) })
	return out
}

// ResumeCycles re-arms a job for every appliance the document still shows
// as running, using its remaining minutes. It returns how many were armed.
func (h *Hub) ResumeCycles() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	doc, err := h.loadRooms()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, room := range doc.Rooms.Names() {
		for kind, dev := range doc.Rooms[room] {
			a, ok := dev.(*Appliance)
			if !ok || a.Status != StatusRunning || a.RemainingMin <= 0 {
				continue
			}
			h.timers.arm(room, kind, a.RemainingMin)
			n++
		}
	}
	if n > 0 {
		h.logger.Info("appliance cycles resumed", "count", n)
	}
	return n, nil
}

// completeCycle is the timer callback for job id at key.
func (h *Hub) completeCycle(key cycleKey, id uint64) {
	h.mu.Lock()
	if !h.timers.claim(key, id) {
		h.mu.Unlock()
		return
	}
	dev, err := h.finishCycleLocked(key)
	h.mu.Unlock()

	if err != nil {
		h.logger.Error("complete appliance cycle", "room", key.room, "kind", key.kind, "err", err)
		return
	}
	if dev == nil {
		h.logger.Debug("appliance cycle target gone", "room", key.room, "kind", key.kind)
		return
	}

	metrics.CycleEvent(key.kind, "completed")
	h.logger.Info("appliance cycle complete", "room", key.room, "kind", key.kind)
	h.notify(fmt.Sprintf("%s cycle complete", DisplayName(dev)), notify.SeveritySuccess)
	h.events.Emit(Event{Type: EventCycleComplete, Data: deviceEvent(key.room, dev)})
}

// finishCycleLocked reloads the document and marks the appliance done.
// A nil device means the target no longer exists.
func (h *Hub) finishCycleLocked(key cycleKey) (Device, error) {
	doc, err := h.loadRooms()
	if err != nil {
		return nil, err
	}
	a, ok := doc.Rooms[key.room][key.kind].(*Appliance)
	if !ok {
		return nil, nil
	}
	a.Status = StatusDone
	a.RemainingMin = 0
	if err := h.saveRooms(doc); err != nil {
		return nil, err
	}
	return a, nil
}
