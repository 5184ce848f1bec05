package home

import (
	"errors"
	"testing"
	"time"

	"home-hub/internal/notify"
	"home-hub/internal/store"
)

func laundryRoom() *Document {
	return &Document{Rooms: Rooms{
		"utility": Room{
			KindWasher:     &Appliance{kind: KindWasher, Base: Base{Name: "Washer", Status: StatusIdle}},
			KindDishwasher: &Appliance{kind: KindDishwasher, Base: Base{Status: StatusIdle}},
		},
	}}
}

func successCount(ns []notify.Notification) int {
	n := 0
	for _, note := range ns {
		if note.Severity == notify.SeveritySuccess {
			n++
		}
	}
	return n
}

func TestCourseMinutes(t *testing.T) {
	tests := []struct {
		kind, course string
		wantCourse   string
		wantMin      int
	}{
		{KindWasher, "표준", "표준", 40},
		{KindWasher, "급속", "급속", 20},
		{KindWasher, "울", "울", 50},
		{KindWasher, "", "표준", 40},
		{KindWasher, "강력", "표준", 40},
		{KindDishwasher, "강력", "강력", 90},
		{KindDishwasher, "nonsense", "표준", 60},
	}
	for _, tt := range tests {
		course, mins := CourseMinutes(tt.kind, tt.course)
		if course != tt.wantCourse || mins != tt.wantMin {
			t.Errorf("CourseMinutes(%s, %q) = %q, %d; want %q, %d",
				tt.kind, tt.course, course, mins, tt.wantCourse, tt.wantMin)
		}
	}
}

func TestCycleDelay(t *testing.T) {
	if got := CycleDelay(20, 10); got != 2*time.Minute {
		t.Errorf("CycleDelay(20, 10) = %v", got)
	}
	if got := CycleDelay(40, 0); got != 40*time.Minute {
		t.Errorf("CycleDelay(40, 0) = %v", got)
	}
}

func TestWasherQuickCourseCompletes(t *testing.T) {
	h, clock, _ := newTestHub(t, laundryRoom())

	dev, err := h.Apply("utility", KindWasher, ActionStart, Params{Course: "급속"})
	if err != nil {
		t.Fatal(err)
	}
	w := dev.(*Appliance)
	if w.Status != StatusRunning || w.RemainingMin != 20 || w.Course == nil || *w.Course != "급속" {
		t.Fatalf("started washer = %+v", w)
	}
	if n := len(h.PendingCycles()); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}

	clock.Advance(2*time.Minute - time.Second)
	if device(t, h, "utility", KindWasher).State() != StatusRunning {
		t.Fatal("completed early")
	}

	var completions int
	h.Events().Subscribe(func(Event) { completions++ }, EventCycleComplete)
	clock.Advance(time.Second)

	w = device(t, h, "utility", KindWasher).(*Appliance)
	if w.Status != StatusDone || w.RemainingMin != 0 {
		t.Errorf("after cycle = %s/%d, want done/0", w.Status, w.RemainingMin)
	}
	notes := h.Notifications()
	if len(notes) != 1 || notes[0].Message != "Washer cycle complete" || notes[0].Severity != notify.SeveritySuccess {
		t.Errorf("notifications = %+v", notes)
	}
	if completions != 1 {
		t.Errorf("cycle_complete events = %d", completions)
	}
	if n := len(h.PendingCycles()); n != 0 {
		t.Errorf("pending after completion = %d", n)
	}
}

func TestStopCancelsCycle(t *testing.T) {
	h, clock, _ := newTestHub(t, laundryRoom())

	if _, err := h.Apply("utility", KindDishwasher, ActionStart, Params{}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(3 * time.Minute)
	dev, err := h.Apply("utility", KindDishwasher, ActionStop, Params{})
	if err != nil {
		t.Fatal(err)
	}
	d := dev.(*Appliance)
	if d.Status != StatusIdle || d.RemainingMin != 0 || d.Course != nil {
		t.Errorf("stopped = %+v", d)
	}

	clock.Advance(time.Hour)
	if got := device(t, h, "utility", KindDishwasher).State(); got != StatusIdle {
		t.Errorf("status after canceled due time = %s, want idle", got)
	}
	if n := len(h.Notifications()); n != 0 {
		t.Errorf("notifications = %d, want 0", n)
	}
}

func TestRestartReplacesJob(t *testing.T) {
	h, clock, _ := newTestHub(t, laundryRoom())

	// Quick course would finish at 2m.
	if _, err := h.Apply("utility", KindWasher, ActionStart, Params{Course: "급속"}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)
	// Standard course restarts the clock: due at 1m + 4m.
	if _, err := h.Apply("utility", KindWasher, ActionStart, Params{Course: "표준"}); err != nil {
		t.Fatal(err)
	}
	if n := len(h.PendingCycles()); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}

	clock.Advance(2 * time.Minute)
	if got := device(t, h, "utility", KindWasher).State(); got != StatusRunning {
		t.Fatalf("old job fired: status %s", got)
	}

	clock.Advance(2 * time.Minute)
	if got := device(t, h, "utility", KindWasher).State(); got != StatusDone {
		t.Fatalf("status = %s, want done", got)
	}
	if n := successCount(h.Notifications()); n != 1 {
		t.Errorf("completion notifications = %d, want 1", n)
	}
}

func TestCycleTargetRemoved(t *testing.T) {
	h, clock, st := newTestHub(t, laundryRoom())

	if _, err := h.Apply("utility", KindWasher, ActionStart, Params{}); err != nil {
		t.Fatal(err)
	}
	// Replace the document behind the hub's back.
	if err := st.Save(store.KeyRooms, &Document{Rooms: Rooms{"utility": Room{}}}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)

	if n := len(h.Notifications()); n != 0 {
		t.Errorf("notifications = %d, want 0", n)
	}
	rooms, _ := h.Rooms()
	if _, ok := rooms["utility"][KindWasher]; ok {
		t.Error("completion recreated the device")
	}
}

func TestStartSaveFailureArmsNothing(t *testing.T) {
	h, clock, st := newTestHub(t, laundryRoom())
	st.failSave = errDiskFull

	if _, err := h.Apply("utility", KindWasher, ActionStart, Params{}); !errors.Is(err, errDiskFull) {
		t.Fatalf("got %v", err)
	}
	if n := len(h.PendingCycles()); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
	st.failSave = nil
	clock.Advance(time.Hour)
	if n := len(h.Notifications()); n != 0 {
		t.Errorf("notifications = %d", n)
	}
}

func TestResumeCycles(t *testing.T) {
	course := "울"
	doc := laundryRoom()
	w := doc.Rooms["utility"][KindWasher].(*Appliance)
	w.Status = StatusRunning
	w.Course = &course
	w.RemainingMin = 30

	h, clock, _ := newTestHub(t, doc)
	n, err := h.ResumeCycles()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("resumed = %d, want 1", n)
	}

	clock.Advance(3 * time.Minute)
	if got := device(t, h, "utility", KindWasher).State(); got != StatusDone {
		t.Errorf("status = %s, want done", got)
	}
}

func TestCloseCancelsCycles(t *testing.T) {
	h, clock, _ := newTestHub(t, laundryRoom())

	if _, err := h.Apply("utility", KindWasher, ActionStart, Params{}); err != nil {
		t.Fatal(err)
	}
	h.Close()
	clock.Advance(time.Hour)
	if got := device(t, h, "utility", KindWasher).State(); got != StatusRunning {
		t.Errorf("status = %s, want running", got)
	}
}

func TestAccelerationOption(t *testing.T) {
	clock := newFakeClock()
	h := NewHub(newMemStore(), NewEventBus(testLogger()), testLogger(), WithClock(clock), WithAcceleration(60))
	t.Cleanup(h.Close)
	if _, err := h.Seed(laundryRoom()); err != nil {
		t.Fatal(err)
	}

	if _, err := h.Apply("utility", KindWasher, ActionStart, Params{Course: "급속"}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(20 * time.Second)
	if got := device(t, h, "utility", KindWasher).State(); got != StatusDone {
		t.Errorf("status = %s, want done", got)
	}
}
