//go:build !no_automation

package automation

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"home-hub/internal/home"
	"home-hub/internal/notify"
	"home-hub/internal/store"

	lua "github.com/yuin/gopher-lua"
)

func newTestHub(t *testing.T) *home.Hub {
	t.Helper()
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	hub := home.NewHub(st, home.NewEventBus(testLogger()), testLogger())
	t.Cleanup(hub.Close)
	if _, err := hub.Seed(home.DefaultDocument()); err != nil {
		t.Fatal(err)
	}
	return hub
}

func newHubEngine(t *testing.T) (*Engine, *home.Hub, *Manager) {
	t.Helper()
	hub := newTestHub(t)
	mgr := newTestManager(t)
	e := NewEngine(hub, mgr, testLogger(), SystemConfig{})
	t.Cleanup(e.Stop)
	return e, hub, mgr
}

// waitForNotification drains the hub until a notification containing substr
// shows up or the deadline passes.
func waitForNotification(t *testing.T, hub *home.Hub, substr string) notify.Notification {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, n := range hub.Notifications() {
			if strings.Contains(n.Message, substr) {
				return n
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no notification containing %q", substr)
	return notify.Notification{}
}

func TestGoToLua(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tests := []struct {
		name string
		val  interface{}
		want lua.LValueType
	}{
		{"nil", nil, lua.LTNil},
		{"bool", true, lua.LTBool},
		{"string", "hello", lua.LTString},
		{"int", 42, lua.LTNumber},
		{"int64", int64(99), lua.LTNumber},
		{"uint64", uint64(7), lua.LTNumber},
		{"float64", 3.14, lua.LTNumber},
		{"map", map[string]interface{}{"a": 1}, lua.LTTable},
		{"slice", []interface{}{1, 2, 3}, lua.LTTable},
		{"struct", notify.Notification{ID: 1, Message: "hi"}, lua.LTTable},
		{"unknown", time.Second, lua.LTString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := goToLua(L, tt.val).Type(); got != tt.want {
				t.Errorf("goToLua(%v) type = %v, want %v", tt.val, got, tt.want)
			}
		})
	}
}

func TestGoToLuaNested(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	v := goToLua(L, map[string]interface{}{
		"device": map[string]interface{}{"status": "on", "brightness": 80.0},
	})
	tbl := v.(*lua.LTable)
	dev, ok := tbl.RawGetString("device").(*lua.LTable)
	if !ok {
		t.Fatal("device is not a table")
	}
	if s := dev.RawGetString("status"); s.String() != "on" {
		t.Errorf("status = %v", s)
	}
	if n, ok := dev.RawGetString("brightness").(lua.LNumber); !ok || n != 80 {
		t.Errorf("brightness = %v", dev.RawGetString("brightness"))
	}
}

func TestMatchesHandler(t *testing.T) {
	ev := home.Event{
		Type: home.EventDeviceUpdated,
		Data: map[string]interface{}{"room": "kitchen", "kind": "light"},
	}

	tests := []struct {
		name string
		h    luaEventHandler
		want bool
	}{
		{"type only", luaEventHandler{eventType: home.EventDeviceUpdated}, true},
		{"wrong type", luaEventHandler{eventType: home.EventSceneApplied}, false},
		{"room match", luaEventHandler{eventType: home.EventDeviceUpdated, room: "kitchen"}, true},
		{"room mismatch", luaEventHandler{eventType: home.EventDeviceUpdated, room: "bedroom"}, false},
		{"room and kind", luaEventHandler{eventType: home.EventDeviceUpdated, room: "kitchen", kind: "light"}, true},
		{"kind mismatch", luaEventHandler{eventType: home.EventDeviceUpdated, kind: "tv"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesHandler(tt.h, ev); got != tt.want {
				t.Errorf("matchesHandler = %v, want %v", got, tt.want)
			}
		})
	}

	// Non-map payloads only match unfiltered handlers.
	note := home.Event{Type: home.EventNotification, Data: notify.Notification{ID: 1}}
	if !matchesHandler(luaEventHandler{eventType: home.EventNotification}, note) {
		t.Error("unfiltered handler should match struct payload")
	}
	if matchesHandler(luaEventHandler{eventType: home.EventNotification, room: "x"}, note) {
		t.Error("filtered handler matched struct payload")
	}
}

func TestRunLuaCodeAppliesDevices(t *testing.T) {
	e, hub, _ := newHubEngine(t)

	res := e.RunLuaCode(`
local status = home.apply("living room", "light", "on", {brightness = 30})
home.log("light " .. status)
local _, err = home.apply("garage", "light", "on")
home.log(err)
home.notify("movie night", "success")
`)
	if !res.OK {
		t.Fatalf("run failed: %s", res.Error)
	}
	if len(res.Logs) != 2 || res.Logs[0] != "light on" || !strings.Contains(res.Logs[1], "not found") {
		t.Errorf("logs = %v", res.Logs)
	}

	rooms, _ := hub.Rooms()
	l := rooms[home.LivingRoom][home.KindLight].(*home.Light)
	if l.Status != home.StatusOn || l.Brightness != 30 {
		t.Errorf("light = %s/%d", l.Status, l.Brightness)
	}
	notes := hub.Notifications()
	if len(notes) != 1 || notes[0].Severity != notify.SeveritySuccess {
		t.Errorf("notifications = %+v", notes)
	}
}

func TestRunLuaCodeSceneAndRooms(t *testing.T) {
	e, hub, _ := newHubEngine(t)

	res := e.RunLuaCode(`
home.scene("arrive-home")
local rooms = home.rooms()
home.log(rooms["entryway"]["doorlock"].status)
local dev = home.device("living room", "airpurifier")
home.log(dev.status)
if home.device("attic", "light") == nil then home.log("no attic") end
`)
	if !res.OK {
		t.Fatalf("run failed: %s", res.Error)
	}
	want := []string{"unlocked", "auto", "no attic"}
	if strings.Join(res.Logs, ",") != strings.Join(want, ",") {
		t.Errorf("logs = %v, want %v", res.Logs, want)
	}
	if msg, ok := hub.DisplayMessage(); ok {
		t.Errorf("unexpected display message %+v", msg)
	}
}

func TestRunLuaCodeInvokesHandlers(t *testing.T) {
	e, hub, _ := newHubEngine(t)

	res := e.RunLuaCode(`
home.on("scene_applied", function(event)
  home.display("scene: " .. event.type, 5)
end)
`)
	if !res.OK {
		t.Fatalf("run failed: %s", res.Error)
	}
	msg, ok := hub.DisplayMessage()
	if !ok || msg.Text != "scene: scene_applied" {
		t.Errorf("display = %+v, %v", msg, ok)
	}
}

func TestRunLuaCodeSandbox(t *testing.T) {
	e, _, _ := newHubEngine(t)

	for _, code := range []string{`os.exit(1)`, `io.open("/etc/passwd")`, `require("x")`} {
		if res := e.RunLuaCode(code); res.OK {
			t.Errorf("%s succeeded in sandbox", code)
		}
	}
}

func TestRunLuaCodeTimeout(t *testing.T) {
	e, _, _ := newHubEngine(t)

	res := e.RunLuaCode(`while true do end`)
	if res.OK || !strings.Contains(res.Error, "timeout") {
		t.Errorf("result = %+v, want timeout", res)
	}
}

func TestRunScriptNotFound(t *testing.T) {
	e, _, _ := newHubEngine(t)
	if res := e.RunScript("missing"); res.OK {
		t.Error("missing script ran")
	}
}

func TestEngineDispatchesHubEvents(t *testing.T) {
	e, hub, mgr := newHubEngine(t)

	_, err := mgr.Save(&Script{
		Meta: ScriptMeta{Name: "Kitchen watch", Enabled: true},
		LuaCode: `
home.on("device_updated", {room = "kitchen", kind = "light"}, function(event)
  home.notify("kitchen light " .. event.device.status, "info")
end)
`,
	})
	if err != nil {
		t.Fatal(err)
	}
	e.Start()
	if !e.Running("kitchen_watch") {
		t.Fatal("script not running")
	}

	// A device in another room must not trigger the handler.
	if _, err := hub.Apply("bedroom", home.KindLight, home.ActionOn, home.Params{}); err != nil {
		t.Fatal(err)
	}
	if _, err := hub.Apply("kitchen", home.KindLight, home.ActionOn, home.Params{}); err != nil {
		t.Fatal(err)
	}
	waitForNotification(t, hub, "kitchen light on")
}

func TestEngineReloadAndStop(t *testing.T) {
	e, _, mgr := newHubEngine(t)

	s, err := mgr.Save(&Script{Meta: ScriptMeta{Name: "Idle"}, LuaCode: `home.log("x")`})
	if err != nil {
		t.Fatal(err)
	}
	e.Start()
	if e.Running(s.ID) {
		t.Fatal("disabled script started")
	}

	s.Meta.Enabled = true
	if _, err := mgr.Save(s); err != nil {
		t.Fatal(err)
	}
	if err := e.ReloadScript(s.ID); err != nil {
		t.Fatal(err)
	}
	if !e.Running(s.ID) {
		t.Fatal("enabled script not running after reload")
	}

	e.StopScript(s.ID)
	if e.Running(s.ID) {
		t.Error("script still running after stop")
	}
}

func TestEngineRejectsBrokenScript(t *testing.T) {
	e, _, mgr := newHubEngine(t)

	s, err := mgr.Save(&Script{Meta: ScriptMeta{Name: "Broken", Enabled: true}, LuaCode: `home.on(`})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.ReloadScript(s.ID); err == nil {
		t.Error("broken script loaded")
	}
	if e.Running(s.ID) {
		t.Error("broken script running")
	}
}

func TestEngineStatusTracksHandlerErrors(t *testing.T) {
	e, hub, mgr := newHubEngine(t)

	s, err := mgr.Save(&Script{
		Meta: ScriptMeta{Name: "Fragile", Enabled: true},
		LuaCode: `
home.on("notification", function(event)
  error("cannot handle " .. event.message .. " (" .. event.severity .. ", " .. event.type .. ")")
end)
`,
	})
	if err != nil {
		t.Fatal(err)
	}
	e.Start()

	if st := e.Status(s.ID); !st.Running || st.Handlers != 1 || st.Events != 0 {
		t.Fatalf("status before = %+v", st)
	}
	if _, err := hub.Notify("filter dirty", "warning"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for e.Status(s.ID).Events == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	st := e.Status(s.ID)
	if st.Events != 1 || !strings.Contains(st.LastError, "cannot handle filter dirty (warning, notification)") {
		t.Errorf("status after = %+v", st)
	}

	if st := e.Status("missing"); st != (ScriptStatus{}) {
		t.Errorf("missing status = %+v", st)
	}
}
