//go:build !no_automation

package web

import (
	"net/http"
	"testing"

	"home-hub/internal/automation"
	"home-hub/internal/home"
)

func setupAutomationServer(t *testing.T) (*Server, *home.Hub, *automation.Engine) {
	t.Helper()
	mgr, err := automation.NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	var engine *automation.Engine
	srv, hub := setupTestServer(t, func(s *Server) {
		engine = automation.NewEngine(s.hub, mgr, testLogger(), automation.SystemConfig{})
		s.autoEngine = engine
		s.scriptMgr = mgr
	})
	t.Cleanup(engine.Stop)
	return srv, hub, engine
}

func TestAPIAutomationCRUD(t *testing.T) {
	srv, _, engine := setupAutomationServer(t)

	if w := do(t, srv, "POST", "/api/automations", `{"lua_code":"x = 1"}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing name: status = %d", w.Code)
	}

	w := do(t, srv, "POST", "/api/automations",
		`{"name":"Night lights","enabled":true,"lua_code":"home.on(\"scene_applied\", function(e) end)"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var created struct {
		ID      string `json:"id"`
		Running bool   `json:"running"`
	}
	decode(t, w, &created)
	if created.ID == "" || !created.Running || !engine.Running(created.ID) {
		t.Fatalf("created = %+v", created)
	}

	var list []map[string]interface{}
	decode(t, do(t, srv, "GET", "/api/automations", ""), &list)
	if len(list) != 1 {
		t.Errorf("list = %d scripts", len(list))
	}

	w = do(t, srv, "POST", "/api/automations/"+created.ID+"/toggle", "")
	var toggled struct {
		Meta struct {
			Enabled bool `json:"enabled"`
		} `json:"meta"`
		Running bool `json:"running"`
	}
	decode(t, w, &toggled)
	if toggled.Meta.Enabled || toggled.Running {
		t.Errorf("after toggle = %+v", toggled)
	}

	if w := do(t, srv, "DELETE", "/api/automations/"+created.ID, ""); w.Code != http.StatusOK {
		t.Errorf("delete: status = %d", w.Code)
	}
	if w := do(t, srv, "GET", "/api/automations/"+created.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("get deleted: status = %d", w.Code)
	}
	if w := do(t, srv, "DELETE", "/api/automations/"+created.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("delete twice: status = %d", w.Code)
	}
}

func TestAPIAutomationRunInline(t *testing.T) {
	srv, hub, _ := setupAutomationServer(t)

	w := do(t, srv, "POST", "/api/automations/_inline/run",
		`{"lua_code":"local s = home.apply(\"bedroom\", \"light\", \"on\")\nhome.log(s)"}`)
	var res automation.RunResult
	decode(t, w, &res)
	if !res.OK {
		t.Fatalf("run = %+v", res)
	}

	rooms, _ := hub.Rooms()
	if got := rooms["bedroom"][home.KindLight].State(); got != home.StatusOn {
		t.Errorf("bedroom light = %s", got)
	}
}

func TestAPIAutomationUpdateKeepsOmittedFields(t *testing.T) {
	srv, _, engine := setupAutomationServer(t)

	w := do(t, srv, "POST", "/api/automations",
		`{"name":"Laundry","description":"tell the tv","tags":["washer"],"lua_code":"home.log(\"a\")"}`)
	var created automation.Script
	decode(t, w, &created)

	w = do(t, srv, "PUT", "/api/automations/"+created.ID, `{"enabled":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}
	var updated automation.Script
	decode(t, w, &updated)
	if updated.Meta.Name != "Laundry" || updated.Meta.Description != "tell the tv" || !updated.Meta.Enabled {
		t.Errorf("meta = %+v", updated.Meta)
	}
	if len(updated.Meta.Tags) != 1 || updated.LuaCode != "home.log(\"a\")\n" {
		t.Errorf("updated = %+v", updated)
	}
	if !engine.Running(created.ID) {
		t.Error("enabled script not running")
	}

	if w := do(t, srv, "PUT", "/api/automations/"+created.ID, `{"name":""}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty name: status = %d", w.Code)
	}
	if w := do(t, srv, "PUT", "/api/automations/missing", `{}`); w.Code != http.StatusNotFound {
		t.Errorf("missing: status = %d", w.Code)
	}
	if w := do(t, srv, "GET", "/api/automations/a..b", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d", w.Code)
	}
}

func TestAPIAutomationRunSaved(t *testing.T) {
	srv, hub, _ := setupAutomationServer(t)

	w := do(t, srv, "POST", "/api/automations",
		`{"name":"Bedtime","lua_code":"home.scene(\"arrive-home\")"}`)
	var created automation.Script
	decode(t, w, &created)

	var res automation.RunResult
	decode(t, do(t, srv, "POST", "/api/automations/"+created.ID+"/run", ""), &res)
	if !res.OK {
		t.Fatalf("run = %+v", res)
	}
	rooms, _ := hub.Rooms()
	if got := rooms[home.Entryway][home.KindDoorLock].State(); got != home.StatusUnlocked {
		t.Errorf("entryway doorlock = %s", got)
	}

	if w := do(t, srv, "POST", "/api/automations/missing/run", ""); w.Code != http.StatusNotFound {
		t.Errorf("run missing: status = %d", w.Code)
	}
}

func TestAPIAutomationUnavailable(t *testing.T) {
	srv, _ := setupTestServer(t)

	var list []interface{}
	decode(t, do(t, srv, "GET", "/api/automations", ""), &list)
	if len(list) != 0 {
		t.Errorf("list = %v", list)
	}
	if w := do(t, srv, "POST", "/api/automations", `{"name":"x"}`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("create: status = %d", w.Code)
	}
	if w := do(t, srv, "POST", "/api/automations/_inline/run", `{}`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("run: status = %d", w.Code)
	}
}
