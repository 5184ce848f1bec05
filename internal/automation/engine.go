//go:build !no_automation

package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"home-hub/internal/home"

	lua "github.com/yuin/gopher-lua"
)

// runTimeout bounds a one-shot RunScript/RunLuaCode execution.
const runTimeout = 5 * time.Second

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// Engine keeps one VM per enabled script and feeds it hub events.
type Engine struct {
	hub       *home.Hub
	manager   *Manager
	logger    *slog.Logger
	systemCfg SystemConfig
	now       func() time.Time

	mu    sync.Mutex
	vms   map[string]*scriptVM
	unsub func()
}

// NewEngine creates an engine. Nothing runs until Start.
func NewEngine(hub *home.Hub, mgr *Manager, logger *slog.Logger, sysCfg SystemConfig) *Engine {
	return &Engine{
		hub:       hub,
		manager:   mgr,
		logger:    logger.With("component", "automation"),
		systemCfg: sysCfg,
		now:       time.Now,
		vms:       make(map[string]*scriptVM),
	}
}

// Start subscribes to hub events and starts every enabled script. A script
// that fails to load is logged and skipped.
func (e *Engine) Start() {
	e.unsub = e.hub.Events().Subscribe(e.dispatchEvent)

	scripts, err := e.manager.List()
	if err != nil {
		e.logger.Error("load scripts", "err", err)
		return
	}
	started := 0
	for _, s := range scripts {
		if !s.Meta.Enabled {
			continue
		}
		if err := e.startScript(s); err != nil {
			e.logger.Error("start script", "id", s.ID, "err", err)
			continue
		}
		started++
	}
	e.logger.Info("automation engine started", "scripts", started)
}

// Stop cancels every VM and detaches from the event bus.
func (e *Engine) Stop() {
	if e.unsub != nil {
		e.unsub()
	}
	e.mu.Lock()
	for id, vm := range e.vms {
		vm.cancel()
		delete(e.vms, id)
	}
	e.mu.Unlock()
	e.logger.Info("automation engine stopped")
}

// ReloadScript replaces id's VM with one built from the stored script. A
// disabled script is only stopped.
func (e *Engine) ReloadScript(id string) error {
	e.StopScript(id)
	s, err := e.manager.Get(id)
	if err != nil {
		return fmt.Errorf("get script: %w", err)
	}
	if !s.Meta.Enabled {
		return nil
	}
	return e.startScript(s)
}

// StopScript cancels id's VM if it has one.
func (e *Engine) StopScript(id string) {
	e.mu.Lock()
	vm, ok := e.vms[id]
	delete(e.vms, id)
	e.mu.Unlock()
	if ok {
		vm.cancel()
		e.logger.Info("script stopped", "id", id)
	}
}

// Running reports whether id has a live VM.
func (e *Engine) Running(id string) bool {
	return e.Status(id).Running
}

// Status reports id's VM counters. A script without a VM reports zero values.
func (e *Engine) Status(id string) ScriptStatus {
	e.mu.Lock()
	vm, ok := e.vms[id]
	e.mu.Unlock()
	if !ok {
		return ScriptStatus{}
	}
	return vm.status()
}

// RunScript executes a stored script once in a temporary VM.
func (e *Engine) RunScript(id string) *RunResult {
	s, err := e.manager.Get(id)
	if err != nil {
		return &RunResult{Error: err.Error(), Duration: "0s"}
	}
	return e.RunLuaCode(s.LuaCode)
}

// RunLuaCode executes code once in a temporary VM bounded by runTimeout.
// Handlers registered with home.on are then called with a synthetic event
// of their type so the scene's actions happen immediately.
func (e *Engine) RunLuaCode(code string) *RunResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	res := &RunResult{Logs: []string{}}
	var logMu sync.Mutex
	vm := e.newVM(ctx, "_inline", func(msg string) {
		logMu.Lock()
		res.Logs = append(res.Logs, msg)
		logMu.Unlock()
	})
	defer vm.cancel()
	defer vm.state.Close()

	err := vm.state.DoString(code)
	if err == nil {
		for _, h := range vm.snapshotHandlers() {
			if err = vm.call(vm.state, h.fn, syntheticEvent(vm.state, h)); err != nil {
				break
			}
		}
	}

	res.Duration = time.Since(start).String()
	if err != nil {
		res.Error = err.Error()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.Error = "timeout (" + runTimeout.String() + ")"
		}
		e.logger.Warn("script run failed", "err", res.Error)
		return res
	}
	res.OK = true
	e.logger.Debug("script run complete", "logs", len(res.Logs), "duration", res.Duration)
	return res
}

func syntheticEvent(L *lua.LState, h luaEventHandler) *lua.LTable {
	ev := L.NewTable()
	ev.RawSetString("type", lua.LString(h.eventType))
	if h.room != "" {
		ev.RawSetString("room", lua.LString(h.room))
	}
	if h.kind != "" {
		ev.RawSetString("kind", lua.LString(h.kind))
	}
	return ev
}

func (e *Engine) startScript(s *Script) error {
	vm := e.newVM(context.Background(), s.ID, nil)

	// The top-level chunk registers handlers; it runs before the loop starts.
	if err := vm.state.DoString(s.LuaCode); err != nil {
		vm.cancel()
		vm.state.Close()
		return fmt.Errorf("execute script %s: %w", s.ID, err)
	}

	e.mu.Lock()
	old := e.vms[s.ID]
	e.vms[s.ID] = vm
	e.mu.Unlock()
	if old != nil {
		old.cancel()
	}

	go vm.loop()
	e.logger.Info("script started", "id", s.ID, "name", s.Meta.Name, "handlers", len(vm.snapshotHandlers()))
	return nil
}

// dispatchEvent queues matching handlers on each VM. Handlers never run on
// the emitting goroutine, so they may call back into the hub.
func (e *Engine) dispatchEvent(event home.Event) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.vms))
	for id := range e.vms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	vms := make([]*scriptVM, len(ids))
	for i, id := range ids {
		vms[i] = e.vms[id]
	}
	e.mu.Unlock()

	for _, vm := range vms {
		for _, h := range vm.snapshotHandlers() {
			if !matchesHandler(h, event) {
				continue
			}
			fn := h.fn
			if !vm.enqueue(func(L *lua.LState) { e.callHandler(vm, L, fn, event) }) {
				e.logger.Warn("script event dropped", "script", vm.id, "type", event.Type)
			}
		}
	}
}

func matchesHandler(h luaEventHandler, event home.Event) bool {
	if h.eventType != event.Type {
		return false
	}
	data, ok := event.Data.(map[string]interface{})
	if !ok {
		return h.room == "" && h.kind == ""
	}
	room, _ := data["room"].(string)
	kind, _ := data["kind"].(string)
	return (h.room == "" || h.room == room) && (h.kind == "" || h.kind == kind)
}

func (e *Engine) callHandler(vm *scriptVM, L *lua.LState, fn *lua.LFunction, event home.Event) {
	fields := eventFields(event.Data)
	ev := L.NewTable()
	for k, v := range fields {
		ev.RawSetString(k, goToLua(L, v))
	}
	// Notifications carry their severity as "type"; the event type wins.
	if sev, ok := fields["type"]; ok {
		ev.RawSetString("severity", goToLua(L, sev))
	}
	ev.RawSetString("type", lua.LString(event.Type))
	ev.RawSetString("seq", lua.LNumber(event.Seq))

	if err := vm.call(L, fn, ev); err != nil {
		e.logger.Error("lua handler error", "script", vm.id, "type", event.Type, "err", err)
	}
}
