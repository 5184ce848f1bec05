//go:build !no_automation

package automation

import (
	"time"

	"home-hub/internal/home"

	lua "github.com/yuin/gopher-lua"
)

// registerHomeModule registers the `home` global table in a Lua state.
func registerHomeModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()

	fns := map[string]lua.LGFunction{
		"on":      func(L *lua.LState) int { return homeOn(L, vm) },
		"apply":   func(L *lua.LState) int { return homeApply(L, e) },
		"scene":   func(L *lua.LState) int { return homeScene(L, e) },
		"notify":  func(L *lua.LState) int { return homeNotify(L, e) },
		"display": func(L *lua.LState) int { return homeDisplay(L, e) },
		"rooms":   func(L *lua.LState) int { return homeRooms(L, e) },
		"device":  func(L *lua.LState) int { return homeDevice(L, e) },
		"after":   func(L *lua.LState) int { return homeAfter(L, vm, e) },
		"log":     func(L *lua.LState) int { return homeLog(L, vm, e) },
	}
	for name, fn := range fns {
		mod.RawSetString(name, L.NewFunction(fn))
	}

	L.SetGlobal("home", mod)
}

// home.on(type, [filter], callback)
func homeOn(L *lua.LState, vm *scriptVM) int {
	eventType := L.CheckString(1)

	h := luaEventHandler{eventType: eventType}
	if L.GetTop() >= 3 {
		filter := L.CheckTable(2)
		h.fn = L.CheckFunction(3)
		if v := filter.RawGetString("room"); v != lua.LNil {
			h.room = v.String()
		}
		if v := filter.RawGetString("kind"); v != lua.LNil {
			h.kind = v.String()
		}
	} else {
		h.fn = L.CheckFunction(2)
	}

	if err := vm.addHandler(h); err != nil {
		L.RaiseError("%s", err.Error())
	}
	return 0
}

// home.apply(room, kind, action, [params]) -> status | nil, err
func homeApply(L *lua.LState, e *Engine) int {
	room := L.CheckString(1)
	kind := L.CheckString(2)
	action := L.CheckString(3)
	p := paramsFromTable(L.OptTable(4, nil))

	dev, err := e.hub.Apply(room, kind, action, p)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LString(dev.State()))
	return 1
}

func paramsFromTable(t *lua.LTable) home.Params {
	var p home.Params
	if t == nil {
		return p
	}
	if v, ok := t.RawGetString("brightness").(lua.LNumber); ok {
		b := int(v)
		p.Brightness = &b
	}
	if v, ok := t.RawGetString("targetTemp").(lua.LNumber); ok {
		f := float64(v)
		p.TargetTemp = &f
	}
	if v, ok := t.RawGetString("volume").(lua.LNumber); ok {
		f := float64(v)
		p.Volume = &f
	}
	if v, ok := t.RawGetString("mode").(lua.LString); ok {
		s := string(v)
		p.Mode = &s
	}
	if v, ok := t.RawGetString("input").(lua.LString); ok {
		s := string(v)
		p.Input = &s
	}
	if v, ok := t.RawGetString("course").(lua.LString); ok {
		p.Course = string(v)
	}
	return p
}

// home.scene(name) -> message | nil, err
func homeScene(L *lua.LState, e *Engine) int {
	msg, err := e.hub.RunScene(L.CheckString(1))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LString(msg))
	return 1
}

// home.notify(message, [severity]) -> id
func homeNotify(L *lua.LState, e *Engine) int {
	n, err := e.hub.Notify(L.CheckString(1), L.OptString(2, "info"))
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	L.Push(lua.LNumber(n.ID))
	return 1
}

// home.display(text, [seconds])
func homeDisplay(L *lua.LState, e *Engine) int {
	if _, err := e.hub.SetDisplayMessage(L.CheckString(1), float64(L.OptNumber(2, 0))); err != nil {
		L.ArgError(1, err.Error())
	}
	return 0
}

// home.rooms() -> {room = {kind = fields}}
func homeRooms(L *lua.LState, e *Engine) int {
	rooms, err := e.hub.Rooms()
	if err != nil {
		e.logger.Error("home.rooms", "err", err)
		L.Push(L.NewTable())
		return 1
	}
	tbl := L.NewTable()
	for name, room := range rooms {
		rt := L.NewTable()
		for kind, dev := range room {
			rt.RawSetString(kind, goToLua(L, home.Fields(dev)))
		}
		tbl.RawSetString(name, rt)
	}
	L.Push(tbl)
	return 1
}

// home.device(room, kind) -> fields | nil
func homeDevice(L *lua.LState, e *Engine) int {
	room := L.CheckString(1)
	kind := L.CheckString(2)
	rooms, err := e.hub.Rooms()
	if err != nil {
		L.Push(lua.LNil)
		return 1
	}
	dev, ok := rooms[room][kind]
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(goToLua(L, home.Fields(dev)))
	return 1
}

// home.log(msg)
func homeLog(L *lua.LState, vm *scriptVM, e *Engine) int {
	msg := L.CheckString(1)
	if vm.capture != nil {
		vm.capture(msg)
	}
	e.logger.Info("script log", "msg", msg)
	return 0
}

// home.after(seconds, callback): delayed execution on the script's VM
func homeAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckNumber(1)
	fn := L.CheckFunction(2)

	go func() {
		timer := time.NewTimer(time.Duration(float64(seconds) * float64(time.Second)))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		ok := vm.enqueue(func(L *lua.LState) {
			if err := vm.call(L, fn); err != nil {
				e.logger.Error("after callback error", "script", vm.id, "err", err)
			}
		})
		if !ok {
			e.logger.Warn("after callback dropped", "script", vm.id)
		}
	}()

	return 0
}
