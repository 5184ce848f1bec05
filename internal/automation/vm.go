//go:build !no_automation

package automation

import (
	"context"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

const (
	vmQueueSize          = 64
	maxHandlersPerScript = 100
)

// luaEventHandler is a Lua callback registered with home.on.
type luaEventHandler struct {
	eventType string
	room      string // empty matches any room
	kind      string // empty matches any kind
	fn        *lua.LFunction
}

// ScriptStatus describes a script's VM.
type ScriptStatus struct {
	Running   bool   `json:"running"`
	Handlers  int    `json:"handlers"`
	Events    uint64 `json:"events"`
	LastError string `json:"last_error,omitempty"`
}

// scriptVM owns one Lua state. After the top-level chunk has run, the state
// is only touched by the loop goroutine, fed through queue.
type scriptVM struct {
	id      string
	state   *lua.LState
	queue   chan func(*lua.LState)
	ctx     context.Context
	cancel  context.CancelFunc
	capture func(string) // one-shot runs collect log lines here

	mu        sync.Mutex
	handlers  []luaEventHandler
	events    uint64
	lastError string
}

// newVM builds a sandboxed state with the home and system modules bound to e.
// The VM lives until ctx is done or cancel is called.
func (e *Engine) newVM(ctx context.Context, id string, capture func(string)) *scriptVM {
	ctx, cancel := context.WithCancel(ctx)
	L := newSandbox()
	L.SetContext(ctx)

	vm := &scriptVM{
		id:      id,
		state:   L,
		queue:   make(chan func(*lua.LState), vmQueueSize),
		ctx:     ctx,
		cancel:  cancel,
		capture: capture,
	}
	registerHomeModule(L, vm, e)
	registerSystemModule(L, vm, e)
	return vm
}

// newSandbox returns a Lua state without filesystem, process or loader access.
func newSandbox() *lua.LState {
	L := lua.NewState()
	for _, name := range []string{"os", "io", "loadfile", "dofile", "require", "load", "debug", "package"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func (vm *scriptVM) addHandler(h luaEventHandler) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if len(vm.handlers) >= maxHandlersPerScript {
		return fmt.Errorf("too many handlers (max %d)", maxHandlersPerScript)
	}
	vm.handlers = append(vm.handlers, h)
	return nil
}

func (vm *scriptVM) snapshotHandlers() []luaEventHandler {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return append([]luaEventHandler(nil), vm.handlers...)
}

// enqueue hands fn to the loop goroutine. It reports false when the VM has
// stopped or its queue is full.
func (vm *scriptVM) enqueue(fn func(*lua.LState)) bool {
	if vm.ctx.Err() != nil {
		return false
	}
	select {
	case vm.queue <- fn:
		return true
	default:
		return false
	}
}

// loop runs queued work until the VM is cancelled, then closes the state.
func (vm *scriptVM) loop() {
	defer vm.state.Close()
	for {
		select {
		case <-vm.ctx.Done():
			return
		case fn := <-vm.queue:
			vm.run(fn)
		}
	}
}

func (vm *scriptVM) run(fn func(*lua.LState)) {
	defer func() {
		if r := recover(); r != nil {
			vm.mu.Lock()
			vm.lastError = fmt.Sprint("panic: ", r)
			vm.mu.Unlock()
		}
	}()
	fn(vm.state)
}

// call runs fn in protected mode and records the outcome.
func (vm *scriptVM) call(L *lua.LState, fn *lua.LFunction, args ...lua.LValue) error {
	err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
	vm.mu.Lock()
	vm.events++
	if err != nil {
		vm.lastError = err.Error()
	}
	vm.mu.Unlock()
	return err
}

func (vm *scriptVM) status() ScriptStatus {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return ScriptStatus{
		Running:   vm.ctx.Err() == nil,
		Handlers:  len(vm.handlers),
		Events:    vm.events,
		LastError: vm.lastError,
	}
}
