//go:build !no_automation

package automation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"slices"
	"time"

	lua "github.com/yuin/gopher-lua"
)

const (
	defaultExecTimeout = 10 * time.Second
	maxExecOutput      = 64 << 10
)

// SystemConfig controls what the `system` Lua module may do.
type SystemConfig struct {
	ExecAllowlist []string      // absolute paths system.exec may run
	ExecTimeout   time.Duration // per command, 0 means 10s
}

// registerSystemModule installs the `system` table: wall clock helpers,
// leveled logging and allowlisted command execution.
func registerSystemModule(L *lua.LState, vm *scriptVM, e *Engine) {
	L.SetGlobal("system", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"now":          func(L *lua.LState) int { return systemNow(L, e) },
		"time_between": func(L *lua.LState) int { return systemTimeBetween(L, e) },
		"log":          func(L *lua.LState) int { return systemLog(L, vm, e) },
		"exec":         func(L *lua.LState) int { return systemExec(L, e) },
	}))
}

// system.now() -> {year, month, day, hour, minute, second, weekday, unix, date, time}
func systemNow(L *lua.LState, e *Engine) int {
	now := e.now()
	t := L.NewTable()
	t.RawSetString("year", lua.LNumber(now.Year()))
	t.RawSetString("month", lua.LNumber(now.Month()))
	t.RawSetString("day", lua.LNumber(now.Day()))
	t.RawSetString("hour", lua.LNumber(now.Hour()))
	t.RawSetString("minute", lua.LNumber(now.Minute()))
	t.RawSetString("second", lua.LNumber(now.Second()))
	t.RawSetString("weekday", lua.LNumber(now.Weekday()))
	t.RawSetString("unix", lua.LNumber(now.Unix()))
	t.RawSetString("date", lua.LString(now.Format("2006-01-02")))
	t.RawSetString("time", lua.LString(now.Format("15:04")))
	L.Push(t)
	return 1
}

// system.time_between("22:00", "06:30") -> bool
// The window includes its start and excludes its end; a start after the end
// wraps past midnight.
func systemTimeBetween(L *lua.LState, e *Engine) int {
	from, err := parseClock(L.CheckString(1))
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	to, err := parseClock(L.CheckString(2))
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}
	L.Push(lua.LBool(inWindow(e.now(), from, to)))
	return 1
}

// parseClock parses "HH:MM" (or a bare hour) into minutes after midnight.
func parseClock(s string) (int, error) {
	for _, layout := range []string{"15:04", "15"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}

func inWindow(now time.Time, from, to int) bool {
	m := now.Hour()*60 + now.Minute()
	if from <= to {
		return m >= from && m < to
	}
	return m >= from || m < to
}

// system.log(level, msg)
func systemLog(L *lua.LState, vm *scriptVM, e *Engine) int {
	level := L.CheckString(1)
	msg := L.CheckString(2)

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if vm.capture != nil {
		vm.capture(lvl.String() + " " + msg)
	}
	e.logger.Log(context.Background(), lvl, "script log", "msg", msg)
	return 0
}

var errExecDenied = errors.New("command not allowed")

// system.exec(path, args...) -> stdout | nil, err
func systemExec(L *lua.LState, e *Engine) int {
	path := L.CheckString(1)
	args := make([]string, 0, L.GetTop()-1)
	for i := 2; i <= L.GetTop(); i++ {
		args = append(args, L.CheckString(i))
	}

	out, err := e.execAllowed(path, args)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LString(out))
	return 1
}

// execAllowed runs path if it is an absolute, allowlisted binary.
func (e *Engine) execAllowed(path string, args []string) (string, error) {
	if !filepath.IsAbs(path) || !slices.Contains(e.systemCfg.ExecAllowlist, path) {
		e.logger.Warn("exec blocked", "cmd", path)
		return "", fmt.Errorf("%s: %w", path, errExecDenied)
	}

	timeout := e.systemCfg.ExecTimeout
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timed out after %s", timeout)
		}
		e.logger.Warn("exec failed", "cmd", path, "err", err)
		return "", err
	}

	out := stdout.Bytes()
	if len(out) > maxExecOutput {
		out = out[:maxExecOutput]
	}
	return string(out), nil
}
