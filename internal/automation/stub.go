//go:build no_automation

package automation

import (
	"errors"
	"log/slog"
	"time"

	"home-hub/internal/home"
)

var (
	// ErrScriptNotFound is returned when no script file has the requested ID.
	ErrScriptNotFound = errors.New("script not found")
	// ErrInvalidScriptID rejects IDs that are not a plain file name.
	ErrInvalidScriptID = errors.New("invalid script id")
)

// ScriptMeta mirrors the script header so the HTTP layer compiles unchanged.
type ScriptMeta struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Enabled     bool     `json:"enabled"`
	Tags        []string `json:"tags,omitempty"`
}

// Script represents a single scene script stored on disk.
type Script struct {
	ID       string     `json:"id"`
	Meta     ScriptMeta `json:"meta"`
	LuaCode  string     `json:"lua_code"`
	FilePath string     `json:"-"`
}

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// SystemConfig holds system exec settings (stub).
type SystemConfig struct {
	ExecAllowlist []string
	ExecTimeout   time.Duration
}

// Manager is a no-op stub when automation is disabled.
type Manager struct{}

// NewManager returns nil manager when automation is disabled.
func NewManager(_ string) (*Manager, error) { return nil, nil }

// List returns nil.
func (m *Manager) List() ([]*Script, error) { return nil, nil }

// Get always reports the script missing.
func (m *Manager) Get(_ string) (*Script, error) { return nil, ErrScriptNotFound }

// Save returns the script unchanged.
func (m *Manager) Save(s *Script) (*Script, error) { return s, nil }

// Delete is a no-op.
func (m *Manager) Delete(_ string) error { return nil }

// Engine is a no-op stub when automation is disabled.
type Engine struct{}

// NewEngine returns a no-op engine when automation is disabled.
func NewEngine(_ *home.Hub, _ *Manager, _ *slog.Logger, _ SystemConfig) *Engine {
	return &Engine{}
}

// Start is a no-op.
func (e *Engine) Start() {}

// Stop is a no-op.
func (e *Engine) Stop() {}

// ReloadScript is a no-op.
func (e *Engine) ReloadScript(_ string) error { return nil }

// StopScript is a no-op.
func (e *Engine) StopScript(_ string) {}

// ScriptStatus describes a script's VM.
type ScriptStatus struct {
	Running   bool   `json:"running"`
	Handlers  int    `json:"handlers"`
	Events    uint64 `json:"events"`
	LastError string `json:"last_error,omitempty"`
}

// Status reports zero values.
func (e *Engine) Status(_ string) ScriptStatus { return ScriptStatus{} }

// Running always reports false.
func (e *Engine) Running(_ string) bool { return false }

// RunScript returns a stub result.
func (e *Engine) RunScript(_ string) *RunResult {
	return &RunResult{OK: false, Error: "automation disabled"}
}

// RunLuaCode returns a stub result.
func (e *Engine) RunLuaCode(_ string) *RunResult {
	return &RunResult{OK: false, Error: "automation disabled"}
}
