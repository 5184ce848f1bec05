//go:build !no_automation

package automation

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// ErrScriptNotFound is returned when no script file has the requested ID.
	ErrScriptNotFound = errors.New("script not found")
	// ErrInvalidScriptID rejects IDs that are not a plain file name.
	ErrInvalidScriptID = errors.New("invalid script id")
)

const (
	scriptExt    = ".lua"
	headerOpen   = "--[[\n"
	headerClose  = "]]\n"
	maxSlugChars = 40
)

// Manager keeps scene scripts as .lua files in one directory. Each file
// starts with a YAML header inside a Lua block comment, so the file stays
// runnable by a plain Lua interpreter:
//
//	--[[
//	name: Movie night
//	enabled: true
//	]]
//	home.apply("living room", "light", "on", {brightness = 20})
type Manager struct {
	dir string
	mu  sync.RWMutex
}

// NewManager creates dir if needed.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scripts dir: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// List returns every readable script, ordered by ID. Files whose header does
// not parse are skipped.
func (m *Manager) List() ([]*Script, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read scripts dir: %w", err)
	}

	scripts := make([]*Script, 0, len(entries))
	for _, ent := range entries {
		id, ok := strings.CutSuffix(ent.Name(), scriptExt)
		if !ok || ent.IsDir() {
			continue
		}
		s, err := m.load(id)
		if err != nil {
			continue
		}
		scripts = append(scripts, s)
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].ID < scripts[j].ID })
	return scripts, nil
}

// Get loads one script.
func (m *Manager) Get(id string) (*Script, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.load(id)
}

// Save writes s. A script without an ID gets one derived from its name,
// suffixed with _1, _2... until it does not collide with an existing file.
func (m *Manager) Save(s *Script) (*Script, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = m.freeID(slugify(s.Meta.Name))
	} else if err := checkID(s.ID); err != nil {
		return nil, err
	}

	data, err := encodeScript(s)
	if err != nil {
		return nil, err
	}
	s.FilePath = m.path(s.ID)

	tmp := s.FilePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("write script: %w", err)
	}
	if err := os.Rename(tmp, s.FilePath); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("write script: %w", err)
	}
	return s, nil
}

// Delete removes a script file.
func (m *Manager) Delete(id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	err := os.Remove(m.path(id))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w", id, ErrScriptNotFound)
	case err != nil:
		return fmt.Errorf("delete script: %w", err)
	}
	return nil
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.dir, id+scriptExt)
}

func (m *Manager) load(id string) (*Script, error) {
	data, err := os.ReadFile(m.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", id, ErrScriptNotFound)
	}
	if err != nil {
		return nil, err
	}
	s, err := decodeScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	s.ID = id
	s.FilePath = m.path(id)
	return s, nil
}

func (m *Manager) freeID(base string) string {
	if base == "" {
		base = "script"
	}
	id := base
	for i := 1; ; i++ {
		if _, err := os.Stat(m.path(id)); errors.Is(err, fs.ErrNotExist) {
			return id
		}
		id = fmt.Sprintf("%s_%d", base, i)
	}
}

// checkID rejects IDs that would escape the scripts directory.
func checkID(id string) error {
	if id == "" || id == "." || strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%q: %w", id, ErrInvalidScriptID)
	}
	return nil
}

// decodeScript splits a file into its YAML header and Lua body. A file
// without a header is a disabled, unnamed script.
func decodeScript(data []byte) (*Script, error) {
	s := &Script{}
	rest, ok := bytes.CutPrefix(data, []byte(headerOpen))
	if !ok {
		s.LuaCode = string(data)
		return s, nil
	}
	header, body, ok := bytes.Cut(rest, []byte("\n"+headerClose))
	if !ok {
		if header, ok = bytes.CutSuffix(bytes.TrimRight(rest, "\n"), []byte("\n]]")); !ok {
			return nil, errors.New("unterminated script header")
		}
	}
	if err := yaml.Unmarshal(header, &s.Meta); err != nil {
		return nil, fmt.Errorf("parse script header: %w", err)
	}
	s.LuaCode = strings.TrimLeft(string(body), "\n")
	return s, nil
}

func encodeScript(s *Script) ([]byte, error) {
	header, err := yaml.Marshal(&s.Meta)
	if err != nil {
		return nil, fmt.Errorf("encode script header: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(headerOpen)
	buf.Write(header)
	buf.WriteString(headerClose)
	if s.LuaCode != "" {
		buf.WriteString(s.LuaCode)
		if !strings.HasSuffix(s.LuaCode, "\n") {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	s := slugRe.ReplaceAllString(strings.ToLower(name), "_")
	s = strings.Trim(s, "_")
	if len(s) > maxSlugChars {
		s = strings.TrimRight(s[:maxSlugChars], "_")
	}
	return s
}
