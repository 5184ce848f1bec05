//go:build !no_automation

package automation

// ScriptMeta is the YAML header at the top of a script file.
type ScriptMeta struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Script is one scene script: a header plus the Lua body.
type Script struct {
	ID       string     `json:"id"` // file name without .lua
	Meta     ScriptMeta `json:"meta"`
	LuaCode  string     `json:"lua_code"`
	FilePath string     `json:"-"`
}
