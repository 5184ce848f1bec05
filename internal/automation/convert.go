//go:build !no_automation

package automation

import (
	"encoding/json"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// eventFields flattens event data into a plain map. Struct payloads such
// as notifications go through their JSON form.
func eventFields(data interface{}) map[string]interface{} {
	if m, ok := data.(map[string]interface{}); ok {
		return m
	}
	return toMap(data)
}

// goToLua converts decoded JSON-like Go values into Lua values. Structs are
// converted through their JSON object form; anything else becomes a string.
func goToLua(L *lua.LState, v interface{}) lua.LValue {
	if n, ok := luaNumber(v); ok {
		return n
	}
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return val
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case map[string]interface{}:
		tbl := L.CreateTable(0, len(val))
		for k, item := range val {
			tbl.RawSetString(k, goToLua(L, item))
		}
		return tbl
	case []interface{}:
		tbl := L.CreateTable(len(val), 0)
		for _, item := range val {
			tbl.Append(goToLua(L, item))
		}
		return tbl
	case []string:
		tbl := L.CreateTable(len(val), 0)
		for _, item := range val {
			tbl.Append(lua.LString(item))
		}
		return tbl
	}
	if m := toMap(v); m != nil {
		return goToLua(L, m)
	}
	return lua.LString(fmt.Sprint(v))
}

func luaNumber(v interface{}) (lua.LNumber, bool) {
	switch n := v.(type) {
	case int:
		return lua.LNumber(n), true
	case int64:
		return lua.LNumber(n), true
	case uint64:
		return lua.LNumber(n), true
	case float64:
		return lua.LNumber(n), true
	case json.Number:
		f, err := n.Float64()
		return lua.LNumber(f), err == nil
	}
	return 0, false
}

// toMap returns v's JSON object form, or nil if v does not encode as an object.
func toMap(v interface{}) map[string]interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if json.Unmarshal(data, &m) != nil {
		return nil
	}
	return m
}
