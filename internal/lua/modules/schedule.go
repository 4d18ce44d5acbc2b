package modules

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/daylightd/internal/config"
)

// ScheduleModule collects keyframe tables and light bindings declared by a
// script:
//
//	local schedule = require("schedule")
//	schedule.table("day", { {0.0, 0.5, 0.4, 0, false}, {phase=0.5, x=0.4, y=0.35, bri=125, on=true} })
//	schedule.bind("3", "day")
//	schedule.default("day")
//
// Declaration errors are raised so the script fails to load.
type ScheduleModule struct {
	result config.SchedulesConfig
}

// NewScheduleModule creates an empty schedule module
func NewScheduleModule() *ScheduleModule {
	return &ScheduleModule{
		result: config.SchedulesConfig{
			Tables:   make(map[string][]config.KeyframeConfig),
			Bindings: make(map[string]string),
		},
	}
}

// Result returns what the script declared.
func (m *ScheduleModule) Result() config.SchedulesConfig {
	return m.result
}

// Loader is the module loader for Lua
func (m *ScheduleModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "table", L.NewFunction(m.table))
	L.SetField(mod, "bind", L.NewFunction(m.bind))
	L.SetField(mod, "default", L.NewFunction(m.setDefault))

	L.Push(mod)
	return 1
}

// table(name, keyframes)
func (m *ScheduleModule) table(L *lua.LState) int {
	name := L.CheckString(1)
	frames := L.CheckTable(2)

	if _, exists := m.result.Tables[name]; exists {
		L.RaiseError("table %q already defined", name)
		return 0
	}

	keyframes := make([]config.KeyframeConfig, 0, frames.Len())
	for i := 1; i <= frames.Len(); i++ {
		tbl, ok := frames.RawGetInt(i).(*lua.LTable)
		if !ok {
			L.RaiseError("table %q: keyframe %d must be a table", name, i)
			return 0
		}
		kf, err := keyframeFromLua(tbl)
		if err != nil {
			L.RaiseError("table %q: keyframe %d: %s", name, i, err.Error())
			return 0
		}
		keyframes = append(keyframes, kf)
	}

	m.result.Tables[name] = keyframes
	return 0
}

// bind(light_id, table_name)
func (m *ScheduleModule) bind(L *lua.LState) int {
	light := lightID(L, 1)
	name := L.CheckString(2)

	if prev, exists := m.result.Bindings[light]; exists {
		L.RaiseError("light %s already bound to %q", light, prev)
		return 0
	}
	m.result.Bindings[light] = name
	return 0
}

// default(table_name)
func (m *ScheduleModule) setDefault(L *lua.LState) int {
	m.result.Default = L.CheckString(1)
	return 0
}

// lightID accepts a light id as a string or a number.
func lightID(L *lua.LState, n int) string {
	switch v := L.Get(n).(type) {
	case lua.LNumber:
		return fmt.Sprintf("%d", int(v))
	case lua.LString:
		return string(v)
	}
	L.ArgError(n, "light id must be a string or number")
	return ""
}

func keyframeFromLua(tbl *lua.LTable) (config.KeyframeConfig, error) {
	if tbl.Len() > 0 {
		if tbl.Len() != 5 {
			return config.KeyframeConfig{}, fmt.Errorf("tuple needs 5 values {phase, x, y, bri, on}, got %d", tbl.Len())
		}
		return keyframeFrom(func(i int, _ string) lua.LValue { return tbl.RawGetInt(i + 1) })
	}
	return keyframeFrom(func(_ int, key string) lua.LValue { return tbl.RawGetString(key) })
}

func keyframeFrom(get func(i int, key string) lua.LValue) (config.KeyframeConfig, error) {
	var kf config.KeyframeConfig
	nums := []struct {
		key string
		dst *float64
	}{
		{"phase", &kf.Phase},
		{"x", &kf.X},
		{"y", &kf.Y},
	}
	for i, f := range nums {
		n, ok := get(i, f.key).(lua.LNumber)
		if !ok {
			return kf, fmt.Errorf("%s must be a number", f.key)
		}
		*f.dst = float64(n)
	}

	bri, ok := get(3, "bri").(lua.LNumber)
	if !ok {
		return kf, fmt.Errorf("bri must be a number")
	}
	kf.Bri = int(bri)

	switch on := get(4, "on").(type) {
	case lua.LBool:
		kf.On = bool(on)
	case lua.LNumber:
		kf.On = on != 0
	case *lua.LNilType:
		kf.On = false
	default:
		return kf, fmt.Errorf("on must be a boolean")
	}
	return kf, nil
}
