// Package lua loads schedule definitions from a Lua script.
package lua

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/daylightd/internal/config"
	"github.com/dokzlo13/daylightd/internal/lua/modules"
)

// ResolvePath resolves a script path relative to the config file when it
// does not exist relative to the working directory.
func ResolvePath(path, configPath string) string {
	if filepath.IsAbs(path) || configPath == "" {
		return path
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return filepath.Join(filepath.Dir(configPath), path)
	}
	return path
}

// LoadSchedules runs the script at path and returns the tables and bindings
// it declared. The VM only lives for the duration of the load.
func LoadSchedules(path string) (*config.SchedulesConfig, error) {
	log.Info().Str("path", path).Msg("Loading schedule script")

	result, err := load(func(L *lua.LState) error { return L.DoFile(path) })
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("tables", len(result.Tables)).
		Int("bindings", len(result.Bindings)).
		Msg("Schedule script loaded")
	return result, nil
}

// LoadSchedulesString is LoadSchedules for an in-memory script.
func LoadSchedulesString(source string) (*config.SchedulesConfig, error) {
	return load(func(L *lua.LState) error { return L.DoString(source) })
}

func load(run func(L *lua.LState) error) (*config.SchedulesConfig, error) {
	L := lua.NewState()
	defer L.Close()

	sched := modules.NewScheduleModule()
	L.PreloadModule("schedule", sched.Loader)
	L.PreloadModule("log", modules.NewLogModule().Loader)

	if err := run(L); err != nil {
		return nil, fmt.Errorf("failed to execute Lua script: %w", err)
	}

	result := sched.Result()
	if len(result.Tables) == 0 {
		return nil, fmt.Errorf("script declared no schedule tables")
	}
	return &result, nil
}
