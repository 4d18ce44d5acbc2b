package app

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/dokzlo13/daylightd/internal/config"
	"github.com/dokzlo13/daylightd/internal/hue"
	"github.com/dokzlo13/daylightd/internal/lua"
	"github.com/dokzlo13/daylightd/internal/schedule"
)

// LoadSchedules returns the schedule definitions from the Lua script when one
// is configured, otherwise from the YAML schedules section.
func LoadSchedules(cfg *config.Config) (config.SchedulesConfig, error) {
	if cfg.Schedules.Script == "" {
		return cfg.Schedules, nil
	}
	loaded, err := lua.LoadSchedules(lua.ResolvePath(cfg.Schedules.Script, cfg.Path))
	if err != nil {
		return config.SchedulesConfig{}, err
	}
	return *loaded, nil
}

// BuildTables builds every keyframe table, ordered by name, and returns the
// index of each name.
func BuildTables(sc config.SchedulesConfig) ([]*schedule.Table, map[string]int, error) {
	names := make([]string, 0, len(sc.Tables))
	for name := range sc.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	tables := make([]*schedule.Table, 0, len(names))
	index := make(map[string]int, len(names))
	for _, name := range names {
		kfs := make([]schedule.Keyframe, 0, len(sc.Tables[name]))
		for _, k := range sc.Tables[name] {
			kfs = append(kfs, schedule.Keyframe{
				Phase:   k.Phase,
				Setting: schedule.LightSetting{X: k.X, Y: k.Y, Brightness: k.Bri, On: k.On},
			})
		}
		t, err := schedule.NewTable(name, kfs)
		if err != nil {
			return nil, nil, err
		}
		index[name] = len(tables)
		tables = append(tables, t)
	}
	return tables, index, nil
}

// SelectDevices returns the ids of the lights to drive. An empty filter
// selects every light the bridge reports.
func SelectDevices(lights []hue.LightInfo, filter []string) ([]string, error) {
	if len(filter) == 0 {
		devices := make([]string, 0, len(lights))
		for _, l := range lights {
			devices = append(devices, l.ID)
		}
		return devices, nil
	}

	known := make(map[string]bool, len(lights))
	for _, l := range lights {
		known[l.ID] = true
	}
	devices := make([]string, 0, len(filter))
	for _, id := range filter {
		if !known[id] {
			return nil, &schedule.ConfigurationError{Reason: fmt.Sprintf("hue.lights: light %s not found on the bridge", id)}
		}
		devices = append(devices, id)
	}
	return devices, nil
}

// BuildRouter binds every device to a table. Devices without an explicit
// binding use the default table; with a single table and no default, that
// table is the default.
func BuildRouter(sc config.SchedulesConfig, devices []string) (*schedule.Router, error) {
	tables, index, err := BuildTables(sc)
	if err != nil {
		return nil, err
	}

	def := sc.Default
	if def == "" && len(tables) == 1 {
		def = tables[0].Name()
	}
	if def != "" {
		if _, ok := index[def]; !ok {
			return nil, &schedule.ConfigurationError{Reason: fmt.Sprintf("default table %q is not defined", def)}
		}
	}

	active := make(map[string]bool, len(devices))
	for _, d := range devices {
		active[d] = true
	}
	for light := range sc.Bindings {
		if !active[light] {
			return nil, &schedule.ConfigurationError{Reason: fmt.Sprintf("binding for light %s which is not driven", light)}
		}
	}

	bindings := make([]schedule.Binding, 0, len(devices))
	for _, d := range devices {
		name, ok := sc.Bindings[d]
		if !ok {
			name = def
		}
		if name == "" {
			return nil, &schedule.ConfigurationError{Reason: fmt.Sprintf("light %s has no binding and there is no default table", d)}
		}
		i, ok := index[name]
		if !ok {
			return nil, &schedule.ConfigurationError{Reason: fmt.Sprintf("light %s bound to undefined table %q", d, name)}
		}
		bindings = append(bindings, schedule.Binding{Device: d, Table: i})
	}

	return schedule.NewRouter(tables, devices, bindings)
}

var previewPhases = []float64{0, 0.25, 0.5, 0.75, 1}

// WritePreview prints what each table resolves to across the day.
func WritePreview(w io.Writer, tables []*schedule.Table) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "TABLE\tKEYFRAMES")
	for _, p := range previewPhases {
		fmt.Fprintf(tw, "\tPHASE %.2f", p)
	}
	fmt.Fprintln(tw)

	for _, t := range tables {
		fmt.Fprintf(tw, "%s\t%d", t.Name(), t.Len())
		for _, p := range previewPhases {
			fmt.Fprintf(tw, "\t%s", schedule.Resolve(p, t))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
