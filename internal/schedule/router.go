package schedule

import "fmt"

// Binding ties a light to a table by index.
type Binding struct {
	Device string
	Table  int
}

// Router resolves which table drives each light. It is validated once when
// built and never changes afterwards.
type Router struct {
	devices []string
	byID    map[string]*Table
}

// NewRouter validates the bindings against the device set and the tables.
// Every device needs exactly one binding and every binding must point at an
// existing table.
func NewRouter(tables []*Table, devices []string, bindings []Binding) (*Router, error) {
	if len(devices) > 0 && len(tables) == 0 {
		return nil, configErrorf("no tables for %d devices", len(devices))
	}
	if len(bindings) != len(devices) {
		return nil, configErrorf("%d bindings for %d devices", len(bindings), len(devices))
	}

	known := make(map[string]bool, len(devices))
	for _, d := range devices {
		known[d] = true
	}

	byID := make(map[string]*Table, len(bindings))
	for _, b := range bindings {
		if b.Table < 0 || b.Table >= len(tables) {
			return nil, configErrorf("device %q bound to table %d, have %d tables", b.Device, b.Table, len(tables))
		}
		if !known[b.Device] {
			return nil, configErrorf("binding for unknown device %q", b.Device)
		}
		if _, dup := byID[b.Device]; dup {
			return nil, configErrorf("device %q bound more than once", b.Device)
		}
		if tables[b.Table] == nil || tables[b.Table].Len() == 0 {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("table %d", b.Table), Err: ErrEmptyTable}
		}
		byID[b.Device] = tables[b.Table]
	}

	return &Router{
		devices: append([]string(nil), devices...),
		byID:    byID,
	}, nil
}

// TableFor returns the table bound to a device.
func (r *Router) TableFor(device string) (*Table, bool) {
	t, ok := r.byID[device]
	return t, ok
}

// Devices returns the routed devices in inventory order.
func (r *Router) Devices() []string {
	return append([]string(nil), r.devices...)
}
