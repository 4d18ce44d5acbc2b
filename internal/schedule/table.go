package schedule

import (
	"fmt"
	"math"
	"sort"
)

// Keyframe pins a light setting to a phase of the day cycle.
// Phase 0 is sunrise and 1 is sunset; values outside that range are allowed.
type Keyframe struct {
	Phase   float64      `json:"phase"`
	Setting LightSetting `json:"setting"`
}

// Table is an immutable set of keyframes ordered by phase.
type Table struct {
	name      string
	keyframes []Keyframe
}

// NewTable builds a table from keyframes in any order. Keyframes sharing a
// phase collapse to the one supplied last.
func NewTable(name string, keyframes []Keyframe) (*Table, error) {
	if len(keyframes) == 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("table %q", name), Err: ErrEmptyTable}
	}

	byPhase := make(map[float64]LightSetting, len(keyframes))
	for i, kf := range keyframes {
		if math.IsNaN(kf.Phase) || math.IsInf(kf.Phase, 0) {
			return nil, configErrorf("table %q keyframe %d: phase must be finite", name, i)
		}
		if err := kf.Setting.Validate(); err != nil {
			return nil, &ConfigurationError{
				Reason: fmt.Sprintf("table %q keyframe %d (phase %g)", name, i, kf.Phase),
				Err:    err,
			}
		}
		byPhase[kf.Phase] = kf.Setting
	}

	sorted := make([]Keyframe, 0, len(byPhase))
	for phase, setting := range byPhase {
		sorted = append(sorted, Keyframe{Phase: phase, Setting: setting})
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Phase < sorted[j].Phase
	})

	return &Table{name: name, keyframes: sorted}, nil
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Len returns the number of distinct keyframes.
func (t *Table) Len() int {
	return len(t.keyframes)
}

// Keyframes returns a copy of the keyframes in phase order.
func (t *Table) Keyframes() []Keyframe {
	out := make([]Keyframe, len(t.keyframes))
	copy(out, t.keyframes)
	return out
}
