// Package schedule holds keyframe tables, the interpolator that resolves a
// cycle phase into a light setting, and the router that binds lights to tables.
package schedule

import "fmt"

// MaxBrightness is the highest brightness a Hue light accepts.
const MaxBrightness = 254

// LightSetting is one target actuation state for a light.
type LightSetting struct {
	X          float64 `json:"x" yaml:"x"`
	Y          float64 `json:"y" yaml:"y"`
	Brightness int     `json:"bri" yaml:"bri"`
	On         bool    `json:"on" yaml:"on"`
}

// Off returns the idle setting pushed to every light when nobody is present.
func Off() LightSetting {
	return LightSetting{On: false}
}

// Validate reports the first field outside its allowed range.
func (s LightSetting) Validate() error {
	if s.X < 0 || s.X > 1 {
		return fmt.Errorf("x %.4f out of range [0,1]", s.X)
	}
	if s.Y < 0 || s.Y > 1 {
		return fmt.Errorf("y %.4f out of range [0,1]", s.Y)
	}
	if s.Brightness < 0 || s.Brightness > MaxBrightness {
		return fmt.Errorf("brightness %d out of range [0,%d]", s.Brightness, MaxBrightness)
	}
	return nil
}

func (s LightSetting) String() string {
	if !s.On {
		return "off"
	}
	return fmt.Sprintf("on xy=(%.4f,%.4f) bri=%d", s.X, s.Y, s.Brightness)
}
