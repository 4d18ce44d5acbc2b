package schedule

import "sort"

// Resolve maps a cycle phase to a light setting.
//
// Phases at or before the first keyframe return the first setting and phases
// after the last keyframe return the last one; nothing is extrapolated.
// In between, x, y and brightness glide linearly between the bracketing
// keyframes while On is taken from the earlier one. The brightness increment
// is truncated toward zero before it is added.
func Resolve(phase float64, t *Table) LightSetting {
	kfs := t.keyframes
	first, last := kfs[0], kfs[len(kfs)-1]

	if phase <= first.Phase {
		return first.Setting
	}

	// index of the first keyframe strictly after phase; NaN lands on len(kfs)
	i := sort.Search(len(kfs), func(i int) bool {
		return kfs[i].Phase > phase
	})
	if i == len(kfs) {
		return last.Setting
	}

	return interpolate(kfs[i-1], kfs[i], phase)
}

func interpolate(lo, hi Keyframe, phase float64) LightSetting {
	frac := (phase - lo.Phase) / (hi.Phase - lo.Phase)
	s0, s1 := lo.Setting, hi.Setting

	return LightSetting{
		X:          s0.X + (s1.X-s0.X)*frac,
		Y:          s0.Y + (s1.Y-s0.Y)*frac,
		Brightness: s0.Brightness + int(float64(s1.Brightness-s0.Brightness)*frac),
		On:         s0.On,
	}
}
