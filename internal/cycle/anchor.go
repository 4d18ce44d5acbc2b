// Package cycle turns wall-clock time into a phase of the sunrise to sunset
// cycle and keeps the sunrise/sunset anchor fresh.
package cycle

import (
	"time"
)

// DefaultRefreshSkew is added to local midnight so a refresh lands just after
// the day changes.
const DefaultRefreshSkew = 5 * time.Second

// Anchor is the sunrise/sunset pair currently in use and the instant after
// which it has to be fetched again. The zero Anchor is not ready and is
// always due for refresh.
type Anchor struct {
	Sunrise   time.Time `json:"sunrise"`
	Sunset    time.Time `json:"sunset"`
	RefreshAt time.Time `json:"refresh_at"`
}

// Ready reports whether the anchor describes a usable cycle.
func (a Anchor) Ready() bool {
	return !a.Sunrise.IsZero() && !a.Sunset.IsZero() && a.Sunset.After(a.Sunrise)
}

// PhaseOf returns where now falls in the cycle: 0 at sunrise, 1 at sunset.
// The value is not clamped, so it is negative before sunrise and above 1 after
// sunset. An anchor that is not Ready yields NaN or an infinity.
func PhaseOf(now time.Time, a Anchor) float64 {
	elapsed := now.Sub(a.Sunrise).Seconds()
	span := a.Sunset.Sub(a.Sunrise).Seconds()
	return elapsed / span
}

// NeedsRefresh reports whether now is past the anchor's refresh instant.
func NeedsRefresh(now time.Time, a Anchor) bool {
	return now.After(a.RefreshAt)
}

// NextRefresh returns the start of the calendar day after now in loc, plus skew.
func NextRefresh(now time.Time, loc *time.Location, skew time.Duration) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return midnight.Add(skew)
}

// NewAnchor builds the anchor for freshly fetched sun times.
func NewAnchor(now, sunrise, sunset time.Time, loc *time.Location, skew time.Duration) Anchor {
	return Anchor{
		Sunrise:   sunrise,
		Sunset:    sunset,
		RefreshAt: NextRefresh(now, loc, skew),
	}
}
