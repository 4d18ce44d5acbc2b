// Package geo supplies sunrise and sunset times for a location, either from a
// weather API or from a local astronomical calculation.
package geo

import (
	"time"
)

// SunTimes is the sunrise/sunset pair for one day.
type SunTimes struct {
	Sunrise time.Time `json:"sunrise"`
	Sunset  time.Time `json:"sunset"`
	Source  string    `json:"source"`
}

// Location represents a geocoded location
type Location struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// HasCoordinates reports whether lat/lon were set.
func (l *Location) HasCoordinates() bool {
	return l != nil && (l.Latitude != 0 || l.Longitude != 0)
}
