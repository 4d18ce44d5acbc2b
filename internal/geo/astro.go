package geo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sixdouglas/suncalc"
)

// ErrNoSunrise is returned on days the sun does not rise or set (polar day/night).
var ErrNoSunrise = errors.New("no sunrise or sunset on this day")

// AstroSource computes sun times locally. Coordinates come from config or,
// when unset, from geocoding the configured place name once.
type AstroSource struct {
	location *Location
	name     string
	geocoder *Geocoder
	tz       *time.Location
}

// NewAstroSource creates a source for fixed coordinates.
func NewAstroSource(loc *Location, tz *time.Location) *AstroSource {
	if tz == nil {
		tz = time.Local
	}
	return &AstroSource{location: loc, tz: tz}
}

// NewGeocodedAstroSource creates a source that geocodes name on first use.
func NewGeocodedAstroSource(name string, geocoder *Geocoder, tz *time.Location) *AstroSource {
	if tz == nil {
		tz = time.Local
	}
	return &AstroSource{name: name, geocoder: geocoder, tz: tz}
}

// Name identifies the source in logs.
func (s *AstroSource) Name() string {
	return "astro"
}

// FetchSunTimes implements cycle.SunSource.
func (s *AstroSource) FetchSunTimes(ctx context.Context, now time.Time) (SunTimes, error) {
	loc, err := s.resolve(ctx)
	if err != nil {
		return SunTimes{}, err
	}

	// evaluate at local noon so the calculation stays on the local calendar day
	local := now.In(s.tz)
	noon := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, s.tz)

	times := suncalc.GetTimes(noon, loc.Latitude, loc.Longitude)
	sunrise := times[suncalc.Sunrise].Value
	sunset := times[suncalc.Sunset].Value
	if !plausible(noon, sunrise) || !plausible(noon, sunset) || !sunset.After(sunrise) {
		return SunTimes{}, fmt.Errorf("%s: %w", local.Format("2006-01-02"), ErrNoSunrise)
	}

	return SunTimes{Sunrise: sunrise, Sunset: sunset, Source: s.Name()}, nil
}

func (s *AstroSource) resolve(ctx context.Context) (*Location, error) {
	if s.location.HasCoordinates() {
		return s.location, nil
	}
	if s.geocoder == nil || s.name == "" {
		return nil, errors.New("astro source needs coordinates or a place name")
	}
	loc, err := s.geocoder.Lookup(ctx, s.name)
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}
	s.location = loc
	return loc, nil
}

// plausible rejects the garbage times the calculation yields when the sun
// never crosses the horizon.
func plausible(noon, t time.Time) bool {
	if t.IsZero() {
		return false
	}
	d := t.Sub(noon)
	return d > -24*time.Hour && d < 24*time.Hour
}
