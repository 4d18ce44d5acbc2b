package cycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/daylightd/internal/geo"
)

// DefaultFetchTimeout bounds a single sun-time fetch.
const DefaultFetchTimeout = 10 * time.Second

// ErrInvalidSunTimes is returned when a source answers without a usable pair.
var ErrInvalidSunTimes = errors.New("sunset is not after sunrise")

// SunSource supplies the sunrise and sunset for the day containing now.
type SunSource interface {
	FetchSunTimes(ctx context.Context, now time.Time) (geo.SunTimes, error)
}

// RefreshError is a failed anchor refresh. The anchor is left untouched and
// the refresh is retried on the next tick.
type RefreshError struct {
	At  time.Time
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh sun times: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Clock owns the current anchor and refreshes it from a SunSource at most once
// per local calendar day while fetches succeed.
type Clock struct {
	source  SunSource
	loc     *time.Location
	skew    time.Duration
	timeout time.Duration

	mu     sync.RWMutex
	anchor Anchor
}

// NewClock creates a clock with a zero (not ready) anchor.
func NewClock(source SunSource, loc *time.Location, skew, timeout time.Duration) *Clock {
	if loc == nil {
		loc = time.Local
	}
	if skew <= 0 {
		skew = DefaultRefreshSkew
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Clock{
		source:  source,
		loc:     loc,
		skew:    skew,
		timeout: timeout,
	}
}

// Anchor returns a snapshot of the current anchor.
func (c *Clock) Anchor() Anchor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.anchor
}

// Location returns the timezone used to find the next calendar day.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// NeedsRefresh reports whether the current anchor is due at now.
func (c *Clock) NeedsRefresh(now time.Time) bool {
	return NeedsRefresh(now, c.Anchor())
}

// Refresh fetches sun times and installs a new anchor. On any failure the
// previous anchor is kept and a *RefreshError is returned.
func (c *Clock) Refresh(ctx context.Context, now time.Time) (Anchor, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	times, err := c.source.FetchSunTimes(fetchCtx, now)
	if err != nil {
		return c.Anchor(), &RefreshError{At: now, Err: err}
	}
	if times.Sunrise.IsZero() || times.Sunset.IsZero() || !times.Sunset.After(times.Sunrise) {
		return c.Anchor(), &RefreshError{At: now, Err: ErrInvalidSunTimes}
	}

	anchor := NewAnchor(now, times.Sunrise, times.Sunset, c.loc, c.skew)

	c.mu.Lock()
	c.anchor = anchor
	c.mu.Unlock()

	log.Info().
		Str("source", times.Source).
		Time("sunrise", anchor.Sunrise.In(c.loc)).
		Time("sunset", anchor.Sunset.In(c.loc)).
		Time("refresh_at", anchor.RefreshAt).
		Msg("Sun times refreshed")

	return anchor, nil
}

// RefreshIfNeeded refreshes only when the anchor is due. It reports whether a
// refresh was attempted.
func (c *Clock) RefreshIfNeeded(ctx context.Context, now time.Time) (bool, error) {
	if !c.NeedsRefresh(now) {
		return false, nil
	}
	_, err := c.Refresh(ctx, now)
	return true, err
}
