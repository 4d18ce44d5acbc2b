package geo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// NamedSource is a sun-time source that can identify itself.
type NamedSource interface {
	Name() string
	FetchSunTimes(ctx context.Context, now time.Time) (SunTimes, error)
}

// Fallback tries each source in order and returns the first success.
type Fallback struct {
	sources []NamedSource
}

// NewFallback creates a fallback chain.
func NewFallback(sources ...NamedSource) *Fallback {
	return &Fallback{sources: sources}
}

// Name identifies the chain in logs.
func (f *Fallback) Name() string {
	return "fallback"
}

// FetchSunTimes implements cycle.SunSource. When ctx carries a deadline, each
// source except the last gets an equal share of the time left, so a hanging
// source cannot starve the ones behind it.
func (f *Fallback) FetchSunTimes(ctx context.Context, now time.Time) (SunTimes, error) {
	var errs []error
	for i, src := range f.sources {
		times, err := f.fetch(ctx, src, len(f.sources)-i, now)
		if err == nil {
			return times, nil
		}
		log.Warn().Err(err).Str("source", src.Name()).Msg("Sun time source failed, trying next")
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return SunTimes{}, errors.New("no sun time sources configured")
	}
	return SunTimes{}, errors.Join(errs...)
}

// fetch calls src with its share of the deadline. left counts src itself.
func (f *Fallback) fetch(ctx context.Context, src NamedSource, left int, now time.Time) (SunTimes, error) {
	deadline, ok := ctx.Deadline()
	if !ok || left <= 1 {
		return src.FetchSunTimes(ctx, now)
	}
	sub, cancel := context.WithTimeout(ctx, time.Until(deadline)/time.Duration(left))
	defer cancel()
	return src.FetchSunTimes(sub, now)
}
