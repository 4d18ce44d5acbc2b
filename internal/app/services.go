package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/daylightd/internal/config"
	"github.com/dokzlo13/daylightd/internal/control"
	"github.com/dokzlo13/daylightd/internal/cycle"
	"github.com/dokzlo13/daylightd/internal/db"
	"github.com/dokzlo13/daylightd/internal/geo"
	"github.com/dokzlo13/daylightd/internal/ledger"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger

	// Sun times
	Geocoder *geo.Geocoder
	Clock    *cycle.Clock

	// High-level services
	Hue      *HueService
	Presence *PresenceService
	Health   *HealthService
	Loop     *control.Loop

	wg sync.WaitGroup
}

// NewServices creates all services with proper dependency injection.
// Nothing outside the process is contacted yet.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Initialize ledger
	s.Ledger = ledger.New(database.DB)

	httpClient := &http.Client{Timeout: cfg.Geo.HTTPTimeout.Duration()}
	s.Geocoder = geo.NewGeocoder(cfg.Geo.NominatimURL, httpClient, geo.NewCache(database.DB))

	source, err := NewSunSource(cfg, s.Geocoder, httpClient)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Clock = cycle.NewClock(source, cfg.Location(), cfg.Weather.RefreshSkew.Duration(), cfg.Weather.Timeout.Duration())

	s.Hue = NewHueService(cfg)
	s.Presence = NewPresenceService(cfg)
	s.Health = NewHealthService(cfg, s.Ledger)

	return s, nil
}

// NewSunSource builds the sun-time source named by weather.provider.
func NewSunSource(cfg *config.Config, geocoder *geo.Geocoder, httpClient *http.Client) (cycle.SunSource, error) {
	var loc *geo.Location
	if cfg.Geo.HasCoordinates() {
		loc = &geo.Location{Name: cfg.Geo.Name, Latitude: cfg.Geo.Lat, Longitude: cfg.Geo.Lon}
	}

	astro := func() *geo.AstroSource {
		if loc != nil {
			return geo.NewAstroSource(loc, cfg.Location())
		}
		log.Warn().Str("name", cfg.Geo.Name).Msg("No lat/lon configured, will use Nominatim geocoding (cached in SQLite)")
		return geo.NewGeocodedAstroSource(cfg.Geo.Name, geocoder, cfg.Location())
	}
	owm := func() *geo.OpenWeatherSource {
		return geo.NewOpenWeatherSource(cfg.Weather.URL, cfg.Weather.APIKey, cfg.Weather.City, loc, httpClient)
	}

	switch cfg.Weather.Provider {
	case config.ProviderAstro:
		return astro(), nil
	case config.ProviderOpenWeatherMap:
		return owm(), nil
	case config.ProviderFallback:
		return geo.NewFallback(owm(), astro()), nil
	}
	return nil, fmt.Errorf("unknown weather.provider %q", cfg.Weather.Provider)
}

// Start runs INIT and then starts all background services.
// The onFatalError callback is called when the control loop stops with an error.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	// Health first so /ready answers 503 throughout INIT
	s.Health.Start(ctx)

	schedules, err := LoadSchedules(s.cfg)
	if err != nil {
		return err
	}
	if _, _, err := BuildTables(schedules); err != nil {
		return err
	}
	log.Info().Int("tables", len(schedules.Tables)).Str("default", schedules.Default).Msg("Schedules loaded")

	if err := s.Hue.Start(ctx); err != nil {
		return err
	}

	devices, err := SelectDevices(s.Hue.Lights, s.cfg.Hue.Lights)
	if err != nil {
		return err
	}
	router, err := BuildRouter(schedules, devices)
	if err != nil {
		return err
	}
	for _, d := range router.Devices() {
		t, _ := router.TableFor(d)
		log.Info().Str("light", d).Str("table", t.Name()).Msg("Light bound")
	}

	if err := s.Presence.Start(ctx, onFatalError); err != nil {
		return err
	}

	s.Loop = control.New(s.Clock, router, s.Hue.Driver, s.Presence.Presence, s.Ledger, control.Options{
		TickInterval:     s.cfg.Control.TickInterval.Duration(),
		IdlePollInterval: s.cfg.Control.IdlePollInterval.Duration(),
		PushTimeout:      s.cfg.Hue.Timeout.Duration(),
	})
	s.Health.SetStatus(s.Loop)

	if err := s.Loop.Init(ctx); err != nil {
		return err
	}
	anchor := s.Clock.Anchor()
	log.Info().
		Time("sunrise", anchor.Sunrise.In(s.Clock.Location())).
		Time("sunset", anchor.Sunset.In(s.Clock.Location())).
		Msg("Initial sun times")

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.Loop.Run(ctx); err != nil {
			onFatalError(err)
		}
	}()
	go func() {
		defer s.wg.Done()
		s.runLedgerCleanup(ctx)
	}()

	return nil
}

// runLedgerCleanup periodically cleans up old ledger entries.
func (s *Services) runLedgerCleanup(ctx context.Context) {
	retention := s.cfg.Ledger.Retention()
	interval := s.cfg.Ledger.CleanupInterval.Duration()
	if interval <= 0 || retention <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.Ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}

// Stop waits for the control loop and the cleanup loop to return, up to the
// shutdown timeout, then releases resources. The context passed to Start must
// already be cancelled.
func (s *Services) Stop() error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	timeout := s.cfg.ShutdownTimeout.Duration()
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("background services still running after %s", timeout)
	}

	s.Close()
	return err
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Presence != nil {
		s.Presence.Stop()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
