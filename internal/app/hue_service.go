package app

import (
	"context"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/daylightd/internal/config"
	"github.com/dokzlo13/daylightd/internal/hue"
)

// HueService wraps the bridge connection, the driver and the light inventory.
type HueService struct {
	cfg *config.Config

	Bridge *huego.Bridge
	Driver *hue.Driver
	Lights []hue.LightInfo
}

// NewHueService creates a HueService; nothing is contacted until Start.
func NewHueService(cfg *config.Config) *HueService {
	return &HueService{cfg: cfg}
}

// Start connects to (or discovers) the bridge and enumerates its lights.
func (s *HueService) Start(ctx context.Context) error {
	timeout := s.cfg.Hue.Timeout.Duration()

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	bridge, err := hue.Connect(connectCtx, s.cfg.Hue.Bridge, s.cfg.Hue.Token)
	cancel()
	if err != nil {
		return err
	}
	s.Bridge = bridge

	sent := hue.NewSentCache(s.cfg.Hue.ResendInterval.Duration())
	s.Driver = hue.NewDriver(bridge, s.cfg.Hue.RateLimitRPS, s.cfg.Hue.Transition.Duration(), sent)

	listCtx, cancel := context.WithTimeout(ctx, timeout)
	lights, err := s.Driver.Lights(listCtx)
	cancel()
	if err != nil {
		return err
	}
	s.Lights = lights

	log.Info().Str("bridge", bridge.Host).Int("lights", len(lights)).Msg("Connected to Hue bridge")
	for _, l := range lights {
		log.Info().Str("id", l.ID).Str("name", l.Name).Bool("reachable", l.Reachable).Msg("Light found")
	}
	return nil
}
