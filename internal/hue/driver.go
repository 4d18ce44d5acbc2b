package hue

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/daylightd/internal/schedule"
)

// LightInfo describes one light reported by the bridge.
type LightInfo struct {
	ID        string
	Name      string
	Reachable bool
}

// Driver pushes light settings to the bridge, rate limited so a tick across
// many lights does not trip the bridge's command limit.
type Driver struct {
	bridge     Bridge
	limiter    *rate.Limiter
	transition time.Duration
	sent       *SentCache
}

// NewDriver creates a driver. rateLimitRPS <= 0 defaults to 10 requests per second.
func NewDriver(bridge Bridge, rateLimitRPS float64, transition time.Duration, sent *SentCache) *Driver {
	if rateLimitRPS <= 0 {
		rateLimitRPS = 10.0
	}
	burst := int(rateLimitRPS)
	if burst < 1 {
		burst = 1
	}
	return &Driver{
		bridge:     bridge,
		limiter:    rate.NewLimiter(rate.Limit(rateLimitRPS), burst),
		transition: transition,
		sent:       sent,
	}
}

// Lights returns the bridge's lights ordered by numeric id.
func (d *Driver) Lights(ctx context.Context) ([]LightInfo, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	lights, err := d.bridge.GetLightsContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list lights: %w", err)
	}

	sort.Slice(lights, func(i, j int) bool { return lights[i].ID < lights[j].ID })

	infos := make([]LightInfo, 0, len(lights))
	for _, l := range lights {
		info := LightInfo{ID: strconv.Itoa(l.ID), Name: l.Name}
		if l.State != nil {
			info.Reachable = l.State.Reachable
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Push sends one setting to one light.
func (d *Driver) Push(ctx context.Context, device string, s schedule.LightSetting) error {
	id, err := strconv.Atoi(device)
	if err != nil {
		return fmt.Errorf("invalid light id %q: %w", device, err)
	}

	if d.sent.Fresh(device, s) {
		log.Debug().Str("light", device).Msg("Setting unchanged, skipping push")
		return nil
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	state := stateFor(s, d.transition)
	if _, err := d.bridge.SetLightStateContext(ctx, id, state); err != nil {
		d.sent.Invalidate(device)
		return fmt.Errorf("failed to set light %s: %w", device, err)
	}
	d.sent.Set(device, s)

	log.Debug().
		Str("light", device).
		Stringer("setting", s).
		Msg("Light updated")
	return nil
}

// stateFor converts a setting to a bridge state. An off setting only carries
// the power flag so the light keeps its last color for the next power on.
// Brightness 0 with the light on is sent as 1.
func stateFor(s schedule.LightSetting, transition time.Duration) huego.State {
	state := huego.State{
		On:             s.On,
		TransitionTime: uint16(transition / (100 * time.Millisecond)),
	}
	if !s.On {
		return state
	}
	// bri is omitempty on the wire and 1 is the bridge minimum.
	state.Bri = uint8(max(s.Brightness, 1))
	state.Xy = []float32{float32(s.X), float32(s.Y)}
	return state
}
