// Package hue drives Philips Hue lights through the bridge's v1 API.
package hue

import (
	"context"
	"errors"
	"fmt"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
)

// ErrNoBridge is returned when no address is configured and discovery finds nothing.
var ErrNoBridge = errors.New("no hue bridge found")

// Bridge is the subset of *huego.Bridge the driver uses.
type Bridge interface {
	GetLightsContext(ctx context.Context) ([]huego.Light, error)
	SetLightStateContext(ctx context.Context, id int, state huego.State) (*huego.Response, error)
}

// Connect returns a bridge handle for address, discovering the bridge on the
// local network when address is empty. The token must already be paired.
func Connect(ctx context.Context, address, token string) (*huego.Bridge, error) {
	if address == "" {
		found, err := discover(ctx)
		if err != nil {
			return nil, err
		}
		address = found
		log.Info().Str("address", address).Msg("Hue bridge discovered")
	}

	return huego.New(address, token), nil
}

func discover(ctx context.Context) (string, error) {
	type result struct {
		bridge *huego.Bridge
		err    error
	}
	done := make(chan result, 1)
	go func() {
		b, err := huego.Discover()
		done <- result{b, err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("bridge discovery: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoBridge, r.err)
		}
		if r.bridge == nil || r.bridge.Host == "" {
			return "", ErrNoBridge
		}
		return r.bridge.Host, nil
	}
}
