package app

import (
	"context"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/daylightd/internal/config"
	"github.com/dokzlo13/daylightd/internal/geo"
)

func TestNewSunSource(t *testing.T) {
	tests := []struct {
		provider string
		want     any
	}{
		{config.ProviderAstro, &geo.AstroSource{}},
		{config.ProviderOpenWeatherMap, &geo.OpenWeatherSource{}},
		{config.ProviderFallback, &geo.Fallback{}},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := &config.Config{
				Geo:     config.GeoConfig{Name: "Berlin", Timezone: "UTC", Lat: 52.52, Lon: 13.405},
				Weather: config.WeatherConfig{Provider: tt.provider, APIKey: "k"},
			}
			src, err := NewSunSource(cfg, geo.NewGeocoder("", nil, nil), http.DefaultClient)
			require.NoError(t, err)
			assert.IsType(t, tt.want, src)
		})
	}

	_, err := NewSunSource(&config.Config{Weather: config.WeatherConfig{Provider: "sundial"}}, nil, nil)
	assert.Error(t, err)
}

func TestNewPresenceService(t *testing.T) {
	absent := false
	cfg := &config.Config{Presence: config.PresenceConfig{Source: config.PresenceStatic, Present: &absent}}
	svc := NewPresenceService(cfg)
	assert.False(t, svc.Presence.Present(context.Background()))

	cfg = &config.Config{Presence: config.PresenceConfig{
		Source:  config.PresenceWebhook,
		Webhook: config.WebhookConfig{Host: "127.0.0.1", Port: 0},
	}}
	svc = NewPresenceService(cfg)
	assert.True(t, svc.Presence.Present(context.Background()))
}

func TestPresenceService_WebhookPortTakenFailsStart(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := &config.Config{Presence: config.PresenceConfig{
		Source:  config.PresenceWebhook,
		Webhook: config.WebhookConfig{Host: "127.0.0.1", Port: taken.Addr().(*net.TCPAddr).Port},
	}}
	svc := NewPresenceService(cfg)

	var fatal error
	err = svc.Start(context.Background(), func(err error) { fatal = err })
	require.Error(t, err)
	assert.NoError(t, fatal)
}
