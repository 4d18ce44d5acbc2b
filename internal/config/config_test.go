package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
geo:
  name: Berlin
schedules:
  tables:
    day:
      - [0.0, 0.5, 0.4, 0, false]
      - [1.0, 0.3, 0.3, 250, true]
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "./daylightd.sqlite", cfg.Database.Path)
	assert.Equal(t, ProviderAstro, cfg.Weather.Provider)
	assert.Equal(t, "Berlin", cfg.Weather.City)
	assert.Equal(t, 10*time.Second, cfg.Weather.Timeout.Duration())
	assert.Equal(t, 5*time.Second, cfg.Weather.RefreshSkew.Duration())
	assert.Equal(t, PresenceStatic, cfg.Presence.Source)
	assert.True(t, cfg.Presence.Initial())
	assert.Equal(t, 15*time.Second, cfg.Control.TickInterval.Duration())
	assert.Equal(t, 1500*time.Millisecond, cfg.Control.IdlePollInterval.Duration())
	assert.Equal(t, 10.0, cfg.Hue.RateLimitRPS)
	assert.Equal(t, 30*24*time.Hour, cfg.Ledger.Retention())
	assert.Equal(t, 9090, cfg.Healthcheck.Port)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout.Duration())
}

func TestParse_KeyframeForms(t *testing.T) {
	cfg, err := Parse([]byte(`
geo:
  lat: 52.52
  lon: 13.40
schedules:
  default: day
  bindings:
    "3": night
  tables:
    day:
      - [0.5, 0.4, 0.35, 125, 1]
      - {phase: 0.75, x: 0.45, y: 0.41, bri: 200, on: true}
    night:
      - phase: 0
        x: 0.5
        y: 0.4
        bri: 20
`))
	require.NoError(t, err)

	assert.Equal(t, []KeyframeConfig{
		{Phase: 0.5, X: 0.4, Y: 0.35, Bri: 125, On: true},
		{Phase: 0.75, X: 0.45, Y: 0.41, Bri: 200, On: true},
	}, cfg.Schedules.Tables["day"])
	assert.Equal(t, []KeyframeConfig{{Phase: 0, X: 0.5, Y: 0.4, Bri: 20}}, cfg.Schedules.Tables["night"])
	assert.Equal(t, "day", cfg.Schedules.Default)
	assert.Equal(t, map[string]string{"3": "night"}, cfg.Schedules.Bindings)
}

func TestParse_BadKeyframes(t *testing.T) {
	for name, doc := range map[string]string{
		"short tuple": "geo: {name: x}\nschedules:\n  tables:\n    a:\n      - [0.5, 0.4, 0.35]\n",
		"bad flag":    "geo: {name: x}\nschedules:\n  tables:\n    a:\n      - [0.5, 0.4, 0.35, 1, 7]\n",
		"bad number":  "geo: {name: x}\nschedules:\n  tables:\n    a:\n      - [soon, 0.4, 0.35, 1, true]\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_Validation(t *testing.T) {
	tests := map[string]string{
		"no schedules":       "geo: {name: Berlin}\n",
		"unknown provider":   "geo: {name: Berlin}\nweather: {provider: sundial}\nschedules: {script: main.lua}\n",
		"owm without key":    "geo: {name: Berlin}\nweather: {provider: openweathermap}\nschedules: {script: main.lua}\n",
		"astro without geo":  "weather: {provider: astro}\nschedules: {script: main.lua}\n",
		"mqtt without topic": "geo: {name: Berlin}\npresence: {source: mqtt, mqtt: {broker: 'tcp://h:1883'}}\nschedules: {script: main.lua}\n",
		"unknown presence":   "geo: {name: Berlin}\npresence: {source: camera}\nschedules: {script: main.lua}\n",
		"bad timezone":       "geo: {name: Berlin, timezone: Mars/Olympus}\nschedules: {script: main.lua}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_WeatherKeySelectsFallback(t *testing.T) {
	cfg, err := Parse([]byte("geo: {name: Berlin}\nweather: {api_key: abc}\nschedules: {script: main.lua}\n"))
	require.NoError(t, err)
	assert.Equal(t, ProviderFallback, cfg.Weather.Provider)
}

func TestParse_PresenceInitial(t *testing.T) {
	cfg, err := Parse([]byte("geo: {name: Berlin}\npresence: {source: webhook, present: false}\nschedules: {script: main.lua}\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Presence.Initial())
	assert.Equal(t, 8081, cfg.Presence.Webhook.Port)
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("DAYLIGHTD_TEST_TOKEN", "secret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := "hue:\n  token: ${DAYLIGHTD_TEST_TOKEN}\n  bridge: ${DAYLIGHTD_TEST_BRIDGE:192.168.1.2}\n" + minimal
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Hue.Token)
	assert.Equal(t, "192.168.1.2", cfg.Hue.Bridge)
	assert.Equal(t, path, cfg.Path)
}

func TestDuration_Invalid(t *testing.T) {
	_, err := Parse([]byte("control: {tick_interval: soon}\n" + minimal))
	assert.Error(t, err)
}
