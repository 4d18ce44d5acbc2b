package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Hue             HueConfig         `yaml:"hue"`
	Geo             GeoConfig         `yaml:"geo"`
	Weather         WeatherConfig     `yaml:"weather"`
	Presence        PresenceConfig    `yaml:"presence"`
	Control         ControlConfig     `yaml:"control"`
	Schedules       SchedulesConfig   `yaml:"schedules"`
	Database        DatabaseConfig    `yaml:"database"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	Log             LogConfig         `yaml:"log"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops

	// Path is the file the config was loaded from; relative script paths resolve against it.
	Path string `yaml:"-"`
}

// HueConfig contains Hue bridge connection settings
type HueConfig struct {
	Bridge         string   `yaml:"bridge"` // Empty = discover on the local network
	Token          string   `yaml:"token"`
	Timeout        Duration `yaml:"timeout"` // Per-request timeout for bridge calls
	Lights         []string `yaml:"lights"`  // Light ids to drive; empty = every light on the bridge
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	Transition     Duration `yaml:"transition"`
	ResendInterval Duration `yaml:"resend_interval"` // 0 = push every tick
}

// GeoConfig contains location settings for sun times
type GeoConfig struct {
	Name         string   `yaml:"name"`
	Timezone     string   `yaml:"timezone"`
	Lat          float64  `yaml:"lat,omitempty"`
	Lon          float64  `yaml:"lon,omitempty"`
	HTTPTimeout  Duration `yaml:"http_timeout"` // Timeout for geocoding HTTP requests
	NominatimURL string   `yaml:"nominatim_url"`
}

// HasCoordinates reports whether lat/lon were configured.
func (g GeoConfig) HasCoordinates() bool {
	return g.Lat != 0 || g.Lon != 0
}

// Sun-time providers.
const (
	ProviderOpenWeatherMap = "openweathermap"
	ProviderAstro          = "astro"
	ProviderFallback       = "fallback"
)

// WeatherConfig selects where sunrise and sunset come from
type WeatherConfig struct {
	Provider    string   `yaml:"provider"`
	APIKey      string   `yaml:"api_key"`
	City        string   `yaml:"city"` // Defaults to geo.name
	URL         string   `yaml:"url"`
	Timeout     Duration `yaml:"timeout"`
	RefreshSkew Duration `yaml:"refresh_skew"` // Delay past local midnight before refetching
}

// Presence sources.
const (
	PresenceStatic  = "static"
	PresenceMQTT    = "mqtt"
	PresenceWebhook = "webhook"
)

// PresenceConfig selects the presence sensor
type PresenceConfig struct {
	Source  string        `yaml:"source"`
	Present *bool         `yaml:"present"` // Static value, and the initial value for other sources
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// Initial returns the configured presence value, defaulting to present.
func (p PresenceConfig) Initial() bool {
	if p.Present == nil {
		return true
	}
	return *p.Present
}

// MQTTConfig contains MQTT occupancy sensor settings
type MQTTConfig struct {
	Broker      string   `yaml:"broker"`
	ClientID    string   `yaml:"client_id"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	Topic       string   `yaml:"topic"`
	QoS         int      `yaml:"qos"`
	ExpireAfter Duration `yaml:"expire_after"` // 0 = readings never expire
}

// WebhookConfig contains presence webhook server settings
type WebhookConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	ExpireAfter Duration `yaml:"expire_after"`
}

// ControlConfig contains control loop timing
type ControlConfig struct {
	TickInterval     Duration `yaml:"tick_interval"`
	IdlePollInterval Duration `yaml:"idle_poll_interval"`
}

// SchedulesConfig holds the keyframe tables and light bindings
type SchedulesConfig struct {
	Script   string                      `yaml:"script"`  // Lua script defining tables; replaces the fields below
	Default  string                      `yaml:"default"` // Table for lights without a binding
	Tables   map[string][]KeyframeConfig `yaml:"tables"`
	Bindings map[string]string           `yaml:"bindings"` // light id -> table name
}

// KeyframeConfig is one keyframe, written either as a mapping
// {phase, x, y, bri, on} or as a tuple [phase, x, y, bri, on].
type KeyframeConfig struct {
	Phase float64 `yaml:"phase"`
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Bri   int     `yaml:"bri"`
	On    bool    `yaml:"on"`
}

// UnmarshalYAML implements yaml.Unmarshaler for KeyframeConfig
func (k *KeyframeConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		if len(value.Content) != 5 {
			return fmt.Errorf("line %d: keyframe tuple needs 5 values [phase, x, y, bri, on], got %d", value.Line, len(value.Content))
		}
		c := value.Content
		if err := c[0].Decode(&k.Phase); err != nil {
			return err
		}
		if err := c[1].Decode(&k.X); err != nil {
			return err
		}
		if err := c[2].Decode(&k.Y); err != nil {
			return err
		}
		if err := c[3].Decode(&k.Bri); err != nil {
			return err
		}
		on, err := decodeFlag(c[4])
		if err != nil {
			return err
		}
		k.On = on
		return nil
	}

	type plain KeyframeConfig
	return value.Decode((*plain)(k))
}

// decodeFlag accepts a YAML bool or 0/1.
func decodeFlag(node *yaml.Node) (bool, error) {
	var b bool
	if err := node.Decode(&b); err == nil {
		return b, nil
	}
	var n int
	if err := node.Decode(&n); err != nil {
		return false, fmt.Errorf("line %d: on must be a bool or 0/1", node.Line)
	}
	switch n {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("line %d: on must be a bool or 0/1, got %d", node.Line, n)
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// Retention returns the retention window as a duration
func (c LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	return cfg, nil
}

// Parse parses configuration from YAML, expanding environment variables and
// filling in defaults.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./daylightd.sqlite"
	}

	// Hue defaults
	if cfg.Hue.Timeout == 0 {
		cfg.Hue.Timeout = Duration(10 * time.Second)
	}
	if cfg.Hue.RateLimitRPS == 0 {
		cfg.Hue.RateLimitRPS = 10.0 // 10 requests per second
	}

	// Geo defaults
	if cfg.Geo.Timezone == "" {
		cfg.Geo.Timezone = "Local"
	}
	if cfg.Geo.HTTPTimeout == 0 {
		cfg.Geo.HTTPTimeout = Duration(10 * time.Second)
	}

	// Weather defaults: OpenWeatherMap when a key is present, offline otherwise
	if cfg.Weather.Provider == "" {
		if cfg.Weather.APIKey != "" {
			cfg.Weather.Provider = ProviderFallback
		} else {
			cfg.Weather.Provider = ProviderAstro
		}
	}
	if cfg.Weather.City == "" {
		cfg.Weather.City = cfg.Geo.Name
	}
	if cfg.Weather.Timeout == 0 {
		cfg.Weather.Timeout = Duration(10 * time.Second)
	}
	if cfg.Weather.RefreshSkew == 0 {
		cfg.Weather.RefreshSkew = Duration(5 * time.Second)
	}

	// Presence defaults
	if cfg.Presence.Source == "" {
		cfg.Presence.Source = PresenceStatic
	}
	if cfg.Presence.Webhook.Host == "" {
		cfg.Presence.Webhook.Host = "0.0.0.0"
	}
	if cfg.Presence.Webhook.Port == 0 {
		cfg.Presence.Webhook.Port = 8081
	}

	// Control loop defaults
	if cfg.Control.TickInterval == 0 {
		cfg.Control.TickInterval = Duration(15 * time.Second)
	}
	if cfg.Control.IdlePollInterval == 0 {
		cfg.Control.IdlePollInterval = Duration(1500 * time.Millisecond)
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate checks settings that cannot be defaulted.
func (cfg *Config) Validate() error {
	if _, err := time.LoadLocation(cfg.Geo.Timezone); err != nil {
		return fmt.Errorf("geo.timezone: %w", err)
	}

	switch cfg.Weather.Provider {
	case ProviderOpenWeatherMap, ProviderFallback:
		if cfg.Weather.APIKey == "" {
			return fmt.Errorf("weather.api_key is required for provider %q", cfg.Weather.Provider)
		}
		if cfg.Weather.City == "" && !cfg.Geo.HasCoordinates() {
			return fmt.Errorf("weather.city, geo.name or geo.lat/lon is required for provider %q", cfg.Weather.Provider)
		}
	case ProviderAstro:
		if cfg.Geo.Name == "" && !cfg.Geo.HasCoordinates() {
			return fmt.Errorf("geo.name or geo.lat/lon is required for provider %q", ProviderAstro)
		}
	default:
		return fmt.Errorf("unknown weather.provider %q", cfg.Weather.Provider)
	}

	switch cfg.Presence.Source {
	case PresenceStatic, PresenceWebhook:
	case PresenceMQTT:
		if cfg.Presence.MQTT.Broker == "" || cfg.Presence.MQTT.Topic == "" {
			return fmt.Errorf("presence.mqtt.broker and presence.mqtt.topic are required")
		}
		if cfg.Presence.MQTT.QoS < 0 || cfg.Presence.MQTT.QoS > 2 {
			return fmt.Errorf("presence.mqtt.qos must be 0, 1 or 2")
		}
	default:
		return fmt.Errorf("unknown presence.source %q", cfg.Presence.Source)
	}

	if cfg.Control.TickInterval < 0 || cfg.Control.IdlePollInterval < 0 {
		return fmt.Errorf("control intervals must be positive")
	}

	if cfg.Schedules.Script == "" && len(cfg.Schedules.Tables) == 0 {
		return fmt.Errorf("schedules: define at least one table or a script")
	}
	return nil
}

// Location returns the configured timezone.
func (cfg *Config) Location() *time.Location {
	loc, err := time.LoadLocation(cfg.Geo.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
