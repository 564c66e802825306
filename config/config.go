// Package config loads pulselink configuration from TOML with environment
// overrides.
//
// Values are resolved in order: Default(), then the TOML file (if any), then
// environment variables prefixed PULSELINK with '.' replaced by '_'
// (for example PULSELINK_HEARTBEAT_INTERVAL=2s), then Validate().
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/vinayprograms/pulselink/errors"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "PULSELINK"

// Config is the root configuration.
type Config struct {
	Client    ClientConfig    `toml:"client"`
	Acceptor  AcceptorConfig  `toml:"acceptor"`
	Heartbeat HeartbeatConfig `toml:"heartbeat"`
	Reconnect ReconnectConfig `toml:"reconnect"`
	Transport TransportConfig `toml:"transport"`

	// Codec selects the envelope encoding: "json" (wire default), "cbor" or "msgpack".
	Codec string `toml:"codec"`

	Log       LogConfig       `toml:"log"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Bus       BusConfig       `toml:"bus"`
}

// ClientConfig configures the dialing side.
type ClientConfig struct {
	// URL of the acceptor endpoint.
	URL string `toml:"url"`

	// ID is the stable connection identity. Empty means generate one.
	ID string `toml:"id"`
}

// AcceptorConfig configures the accepting side.
type AcceptorConfig struct {
	// Listen address, e.g. ":8080".
	Listen string `toml:"listen"`

	// Path of the upgrade endpoint.
	Path string `toml:"path"`

	// AllowedOrigins for CORS and the websocket origin check. Empty allows all.
	AllowedOrigins []string `toml:"allowed_origins"`

	// AcceptBurst upgrades are admitted per client IP every AcceptWindow.
	// Zero disables admission limiting.
	AcceptBurst  int           `toml:"accept_burst"`
	AcceptWindow time.Duration `toml:"accept_window"`
}

// HeartbeatConfig configures heartbeat emission and liveness.
type HeartbeatConfig struct {
	Interval       time.Duration `toml:"interval"`
	LivenessWindow time.Duration `toml:"liveness_window"`

	// CheckInterval is how often the liveness window is evaluated.
	// Zero derives it from the window.
	CheckInterval time.Duration `toml:"check_interval"`
}

// ReconnectConfig selects the reconnection policy.
type ReconnectConfig struct {
	// Policy is "fixed" or "backoff".
	Policy string `toml:"policy"`

	// Delay for the fixed policy.
	Delay time.Duration `toml:"delay"`

	// Initial, Max and Jitter for the backoff policy.
	Initial time.Duration `toml:"initial"`
	Max     time.Duration `toml:"max"`
	Jitter  time.Duration `toml:"jitter"`
}

// TransportConfig tunes the websocket transport.
type TransportConfig struct {
	WriteTimeout     time.Duration `toml:"write_timeout"`
	HandshakeTimeout time.Duration `toml:"handshake_timeout"`
	MaxMessageSize   int64         `toml:"max_message_size"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `toml:"level"`
	// Format: console or json
	Format string `toml:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs []string `toml:"outputs"`

	Rotation    RotationConfig `toml:"rotation"`
	Development bool           `toml:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `toml:"enable"`
	Filename   string `toml:"filename"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// MetricsConfig controls the Prometheus endpoint on the acceptor.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled"`
	Endpoint    string `toml:"endpoint"`
	Protocol    string `toml:"protocol"`
	Insecure    bool   `toml:"insecure"`
	ServiceName string `toml:"service_name"`
}

// BusConfig selects where the acceptor forwards received data.
type BusConfig struct {
	// Kind is "none", "memory" or "nats".
	Kind    string `toml:"kind"`
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			URL: "ws://localhost:8080/ws",
		},
		Acceptor: AcceptorConfig{
			Listen:       ":8080",
			Path:         "/ws",
			AcceptBurst:  20,
			AcceptWindow: 10 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			Interval:       5 * time.Second,
			LivenessWindow: 15 * time.Second,
		},
		Reconnect: ReconnectConfig{
			Policy:  "fixed",
			Delay:   1 * time.Second,
			Initial: 500 * time.Millisecond,
			Max:     30 * time.Second,
			Jitter:  100 * time.Millisecond,
		},
		Transport: TransportConfig{
			WriteTimeout:     10 * time.Second,
			HandshakeTimeout: 5 * time.Second,
			MaxMessageSize:   1024 * 1024,
		},
		Codec: "json",
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stdout"},
			Rotation: RotationConfig{
				Filename:   "logs/pulselink.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "pulselink",
		},
		Bus: BusConfig{
			Kind:    "none",
			Subject: "pulselink.data",
		},
	}
}

// Load reads configuration from path (if non-empty), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, errors.InvalidConfig(fmt.Sprintf("decode %s", path), errors.WithCause(err))
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML content over the defaults without reading the environment.
func Parse(content string) (*Config, error) {
	cfg := Default()
	if _, err := toml.Decode(content, cfg); err != nil {
		return nil, errors.InvalidConfig("decode config", errors.WithCause(err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Heartbeat.Interval <= 0 {
		return errors.InvalidConfig("heartbeat.interval must be positive")
	}
	if c.Heartbeat.LivenessWindow > 0 && c.Heartbeat.LivenessWindow < c.Heartbeat.Interval {
		return errors.InvalidConfig("heartbeat.liveness_window must be at least heartbeat.interval")
	}
	if c.Acceptor.AcceptBurst < 0 || c.Acceptor.AcceptWindow < 0 {
		return errors.InvalidConfig("acceptor.accept_burst and acceptor.accept_window must not be negative")
	}
	switch strings.ToLower(c.Reconnect.Policy) {
	case "fixed":
		if c.Reconnect.Delay <= 0 {
			return errors.InvalidConfig("reconnect.delay must be positive")
		}
	case "backoff":
		if c.Reconnect.Initial <= 0 || c.Reconnect.Max < c.Reconnect.Initial {
			return errors.InvalidConfig("reconnect.initial must be positive and not above reconnect.max")
		}
	default:
		return errors.InvalidConfig(fmt.Sprintf("unknown reconnect.policy %q", c.Reconnect.Policy))
	}
	switch strings.ToLower(c.Codec) {
	case "json", "cbor", "msgpack":
	default:
		return errors.InvalidConfig(fmt.Sprintf("unknown codec %q", c.Codec))
	}
	switch strings.ToLower(c.Bus.Kind) {
	case "", "none", "memory":
	case "nats":
		if c.Bus.URL == "" {
			return errors.InvalidConfig("bus.url is required for nats")
		}
	default:
		return errors.InvalidConfig(fmt.Sprintf("unknown bus.kind %q", c.Bus.Kind))
	}
	return nil
}

// envKeys lists every key that may be overridden from the environment.
var envKeys = []string{
	"client.url",
	"client.id",
	"acceptor.listen",
	"acceptor.path",
	"acceptor.accept_burst",
	"acceptor.accept_window",
	"heartbeat.interval",
	"heartbeat.liveness_window",
	"heartbeat.check_interval",
	"reconnect.policy",
	"reconnect.delay",
	"reconnect.initial",
	"reconnect.max",
	"reconnect.jitter",
	"codec",
	"log.level",
	"log.format",
	"metrics.enabled",
	"telemetry.enabled",
	"telemetry.endpoint",
	"bus.kind",
	"bus.url",
	"bus.subject",
}

func applyEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return errors.InvalidConfig("bind env "+key, errors.WithCause(err))
		}
	}

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v.IsSet(key) {
			*dst = v.GetDuration(key)
		}
	}
	flag := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	str("client.url", &cfg.Client.URL)
	str("client.id", &cfg.Client.ID)
	str("acceptor.listen", &cfg.Acceptor.Listen)
	str("acceptor.path", &cfg.Acceptor.Path)
	if v.IsSet("acceptor.accept_burst") {
		cfg.Acceptor.AcceptBurst = v.GetInt("acceptor.accept_burst")
	}
	dur("acceptor.accept_window", &cfg.Acceptor.AcceptWindow)
	dur("heartbeat.interval", &cfg.Heartbeat.Interval)
	dur("heartbeat.liveness_window", &cfg.Heartbeat.LivenessWindow)
	dur("heartbeat.check_interval", &cfg.Heartbeat.CheckInterval)
	str("reconnect.policy", &cfg.Reconnect.Policy)
	dur("reconnect.delay", &cfg.Reconnect.Delay)
	dur("reconnect.initial", &cfg.Reconnect.Initial)
	dur("reconnect.max", &cfg.Reconnect.Max)
	dur("reconnect.jitter", &cfg.Reconnect.Jitter)
	str("codec", &cfg.Codec)
	str("log.level", &cfg.Log.Level)
	str("log.format", &cfg.Log.Format)
	flag("metrics.enabled", &cfg.Metrics.Enabled)
	flag("telemetry.enabled", &cfg.Telemetry.Enabled)
	str("telemetry.endpoint", &cfg.Telemetry.Endpoint)
	str("bus.kind", &cfg.Bus.Kind)
	str("bus.url", &cfg.Bus.URL)
	str("bus.subject", &cfg.Bus.Subject)
	return nil
}
