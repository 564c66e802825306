package heartbeat

import (
	"errors"
	"time"

	"github.com/vinayprograms/pulselink/config"
	plerrors "github.com/vinayprograms/pulselink/errors"
)

// Common errors.
var (
	ErrAlreadyStarted = errors.New("heartbeat already started")
	ErrNotStarted     = errors.New("heartbeat not started")
)

// Config configures a heartbeat monitor.
type Config struct {
	// Interval between heartbeats.
	// Default: 5 seconds
	Interval time.Duration

	// Window is the maximum silence before the link is presumed stale.
	// Zero means 3x Interval. Negative disables the check.
	Window time.Duration

	// CheckInterval for the staleness checker.
	// Default: min(1s, Window/4)
	CheckInterval time.Duration

	// Send emits one heartbeat. Errors equal to transport.ErrClosed are ignored.
	Send func() error
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Send == nil {
		return plerrors.InvalidConfig("heartbeat: send function is required")
	}
	if c.Interval < 0 {
		return plerrors.InvalidConfig("heartbeat: interval must not be negative")
	}
	interval := c.Interval
	if interval == 0 {
		interval = DefaultConfig().Interval
	}
	if c.Window > 0 && c.Window < interval {
		return plerrors.InvalidConfig("heartbeat: liveness window shorter than interval",
			plerrors.WithMetadata("window", c.Window.String()),
			plerrors.WithMetadata("interval", interval.String()))
	}
	if c.CheckInterval < 0 {
		return plerrors.InvalidConfig("heartbeat: check interval must not be negative")
	}
	return nil
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Second,
		Window:   15 * time.Second,
	}
}

// FromConfig maps file configuration. Send is left for the caller.
func FromConfig(c config.HeartbeatConfig) Config {
	return Config{
		Interval:      c.Interval,
		Window:        c.LivenessWindow,
		CheckInterval: c.CheckInterval,
	}
}

// withDefaults fills zero values.
func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultConfig().Interval
	}
	if c.Window == 0 {
		c.Window = 3 * c.Interval
	}
	if c.CheckInterval <= 0 && c.Window > 0 {
		c.CheckInterval = c.Window / 4
		if c.CheckInterval > time.Second {
			c.CheckInterval = time.Second
		}
	}
	return c
}
