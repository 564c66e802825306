// Package reconnect decides how long a connection waits before redialing
// after an abnormal closure.
//
// A Policy is a pure function of the attempt number. It is never consulted
// after a normal closure; the connection engine stops instead.
package reconnect

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/vinayprograms/pulselink/config"
	"github.com/vinayprograms/pulselink/errors"
)

// Policy maps a 1-based attempt number to a retry delay.
type Policy interface {
	NextDelay(attempt int) time.Duration
}

// Fixed waits the same delay before every attempt.
type Fixed struct {
	Delay time.Duration
}

// DefaultDelay is the fixed policy delay when none is configured.
const DefaultDelay = time.Second

// NextDelay implements Policy.
func (f Fixed) NextDelay(int) time.Duration {
	if f.Delay <= 0 {
		return DefaultDelay
	}
	return f.Delay
}

// Backoff doubles the delay per attempt from Initial up to Max, then adds
// uniform jitter in [0, Jitter).
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  time.Duration

	// rand returns a value in [0, n). Nil uses math/rand/v2.
	rand func(n int64) int64
}

// NewBackoff creates a backoff policy.
func NewBackoff(initial, max, jitter time.Duration) *Backoff {
	return &Backoff{Initial: initial, Max: max, Jitter: jitter}
}

// NextDelay implements Policy.
func (b *Backoff) NextDelay(attempt int) time.Duration {
	initial := b.Initial
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	max := b.Max
	if max < initial {
		max = initial
	}
	if attempt < 1 {
		attempt = 1
	}

	d := initial
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return b.withJitter(d)
}

func (b *Backoff) withJitter(d time.Duration) time.Duration {
	if b.Jitter <= 0 {
		return d
	}
	r := b.rand
	if r == nil {
		r = rand.Int64N
	}
	return d + time.Duration(r(int64(b.Jitter)))
}

// FromConfig builds the configured policy.
func FromConfig(cfg config.ReconnectConfig) (Policy, error) {
	switch strings.ToLower(cfg.Policy) {
	case "", "fixed":
		return Fixed{Delay: cfg.Delay}, nil
	case "backoff":
		if cfg.Initial <= 0 || cfg.Max < cfg.Initial {
			return nil, errors.InvalidConfig("reconnect: initial must be positive and not above max")
		}
		return NewBackoff(cfg.Initial, cfg.Max, cfg.Jitter), nil
	default:
		return nil, errors.InvalidConfig("reconnect: unknown policy " + cfg.Policy)
	}
}
