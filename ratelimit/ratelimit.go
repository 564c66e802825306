package ratelimit

import (
	"errors"
	"sync"
	"time"

	"github.com/vinayprograms/pulselink/config"
	plerrors "github.com/vinayprograms/pulselink/errors"
)

// Common errors.
var (
	ErrLimited = errors.New("rate limit exceeded")
)

// Config configures a Limiter.
type Config struct {
	// Capacity is the burst size and the number of tokens per Window.
	// Zero disables limiting.
	Capacity int

	// Window is the refill period.
	// Default: 1 minute
	Window time.Duration
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Capacity < 0 {
		return plerrors.InvalidConfig("ratelimit: capacity must not be negative")
	}
	if c.Window < 0 {
		return plerrors.InvalidConfig("ratelimit: window must not be negative")
	}
	return nil
}

// FromConfig maps the acceptor admission settings.
func FromConfig(c config.AcceptorConfig) Config {
	return Config{Capacity: c.AcceptBurst, Window: c.AcceptWindow}
}

// bucket is a token bucket for one key.
type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter keeps a token bucket per key. It is safe for concurrent use.
// A nil Limiter allows everything.
type Limiter struct {
	capacity float64
	window   time.Duration

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
	nowFunc   func() time.Time // for testing
}

// New creates a limiter. It returns nil when cfg disables limiting.
func New(cfg Config) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Capacity == 0 {
		return nil, nil
	}
	if cfg.Window == 0 {
		cfg.Window = time.Minute
	}
	return &Limiter{
		capacity: float64(cfg.Capacity),
		window:   cfg.Window,
		buckets:  make(map[string]*bucket),
		nowFunc:  time.Now,
	}, nil
}

// Allow takes one token for key and reports whether it was available.
func (l *Limiter) Allow(key string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, lastRefill: now}
		l.buckets[key] = b
	}
	l.refill(b, now)

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Available returns the whole tokens left for key.
func (l *Limiter) Available(key string) int {
	if l == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		return int(l.capacity)
	}
	l.refill(b, l.nowFunc())
	return int(b.tokens)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// refill adds tokens for the time elapsed since the last refill.
func (l *Limiter) refill(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.tokens += l.capacity * float64(elapsed) / float64(l.window)
	if b.tokens > l.capacity {
		b.tokens = l.capacity
	}
	b.lastRefill = now
}

// sweep drops buckets that have refilled completely, at most once per window.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		l.refill(b, now)
		if b.tokens >= l.capacity {
			delete(l.buckets, key)
		}
	}
}
