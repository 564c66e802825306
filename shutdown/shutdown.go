package shutdown

import (
	"context"
	"errors"
	"time"

	"github.com/vinayprograms/pulselink/logging"
)

// Common errors.
var (
	ErrAlreadyShutdown = errors.New("shutdown already initiated")
	ErrTimeout         = errors.New("shutdown timeout exceeded")
	ErrHookFailed      = errors.New("one or more shutdown hooks failed")
)

// Standard phases. Lower phases run first.
const (
	PhaseLinks     = 0
	PhaseTelemetry = 1
	PhaseLogs      = 2
)

// Hook releases one component. It should return once ctx is done.
type Hook func(ctx context.Context) error

// Config configures a Coordinator.
type Config struct {
	// Timeout bounds the whole shutdown when triggered by a signal or
	// ShutdownWithTimeout(0).
	// Default: 10 seconds
	Timeout time.Duration

	// StopOnError skips later phases once a hook fails.
	StopOnError bool

	Logger *logging.Logger
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Second,
	}
}

// HookResult records one hook's outcome.
type HookResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Result records a completed shutdown.
type Result struct {
	Duration time.Duration
	Hooks    []HookResult
	Err      error
}

// Failed returns the names of hooks that returned an error.
func (r *Result) Failed() []string {
	var names []string
	for _, h := range r.Hooks {
		if h.Err != nil {
			names = append(names, h.Name)
		}
	}
	return names
}

type hook struct {
	name  string
	phase int
	fn    Hook
}

// SyncLogger flushes logger buffers. Sync errors on terminals are ignored.
func SyncLogger(l *logging.Logger) Hook {
	return func(context.Context) error {
		_ = l.Sync()
		return nil
	}
}
