package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/vinayprograms/pulselink/logging"
)

// Coordinator runs registered hooks once, phase by phase.
type Coordinator struct {
	config Config
	logger *logging.Logger

	mu    sync.Mutex
	hooks []hook

	once   sync.Once
	done   chan struct{}
	result *Result
}

// New creates a coordinator.
func New(cfg Config) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Coordinator{
		config: cfg,
		logger: logger.WithComponent("shutdown"),
		done:   make(chan struct{}),
	}
}

// Register adds fn under phase. Hooks registered after shutdown began
// are not run.
func (c *Coordinator) Register(name string, phase int, fn Hook) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook{name: name, phase: phase, fn: fn})
}

// Shutdown runs every phase. Only the first call runs hooks; later calls
// return ErrAlreadyShutdown once the first completes.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	first := false
	c.once.Do(func() {
		first = true
		c.result = c.run(ctx)
		close(c.done)
	})
	if !first {
		<-c.done
		return ErrAlreadyShutdown
	}
	return c.result.Err
}

// ShutdownWithTimeout runs Shutdown under a deadline. Zero uses the
// configured timeout.
func (c *Coordinator) ShutdownWithTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// HandleSignals shuts down on SIGINT or SIGTERM, or when parent is done.
// The returned context is canceled as soon as shutdown starts so long
// running loops can observe it.
func (c *Coordinator) HandleSignals(parent context.Context) context.Context {
	return c.handle(parent, syscall.SIGINT, syscall.SIGTERM)
}

func (c *Coordinator) handle(parent context.Context, sigs ...os.Signal) context.Context {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	go func() {
		defer signal.Stop(ch)
		select {
		case sig := <-ch:
			c.logger.Info("signal received", map[string]interface{}{"signal": sig.String()})
		case <-ctx.Done():
		case <-c.done:
			cancel()
			return
		}
		cancel()
		c.ShutdownWithTimeout(0)
	}()
	return ctx
}

// Done is closed when shutdown completes.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the shutdown error, or nil before completion.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
		return c.result.Err
	default:
		return nil
	}
}

// Result returns the detailed outcome, or nil before completion.
func (c *Coordinator) Result() *Result {
	select {
	case <-c.done:
		return c.result
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) *Result {
	start := time.Now()

	c.mu.Lock()
	hooks := append([]hook(nil), c.hooks...)
	c.mu.Unlock()

	sort.SliceStable(hooks, func(i, j int) bool {
		return hooks[i].phase < hooks[j].phase
	})

	res := &Result{Hooks: make([]HookResult, 0, len(hooks))}
	c.logger.Info("shutdown started", map[string]interface{}{"hooks": len(hooks)})

	for _, group := range phases(hooks) {
		if ctx.Err() != nil {
			res.Err = ErrTimeout
			break
		}

		results := c.runPhase(ctx, group)
		res.Hooks = append(res.Hooks, results...)

		failed := false
		for _, r := range results {
			if r.Err != nil {
				failed = true
			}
		}
		if failed {
			res.Err = ErrHookFailed
			if c.config.StopOnError {
				break
			}
		}
	}

	res.Duration = time.Since(start)
	fields := map[string]interface{}{"duration_ms": res.Duration.Milliseconds()}
	if res.Err != nil {
		fields["error"] = res.Err.Error()
		fields["failed"] = res.Failed()
		c.logger.Warn("shutdown finished with errors", fields)
	} else {
		c.logger.Info("shutdown complete", fields)
	}
	return res
}

// runPhase runs hooks concurrently and keeps registration order in results.
func (c *Coordinator) runPhase(ctx context.Context, group []hook) []HookResult {
	results := make([]HookResult, len(group))
	var wg sync.WaitGroup

	for i, h := range group {
		wg.Add(1)
		go func() {
			defer wg.Done()
			began := time.Now()
			err := h.fn(ctx)
			results[i] = HookResult{
				Name:     h.name,
				Phase:    h.phase,
				Duration: time.Since(began),
				Err:      err,
			}

			fields := map[string]interface{}{
				"hook":        h.name,
				"phase":       h.phase,
				"duration_ms": results[i].Duration.Milliseconds(),
			}
			if err != nil {
				fields["error"] = err.Error()
				c.logger.Warn("shutdown hook failed", fields)
				return
			}
			c.logger.Debug("shutdown hook done", fields)
		}()
	}

	wg.Wait()
	return results
}

// phases splits phase-sorted hooks into groups.
func phases(hooks []hook) [][]hook {
	var groups [][]hook
	for i, h := range hooks {
		if i == 0 || h.phase != hooks[i-1].phase {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], h)
	}
	return groups
}
