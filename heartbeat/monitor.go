package heartbeat

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/pulselink/transport"
)

// Monitor emits heartbeats and checks liveness for one open period.
type Monitor struct {
	interval      time.Duration
	window        time.Duration
	checkInterval time.Duration
	send          func() error

	lastReceive atomic.Int64 // unix nanos
	lastSend    atomic.Int64
	sent        atomic.Int64
	failures    atomic.Int64

	expireOnce sync.Once
	expired    chan struct{}

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewMonitor creates a heartbeat monitor.
func NewMonitor(cfg Config) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	m := &Monitor{
		interval:      cfg.Interval,
		window:        cfg.Window,
		checkInterval: cfg.CheckInterval,
		send:          cfg.Send,
		expired:       make(chan struct{}),
	}
	now := time.Now().UnixNano()
	m.lastReceive.Store(now)
	m.lastSend.Store(now)
	return m, nil
}

// Start begins emitting and checking.
// Liveness timestamps are reset to now.
func (m *Monitor) Start() error {
	if m.running.Swap(true) {
		return ErrAlreadyStarted
	}

	now := time.Now().UnixNano()
	m.lastReceive.Store(now)
	m.lastSend.Store(now)

	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.run()
	return nil
}

// Stop halts the monitor and waits for its goroutine to exit.
// No heartbeat is emitted after Stop returns.
func (m *Monitor) Stop() error {
	if !m.running.Swap(false) {
		return ErrNotStarted
	}
	close(m.stopCh)
	<-m.doneCh
	return nil
}

// Running reports whether the monitor is started.
func (m *Monitor) Running() bool {
	return m.running.Load()
}

func (m *Monitor) run() {
	defer close(m.doneCh)

	sendTicker := time.NewTicker(m.interval)
	defer sendTicker.Stop()

	var checkC <-chan time.Time
	if m.window > 0 {
		checkTicker := time.NewTicker(m.checkInterval)
		defer checkTicker.Stop()
		checkC = checkTicker.C
	}

	for {
		select {
		case <-m.stopCh:
			return
		case <-sendTicker.C:
			m.emit()
		case <-checkC:
			if !m.IsAlive() {
				m.expire()
				checkC = nil
			}
		}
	}
}

// emit sends one heartbeat.
func (m *Monitor) emit() {
	err := m.send()
	switch {
	case err == nil:
		m.sent.Add(1)
		m.MarkSent()
	case errors.Is(err, transport.ErrClosed):
		// link is going away; the owner will stop us
	default:
		m.failures.Add(1)
	}
}

func (m *Monitor) expire() {
	m.expireOnce.Do(func() {
		close(m.expired)
	})
}

// Touch records that something was received.
func (m *Monitor) Touch() {
	m.lastReceive.Store(time.Now().UnixNano())
}

// MarkSent records that something was sent.
func (m *Monitor) MarkSent() {
	m.lastSend.Store(time.Now().UnixNano())
}

// LastReceive returns the time of the last Touch.
func (m *Monitor) LastReceive() time.Time {
	return time.Unix(0, m.lastReceive.Load())
}

// LastSend returns the time of the last emitted heartbeat or MarkSent.
func (m *Monitor) LastSend() time.Time {
	return time.Unix(0, m.lastSend.Load())
}

// IsAlive reports whether the last receive is within the window.
// Always true when the check is disabled.
func (m *Monitor) IsAlive() bool {
	if m.window < 0 {
		return true
	}
	return time.Since(m.LastReceive()) <= m.window
}

// Expired is closed once when the liveness window is exceeded.
func (m *Monitor) Expired() <-chan struct{} {
	return m.expired
}

// Sent returns the number of heartbeats emitted successfully.
func (m *Monitor) Sent() int64 {
	return m.sent.Load()
}

// Failures returns the number of heartbeats whose send failed.
func (m *Monitor) Failures() int64 {
	return m.failures.Load()
}

// Interval returns the emission interval.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Window returns the liveness window; negative when disabled.
func (m *Monitor) Window() time.Duration {
	return m.window
}
