package connection

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/pulselink/dispatch"
	"github.com/vinayprograms/pulselink/envelope"
	"github.com/vinayprograms/pulselink/errors"
	"github.com/vinayprograms/pulselink/heartbeat"
	"github.com/vinayprograms/pulselink/logging"
	"github.com/vinayprograms/pulselink/metrics"
	"github.com/vinayprograms/pulselink/reconnect"
	"github.com/vinayprograms/pulselink/telemetry"
	"github.com/vinayprograms/pulselink/transport"
)

// Common errors.
var (
	ErrAlreadyStarted = stderrors.New("connection already started")
	ErrNoDialer       = stderrors.New("connection has no dialer")
	ErrNilTransport   = stderrors.New("nil transport")
	ErrClosed         = stderrors.New("connection closed")
)

// Config configures a Connection.
type Config struct {
	// ID is the stable identity across reconnects. Empty generates a uuid.
	ID string

	// Role labels logs and metrics. Defaults to RoleClient with a Dialer,
	// RoleAcceptor without. Acceptors auto-ack every Data envelope.
	Role Role

	// Dialer establishes transports. Nil for accepted connections.
	Dialer transport.Dialer

	// Policy decides the delay before each redial.
	// Default: fixed 1s. Ignored without a Dialer.
	Policy reconnect.Policy

	// Codec encodes envelopes on the wire. Default: JSON.
	Codec envelope.Codec

	// Heartbeat configures emission and liveness. Send is ignored.
	Heartbeat heartbeat.Config

	Handlers dispatch.Handlers

	// OnTransition runs synchronously on the loop goroutine for every state change.
	// It must not block.
	OnTransition func(c *Connection, t Transition)

	// WatchBuffer sizes channels returned by Watch. Default: 16
	WatchBuffer int

	Logger  *logging.Logger
	Metrics *metrics.Recorder
	Tracer  *telemetry.Tracer
}

// Connection keeps one logical link alive across transport failures.
//
// All state changes happen on a single loop goroutine. Transport read pumps,
// dial goroutines and the heartbeat monitor only post events to it.
type Connection struct {
	id           string
	role         Role
	dialer       transport.Dialer
	policy       reconnect.Policy
	codec        envelope.Codec
	hbConfig     heartbeat.Config
	dispatcher   *dispatch.Dispatcher
	onTransition func(*Connection, Transition)
	watchBuffer  int

	logger  *logging.Logger
	metrics *metrics.Recorder
	tracer  *telemetry.Tracer

	events       chan event
	closeNotify  chan struct{}
	wantNormal   atomic.Bool
	wantAbnormal atomic.Bool
	started      atomic.Bool
	done         chan struct{}
	doneOnce     sync.Once

	mu       sync.RWMutex // guards state, tr, epoch, attempts
	state    State
	tr       transport.Transport
	epoch    uint64
	attempts int

	lastSend    atomic.Int64
	lastReceive atomic.Int64

	watchMu  sync.Mutex
	watchers []chan Transition
	watchEnd bool

	// Owned by the loop goroutine.
	ctx        context.Context
	monitor    *heartbeat.Monitor
	timer      *time.Timer
	dialCancel context.CancelFunc
}

// New creates a connection in the Init state.
func New(cfg Config) (*Connection, error) {
	hb := cfg.Heartbeat
	hb.Send = func() error { return nil }
	if err := hb.Validate(); err != nil {
		return nil, err
	}

	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}

	role := cfg.Role
	if role == "" {
		role = RoleAcceptor
		if cfg.Dialer != nil {
			role = RoleClient
		}
	}

	policy := cfg.Policy
	if policy == nil {
		policy = reconnect.Fixed{Delay: reconnect.DefaultDelay}
	}

	codec := cfg.Codec
	if codec == nil {
		codec = envelope.JSON()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.GetTracer()
	}

	watchBuffer := cfg.WatchBuffer
	if watchBuffer <= 0 {
		watchBuffer = 16
	}

	c := &Connection{
		id:           id,
		role:         role,
		dialer:       cfg.Dialer,
		policy:       policy,
		codec:        codec,
		hbConfig:     cfg.Heartbeat,
		onTransition: cfg.OnTransition,
		watchBuffer:  watchBuffer,
		logger:       logger.WithConnection(id),
		metrics:      cfg.Metrics,
		tracer:       tracer,
		events:       make(chan event, 64),
		closeNotify:  make(chan struct{}, 1),
		done:         make(chan struct{}),
		state:        StateInit,
	}
	c.dispatcher = dispatch.New(dispatch.Config{
		Handlers: cfg.Handlers,
		AutoAck:  role == RoleAcceptor,
		PeerID:   id,
		Role:     string(role),
		Logger:   logger,
		Metrics:  cfg.Metrics,
		Tracer:   tracer,
	})
	return c, nil
}

// Start begins dialing. The connection runs until Close(true) or ctx is done.
func (c *Connection) Start(ctx context.Context) error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go c.run(ctx, nil)
	return nil
}

// Serve adopts an already established transport and opens immediately.
// Accepted connections never redial; any closure is terminal.
func (c *Connection) Serve(ctx context.Context, tr transport.Transport) error {
	if tr == nil {
		return ErrNilTransport
	}
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go c.run(ctx, tr)
	return nil
}

// Close requests shutdown. A normal close ends the connection for good and
// releases the transport with code 1000. An abnormal close drops the current
// transport as a failure would; a dialing connection then redials.
// Close never blocks; wait on Done for completion.
func (c *Connection) Close(normal bool) {
	if normal && c.started.CompareAndSwap(false, true) {
		c.setState(StateClosing, "closed before start")
		c.setState(StateClosed, "closed before start")
		c.finish()
		return
	}
	if !c.started.Load() {
		return
	}
	if normal {
		c.wantNormal.Store(true)
	} else {
		c.wantAbnormal.Store(true)
	}
	select {
	case c.closeNotify <- struct{}{}:
	default:
	}
}

// SendData sends a Data envelope.
func (c *Connection) SendData(id string, payload any) error {
	env, err := envelope.Data(id, payload)
	if err != nil {
		return err
	}
	return c.Send(env)
}

// Send writes env on the current transport. When the connection is not open
// the envelope is dropped and a SEND_ON_CLOSED error returned.
func (c *Connection) Send(env envelope.Envelope) error {
	err := c.send(env)
	if stderrors.Is(err, transport.ErrClosed) {
		state := c.State()
		c.logger.SendDropped(c.id, env.Kind().String(), state.String())
		c.metrics.SendDropped(string(c.role))
		return errors.SendOnClosed(c.id, state.String(), errors.WithCause(err))
	}
	return err
}

// send returns transport.ErrClosed when not open.
func (c *Connection) send(env envelope.Envelope) error {
	c.mu.RLock()
	state, tr := c.state, c.tr
	c.mu.RUnlock()

	if state != StateOpen || tr == nil {
		return transport.ErrClosed
	}

	data, err := c.codec.Encode(env)
	if err != nil {
		return errors.Wrap(err, "encode envelope", errors.WithConnectionID(c.id))
	}
	if err := tr.Send(data); err != nil {
		return err
	}
	c.lastSend.Store(time.Now().UnixNano())
	return nil
}

func (c *Connection) sendHeartbeat() error {
	if err := c.send(envelope.Heartbeat()); err != nil {
		return err
	}
	c.metrics.HeartbeatSent(string(c.role))
	return nil
}

// ID returns the connection identity.
func (c *Connection) ID() string { return c.id }

// Role returns the connection role.
func (c *Connection) Role() Role { return c.role }

// State returns the current state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Epoch returns the number of transport attempts so far.
func (c *Connection) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Attempts returns consecutive reconnect attempts since the last Open.
func (c *Connection) Attempts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attempts
}

// RemoteAddr describes the current counterpart, or "" when not open.
func (c *Connection) RemoteAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tr == nil {
		return ""
	}
	return c.tr.RemoteAddr()
}

// LastSend returns when an envelope was last written.
func (c *Connection) LastSend() time.Time { return loadTime(&c.lastSend) }

// LastReceive returns when an envelope was last decoded.
func (c *Connection) LastReceive() time.Time { return loadTime(&c.lastReceive) }

func loadTime(v *atomic.Int64) time.Time {
	n := v.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Done is closed once the connection reaches Closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Watch returns a channel of transitions. Slow readers miss transitions;
// the channel is closed when the connection is closed.
func (c *Connection) Watch() <-chan Transition {
	ch := make(chan Transition, c.watchBuffer)
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	if c.watchEnd {
		close(ch)
		return ch
	}
	c.watchers = append(c.watchers, ch)
	return ch
}

// setState records a transition and notifies observers.
func (c *Connection) setState(to State, reason string) {
	c.mu.Lock()
	from := c.state
	c.state = to
	epoch := c.epoch
	c.mu.Unlock()

	t := Transition{From: from, To: to, Reason: reason, Epoch: epoch, At: time.Now()}

	c.logger.StateChange(c.id, from.String(), to.String(), reason)
	c.metrics.Transition(string(c.role), from.String(), to.String())

	if c.onTransition != nil {
		c.onTransition(c, t)
	}

	c.watchMu.Lock()
	for _, ch := range c.watchers {
		select {
		case ch <- t:
		default:
		}
	}
	c.watchMu.Unlock()
}

// finish closes Done and every watcher channel.
func (c *Connection) finish() {
	c.doneOnce.Do(func() {
		c.watchMu.Lock()
		c.watchEnd = true
		for _, ch := range c.watchers {
			close(ch)
		}
		c.watchers = nil
		c.watchMu.Unlock()
		close(c.done)
	})
}

// post hands an event to the loop. Once the loop is gone, a dialed
// transport is released instead.
func (c *Connection) post(ev event) {
	select {
	case <-c.done:
		discard(ev)
		return
	default:
	}
	select {
	case c.events <- ev:
		// The loop may have drained and exited after the check above.
		select {
		case <-c.done:
			c.drain()
		default:
		}
	case <-c.done:
		discard(ev)
	}
}

// drain releases events that arrived after the loop stopped reading.
func (c *Connection) drain() {
	for {
		select {
		case ev := <-c.events:
			discard(ev)
		default:
			return
		}
	}
}

func discard(ev event) {
	if ev.tr != nil {
		ev.tr.Close(transport.CloseGoingAway, "connection closed")
	}
}
